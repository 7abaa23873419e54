package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"sublingo/internal/config"
)

// Requirement defines an external dependency the pipeline relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// SystemRequirements lists the external binaries the pipeline shells out to.
func SystemRequirements(cfg *config.Config) []Requirement {
	whisperBinary := "whisperx"
	if cfg != nil && strings.TrimSpace(cfg.Transcription.Binary) != "" {
		whisperBinary = cfg.Transcription.Binary
	}
	return []Requirement{
		{Name: "FFmpeg", Command: "ffmpeg", Description: "Audio extraction from video chunks"},
		{Name: "FFprobe", Command: "ffprobe", Description: "Video duration probing for chunk planning"},
		{Name: "WhisperX", Command: whisperBinary, Description: "Local speech-to-text transcription"},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}
