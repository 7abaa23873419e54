package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"sublingo/internal/services"
)

// CommandRunner executes an external command and returns combined output.
// Injectable for tests.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func defaultRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	return cmd.CombinedOutput()
}

// Prober reports media durations and extracts audio segments through
// ffprobe/ffmpeg.
type Prober struct {
	ffmpegBinary  string
	ffprobeBinary string
	runner        CommandRunner
}

// NewProber constructs a prober. Empty binary names fall back to the tools on PATH.
func NewProber(ffmpegBinary, ffprobeBinary string) *Prober {
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(ffprobeBinary) == "" {
		ffprobeBinary = "ffprobe"
	}
	return &Prober{
		ffmpegBinary:  ffmpegBinary,
		ffprobeBinary: ffprobeBinary,
		runner:        defaultRunner,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (p *Prober) WithCommandRunner(runner CommandRunner) *Prober {
	if runner != nil {
		p.runner = runner
	}
	return p
}

type probeFormat struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// DurationSec reports the container duration of a media file in seconds.
func (p *Prober) DurationSec(ctx context.Context, path string) (float64, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, services.Wrap(services.ErrValidation, "", "probe duration", "empty path", nil)
	}

	output, err := p.runner(ctx, p.ffprobeBinary,
		"-v", "error", "-hide_banner", "-show_format", "-of", "json", "--", path)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "", "probe duration",
			strings.TrimSpace(string(output)), err)
	}

	var parsed probeFormat
	if err := json.Unmarshal(output, &parsed); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(parsed.Format.Duration), 64)
	if err != nil || duration <= 0 {
		return 0, services.Wrap(services.ErrValidation, "", "probe duration",
			fmt.Sprintf("no usable duration for %s", path), nil)
	}
	return duration, nil
}

// ExtractAudioSegment extracts a time range of audio as a mono 16kHz WAV
// file, the input format the whisper backend expects.
func (p *Prober) ExtractAudioSegment(ctx context.Context, source string, startSec, durationSec float64, dest string) error {
	if durationSec <= 0 {
		return services.Wrap(services.ErrValidation, "", "extract audio",
			fmt.Sprintf("invalid segment duration %v", durationSec), nil)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", formatSeconds(startSec),
		"-t", formatSeconds(durationSec),
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
	if output, err := p.runner(ctx, p.ffmpegBinary, args...); err != nil {
		return services.Wrap(services.ErrTransient, "", "extract audio",
			strings.TrimSpace(string(output)), err)
	}
	return nil
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', 3, 64)
}
