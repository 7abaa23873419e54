package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"sublingo/internal/config"
	"sublingo/internal/models"
	"sublingo/internal/services"
)

// Service runs the whisperx CLI and parses its JSON output into timed
// segments. It implements models.Transcriber.
type Service struct {
	binary        string
	model         string
	cudaEnabled   bool
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a transcriber from the transcription configuration.
func NewService(cfg config.Transcription) *Service {
	binary := cfg.Binary
	if binary == "" {
		binary = "whisperx"
	}
	return &Service{
		binary:      binary,
		model:       cfg.Model,
		cudaEnabled: cfg.CUDAEnabled,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Model returns the configured model name for registry descriptors.
func (s *Service) Model() string {
	return s.model
}

// Transcribe runs whisperx on an extracted audio file and returns the timed
// segments it produced.
func (s *Service) Transcribe(ctx context.Context, audioPath, lang string) ([]models.Segment, error) {
	if audioPath == "" {
		return nil, services.Wrap(services.ErrValidation, "transcribing", "whisper", "audio path required", nil)
	}
	outputDir := filepath.Dir(audioPath)

	args := s.buildArgs(audioPath, outputDir, lang)
	if err := s.run(ctx, s.binary, args...); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrTransient, "transcribing", "whisper", "run whisperx", err)
	}

	baseName := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	jsonPath := filepath.Join(outputDir, baseName+".json")
	segments, err := LoadSegments(jsonPath)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcribing", "whisper", "read whisperx output", err)
	}
	return segments, nil
}

func (s *Service) buildArgs(source, outputDir, language string) []string {
	args := []string{
		source,
		"--output_dir", outputDir,
		"--output_format", "json",
	}
	if s.model != "" {
		args = append(args, "--model", s.model)
	}
	if language != "" {
		args = append(args, "--language", language)
	}
	if s.cudaEnabled {
		args = append(args, "--device", "cuda")
	} else {
		args = append(args, "--device", "cpu", "--compute_type", "int8")
	}
	return args
}

func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

type whisperPayload struct {
	Segments []payloadSegment `json:"segments"`
}

type payloadSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// LoadSegments loads timed segments from a whisperx JSON file.
func LoadSegments(jsonPath string) ([]models.Segment, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, err
	}
	var payload whisperPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse whisperx json: %w", err)
	}
	segments := make([]models.Segment, 0, len(payload.Segments))
	for _, seg := range payload.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segments = append(segments, models.Segment{
			Text:     text,
			StartSec: seg.Start,
			EndSec:   seg.End,
		})
	}
	return segments, nil
}
