package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	WorkDir     string `toml:"work_dir"`
	LogDir      string `toml:"log_dir"`
	IngestDir   string `toml:"ingest_dir"`
	LexiconCSV  string `toml:"lexicon_csv"`
	APIBind     string `toml:"api_bind"`
	APIToken    string `toml:"api_token"`
	DefaultUser string `toml:"default_user"`
}

// Transcription contains settings for the whisper transcription backend.
type Transcription struct {
	Binary           string `toml:"binary"`
	Model            string `toml:"model"`
	CUDAEnabled      bool   `toml:"cuda_enabled"`
	ConcurrencyLimit int    `toml:"concurrency_limit"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
}

// Translation contains settings for the LLM translation backend.
type Translation struct {
	APIKey           string `toml:"api_key"`
	BaseURL          string `toml:"base_url"`
	Model            string `toml:"model"`
	ConcurrencyLimit int    `toml:"concurrency_limit"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
}

// Pipeline contains chunking, worker pool, and timeout settings.
type Pipeline struct {
	ChunkSizeSeconds   int    `toml:"chunk_size_seconds"`
	Workers            int    `toml:"workers"`
	StageTimeout       int    `toml:"stage_timeout"`
	TaskTimeout        int    `toml:"task_timeout"`
	MaxAttempts        int    `toml:"max_attempts"`
	RetryBaseDelayMS   int    `toml:"retry_base_delay_ms"`
	RetryMaxDelayMS    int    `toml:"retry_max_delay_ms"`
	QueuePollInterval  int    `toml:"queue_poll_interval"`
	WatchdogInterval   int    `toml:"watchdog_interval"`
	TaskRetentionHours int    `toml:"task_retention_hours"`
	SourceLanguage     string `toml:"source_language"`
	TargetLanguage     string `toml:"target_language"`
}

// Progress contains settings for the event broadcaster.
type Progress struct {
	BufferSize        int `toml:"buffer_size"`
	HeartbeatInterval int `toml:"heartbeat_interval"`
	MissedHeartbeats  int `toml:"missed_heartbeats"`
}

// Review contains spaced-repetition scheduling settings.
type Review struct {
	DifficultyThreshold float64 `toml:"difficulty_threshold"`
	EaseFloor           float64 `toml:"ease_floor"`
	EaseCeiling         float64 `toml:"ease_ceiling"`
	MaxIntervalDays     int     `toml:"max_interval_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completion     bool   `toml:"completion"`
	Errors         bool   `toml:"errors"`
	Stalls         bool   `toml:"stalls"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the sublingo daemon.
//
// Configuration sections by subsystem:
//   - Paths: directories, lexicon source, and API bind address
//   - Transcription: whisper backend binary and model
//   - Translation: LLM backend connection settings
//   - Pipeline: chunking, worker pool, timeouts, and retry policy
//   - Progress: event broadcaster buffering and heartbeats
//   - Review: difficulty threshold and SM-2 bounds
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Transcription Transcription `toml:"transcription"`
	Translation   Translation   `toml:"translation"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Progress      Progress      `toml:"progress"`
	Review        Review        `toml:"review"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/sublingo/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("sublingo.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.IngestDir) != "" {
		// Best-effort so the daemon can run when the ingest mount is offline.
		_ = os.MkdirAll(c.Paths.IngestDir, 0o755)
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for audio extraction.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for duration probing.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
