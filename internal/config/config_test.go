package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sublingo/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if cfg.Pipeline.ChunkSizeSeconds != 300 {
		t.Fatalf("unexpected default chunk size: %d", cfg.Pipeline.ChunkSizeSeconds)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := strings.Join([]string{
		"[pipeline]",
		"chunk_size_seconds = 120",
		"workers = 2",
		`source_language = "EN"`,
		`target_language = "fr"`,
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved == "" {
		t.Fatal("expected config file to be found")
	}
	if cfg.Pipeline.ChunkSizeSeconds != 120 {
		t.Fatalf("override not applied: %d", cfg.Pipeline.ChunkSizeSeconds)
	}
	if cfg.Pipeline.SourceLanguage != "en" {
		t.Fatalf("language not normalized: %q", cfg.Pipeline.SourceLanguage)
	}
}

func TestValidateRejectsSameLanguagePair(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.SourceLanguage = "en"
	cfg.Pipeline.TargetLanguage = "en"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for identical language pair")
	}
}

func TestValidateRejectsZeroConcurrency(t *testing.T) {
	cfg := config.Default()
	cfg.Transcription.ConcurrencyLimit = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero concurrency limit")
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("sample config should load cleanly: exists=%v err=%v", exists, err)
	}
}
