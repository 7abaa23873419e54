package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"sublingo/internal/config"
	"sublingo/internal/daemon"
	"sublingo/internal/ipc"
	"sublingo/internal/models"
	"sublingo/internal/orchestrator"
	"sublingo/internal/progress"
	"sublingo/internal/srs"
	"sublingo/internal/task"
	"sublingo/internal/testsupport"
	"sublingo/internal/vocab"
)

const testLexicon = `lemma,surface_forms,language,cefr_level,corpus_rank
run,run|runs|running,en,A1,120
fox,fox|foxes,en,B1,2400
`

type fakeTranscriber struct{}

func (fakeTranscriber) Transcribe(ctx context.Context, audioPath, lang string) ([]models.Segment, error) {
	return []models.Segment{{Text: "The fox runs", StartSec: 0, EndSec: 2}}, nil
}

type fakeTranslator struct{}

func (fakeTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	return text, nil
}

type cliTestEnv struct {
	cfg        *config.Config
	store      *task.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithLexicon(testLexicon))
	cfg.Paths.APIBind = ""
	cfg.Translation.Model = "gemini-flash"

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)

	registry := models.NewRegistry()
	if err := registry.RegisterTranscriber(models.Descriptor{Name: "whisper-base", ConcurrencyLimit: 1}, fakeTranscriber{}); err != nil {
		t.Fatalf("register transcriber: %v", err)
	}
	if err := registry.RegisterTranslator(models.Descriptor{Name: "gemini-flash", ConcurrencyLimit: 1}, fakeTranslator{}); err != nil {
		t.Fatalf("register translator: %v", err)
	}

	lexicon, err := vocab.LoadLexicon(cfg.Paths.LexiconCSV, "en")
	if err != nil {
		t.Fatalf("load lexicon: %v", err)
	}
	vocabStore := vocab.NewStore(store.DB())
	hub := progress.NewHub(cfg.Progress)

	orch := orchestrator.New(cfg, orchestrator.Deps{
		Store:     store,
		Registry:  registry,
		Hub:       hub,
		Filter:    vocab.NewFilter(lexicon, vocabStore, cfg.Paths.WorkDir),
		Scheduler: srs.NewScheduler(vocabStore, srs.NewStore(store.DB()), cfg.Review),
	})

	d, err := daemon.New(cfg, daemon.Deps{
		Store:    store,
		Registry: registry,
		Orch:     orch,
		Hub:      hub,
	})
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	testsupport.WriteFile(t, filepath.Join(cfg.Paths.IngestDir, "lesson.mp4"), "fake video bytes")

	socketPath := filepath.Join(cfg.Paths.LogDir, "cli.sock")
	server, err := ipc.NewServer(context.Background(), socketPath, d, nil)
	if err != nil {
		t.Fatalf("new ipc server: %v", err)
	}
	server.Serve()
	t.Cleanup(server.Close)

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		server:     server,
		socketPath: socketPath,
		configPath: configPath,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
