package daemon_test

import (
	"context"
	"path/filepath"
	"testing"

	"sublingo/internal/config"
	"sublingo/internal/daemon"
	"sublingo/internal/media"
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
ubiquitous,ubiquitous,en,C1,6400
`

type fakeTranscriber struct{}

func (fakeTranscriber) Transcribe(ctx context.Context, audioPath, lang string) ([]models.Segment, error) {
	return []models.Segment{
		{Text: "The fox runs across the road", StartSec: 0, EndSec: 2.5},
	}, nil
}

type fakeTranslator struct{}

func (fakeTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	return "[" + targetLang + "] " + text, nil
}

func newTestDaemon(t *testing.T, token string) (*daemon.Daemon, *config.Config) {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithLexicon(testLexicon))
	cfg.Pipeline.MaxAttempts = 3
	cfg.Pipeline.RetryBaseDelayMS = 1
	cfg.Pipeline.RetryMaxDelayMS = 5
	cfg.Pipeline.QueuePollInterval = 1
	cfg.Translation.Model = "gemini-flash"
	cfg.Paths.APIToken = token

	store := testsupport.MustOpenStore(t, cfg)

	registry := models.NewRegistry()
	if err := registry.RegisterTranscriber(models.Descriptor{Name: "whisper-base", ConcurrencyLimit: 2}, fakeTranscriber{}); err != nil {
		t.Fatalf("register transcriber: %v", err)
	}
	if err := registry.RegisterTranslator(models.Descriptor{Name: "gemini-flash", ConcurrencyLimit: 2}, fakeTranslator{}); err != nil {
		t.Fatalf("register translator: %v", err)
	}

	lexicon, err := vocab.LoadLexicon(cfg.Paths.LexiconCSV, "en")
	if err != nil {
		t.Fatalf("load lexicon: %v", err)
	}
	vocabStore := vocab.NewStore(store.DB())
	hub := progress.NewHub(cfg.Progress)
	scheduler := srs.NewScheduler(vocabStore, srs.NewStore(store.DB()), cfg.Review)

	prober := media.NewProber("ffmpeg", "ffprobe").WithCommandRunner(
		func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return nil, nil
		})

	orch := orchestrator.New(cfg, orchestrator.Deps{
		Store:     store,
		Registry:  registry,
		Hub:       hub,
		Prober:    prober,
		Filter:    vocab.NewFilter(lexicon, vocabStore, cfg.Paths.WorkDir),
		Scheduler: scheduler,
	})

	d, err := daemon.New(cfg, daemon.Deps{
		Store:     store,
		Registry:  registry,
		Orch:      orch,
		Hub:       hub,
		Scheduler: scheduler,
	})
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	testsupport.WriteFile(t, filepath.Join(cfg.Paths.IngestDir, "lesson.mp4"), "fake video bytes")

	return d, cfg
}

func TestDaemonStartStopLifecycle(t *testing.T) {
	d, _ := newTestDaemon(t, "")

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	status := d.Status(context.Background())
	if !status.Running {
		t.Fatal("expected running status after start")
	}
	if status.PID <= 0 {
		t.Fatalf("unexpected pid %d", status.PID)
	}
	if d.APIAddr() == "" {
		t.Fatal("expected bound api address")
	}
	if len(status.Backends) != 2 {
		t.Fatalf("expected 2 backends, got %d", len(status.Backends))
	}

	d.Stop()
	if d.Status(context.Background()).Running {
		t.Fatal("expected stopped status after stop")
	}
}

func TestDaemonStartTwiceErrors(t *testing.T) {
	d, _ := newTestDaemon(t, "")

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	t.Cleanup(d.Stop)

	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected error starting a running daemon")
	}
}

func TestDaemonLockBlocksSecondInstance(t *testing.T) {
	d, cfg := newTestDaemon(t, "")

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	t.Cleanup(d.Stop)

	store, err := task.Open(cfg)
	if err != nil {
		t.Fatalf("open second store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	hub := progress.NewHub(cfg.Progress)
	orch := orchestrator.New(cfg, orchestrator.Deps{
		Store:    store,
		Registry: models.NewRegistry(),
		Hub:      hub,
	})
	second, err := daemon.New(cfg, daemon.Deps{
		Store: store,
		Orch:  orch,
		Hub:   hub,
	})
	if err != nil {
		t.Fatalf("new second daemon: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected lock contention error for second instance")
	}
}

func TestListTasksIgnoresUnknownStageNames(t *testing.T) {
	d, _ := newTestDaemon(t, "")

	tasks, err := d.ListTasks(context.Background(), []string{"queued", "bogus"})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected empty task list, got %d", len(tasks))
	}
}

func TestTestNotificationWithoutTopic(t *testing.T) {
	d, _ := newTestDaemon(t, "")

	sent, message, err := d.TestNotification(context.Background())
	if err != nil {
		t.Fatalf("test notification: %v", err)
	}
	if sent {
		t.Fatal("notification should not send without a topic")
	}
	if message == "" {
		t.Fatal("expected explanatory message")
	}
}
