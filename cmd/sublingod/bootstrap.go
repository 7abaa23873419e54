package main

import (
	"fmt"
	"path/filepath"

	"log/slog"

	"sublingo/internal/config"
	"sublingo/internal/daemon"
	"sublingo/internal/models"
	"sublingo/internal/orchestrator"
	"sublingo/internal/progress"
	"sublingo/internal/services/translator"
	"sublingo/internal/services/whisper"
	"sublingo/internal/srs"
	"sublingo/internal/task"
	"sublingo/internal/vocab"
	"sublingo/internal/watch"
)

func bootstrap(cfg *config.Config, logger *slog.Logger) (*daemon.Daemon, error) {
	store, err := task.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}

	registry, err := registerBackends(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	lexicon, err := vocab.LoadLexicon(cfg.Paths.LexiconCSV, cfg.Pipeline.SourceLanguage)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	vocabStore := vocab.NewStore(store.DB())
	scheduler := srs.NewScheduler(vocabStore, srs.NewStore(store.DB()), cfg.Review)
	hub := progress.NewHub(cfg.Progress)

	orch := orchestrator.New(cfg, orchestrator.Deps{
		Store:     store,
		Registry:  registry,
		Hub:       hub,
		Logger:    logger,
		Filter:    vocab.NewFilter(lexicon, vocabStore, cfg.Paths.WorkDir),
		Scheduler: scheduler,
	})

	return daemon.New(cfg, daemon.Deps{
		Store:     store,
		Registry:  registry,
		Orch:      orch,
		Hub:       hub,
		Scheduler: scheduler,
		Watcher:   watch.NewWatcher(cfg, orch, logger),
		Logger:    logger,
	})
}

func registerBackends(cfg *config.Config) (*models.Registry, error) {
	registry := models.NewRegistry()

	transcriber := whisper.NewService(cfg.Transcription)
	if err := registry.RegisterTranscriber(models.Descriptor{
		Name:             cfg.Transcription.Model,
		ConcurrencyLimit: cfg.Transcription.ConcurrencyLimit,
	}, transcriber); err != nil {
		return nil, fmt.Errorf("register transcriber: %w", err)
	}

	client := translator.NewClient(cfg.Translation)
	if err := registry.RegisterTranslator(models.Descriptor{
		Name:             cfg.Translation.Model,
		ConcurrencyLimit: cfg.Translation.ConcurrencyLimit,
	}, client); err != nil {
		return nil, fmt.Errorf("register translator: %w", err)
	}

	return registry, nil
}

func socketPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "sublingod.sock")
}
