package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"

	"sublingo/internal/language"
	"sublingo/internal/logging"
	"sublingo/internal/segment"
	"sublingo/internal/services"
	"sublingo/internal/task"
)

// CreateRequest carries the external create-task parameters.
type CreateRequest struct {
	UserRef    string
	VideoRef   string
	StartSec   float64
	EndSec     float64
	Prefs      task.ModelPreferences
	SourceLang string
	TargetLang string
}

// CreateTask validates and enqueues one chunk task. Unknown model backends
// and malformed language pairs fail fast with a configuration error before
// anything is persisted; invalid chunk bounds are validation errors; a live
// duplicate for the same (video, chunk) surfaces the store's conflict.
func (o *Orchestrator) CreateTask(ctx context.Context, req CreateRequest) (*task.Task, error) {
	if req.EndSec <= req.StartSec || req.StartSec < 0 {
		return nil, services.Wrap(services.ErrValidation, "queued", "create",
			fmt.Sprintf("chunk bounds [%0.3f, %0.3f) are invalid", req.StartSec, req.EndSec), nil)
	}

	prefs := o.resolvePrefs(req.Prefs)
	if err := o.registry.ValidateTranscriber(prefs.Transcription); err != nil {
		return nil, err
	}
	if err := o.registry.ValidateTranslator(prefs.Translation); err != nil {
		return nil, err
	}

	sourceLang := req.SourceLang
	if sourceLang == "" {
		sourceLang = o.cfg.Pipeline.SourceLanguage
	}
	targetLang := req.TargetLang
	if targetLang == "" {
		targetLang = o.cfg.Pipeline.TargetLanguage
	}
	pair, err := language.NewPair(sourceLang, targetLang)
	if err != nil {
		return nil, err
	}

	chunkSize := float64(o.cfg.Pipeline.ChunkSizeSeconds)
	chunkIndex := int(math.Floor(req.StartSec / chunkSize))

	created, err := o.store.Create(ctx, task.CreateRequest{
		UserRef:       req.UserRef,
		VideoRef:      req.VideoRef,
		ChunkIndex:    chunkIndex,
		ChunkStartSec: req.StartSec,
		ChunkEndSec:   req.EndSec,
		Prefs:         prefs,
		SourceLang:    pair.Source,
		TargetLang:    pair.Target,
	})
	if err != nil {
		return nil, err
	}

	evt, err := o.store.AdvanceStage(ctx, created.ID, task.StageQueued, 0, "queued")
	if err != nil {
		return nil, err
	}
	o.publish(evt)

	o.logger.Info("task created",
		logging.String(logging.FieldTaskID, created.ID),
		logging.String(logging.FieldVideoRef, created.VideoRef),
		logging.Int(logging.FieldChunkIndex, created.ChunkIndex),
	)
	return created, nil
}

// PlanVideo probes a video's duration, segments it into chunks, and creates
// one task per chunk. Chunks that already have a live task are skipped, so
// re-planning the same video after a restart is safe.
func (o *Orchestrator) PlanVideo(ctx context.Context, userRef, videoPath string) ([]*task.Task, error) {
	duration, err := o.prober.DurationSec(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	chunks, err := segment.Plan(videoPath, duration, float64(o.cfg.Pipeline.ChunkSizeSeconds))
	if err != nil {
		return nil, err
	}

	tasks := make([]*task.Task, 0, len(chunks))
	for _, chunk := range chunks {
		created, err := o.CreateTask(ctx, CreateRequest{
			UserRef:  userRef,
			VideoRef: videoPath,
			StartSec: chunk.StartSec,
			EndSec:   chunk.EndSec,
		})
		if err != nil {
			if errors.Is(err, services.ErrConflict) {
				o.logger.Debug("chunk already live, skipping",
					logging.String(logging.FieldVideoRef, filepath.Base(videoPath)),
					logging.Int(logging.FieldChunkIndex, chunk.Index),
				)
				continue
			}
			return tasks, err
		}
		tasks = append(tasks, created)
	}
	return tasks, nil
}

func (o *Orchestrator) resolvePrefs(prefs task.ModelPreferences) task.ModelPreferences {
	if prefs.Transcription == "" {
		prefs.Transcription = o.cfg.Transcription.Model
	}
	if prefs.Translation == "" {
		prefs.Translation = o.cfg.Translation.Model
	}
	return prefs
}
