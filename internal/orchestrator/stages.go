package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sublingo/internal/logging"
	"sublingo/internal/models"
	"sublingo/internal/services"
	"sublingo/internal/task"
	"sublingo/internal/vocab"
)

// Progress reported when a stage begins. Completion is always 100.
var stageEntryProgress = map[task.Stage]float64{
	task.StageDownloading:  10,
	task.StageTranscribing: 30,
	task.StageFiltering:    60,
	task.StageTranslating:  80,
}

// pipelineState carries intermediate artifacts between stages of one task.
// Stages run strictly sequentially on a single worker, so no locking.
type pipelineState struct {
	taskDir   string
	audioPath string
	segments  []models.Segment
	filtered  *vocab.FilterResult
	wordIDs   []int64
}

func (o *Orchestrator) processTask(ctx context.Context, logger *slog.Logger, t *task.Task) {
	logger = logger.With(
		logging.String(logging.FieldTaskID, t.ID),
		logging.String(logging.FieldVideoRef, t.VideoRef),
		logging.Int(logging.FieldChunkIndex, t.ChunkIndex),
	)

	state := &pipelineState{taskDir: filepath.Join(o.cfg.Paths.WorkDir, t.ID)}
	if err := os.MkdirAll(state.taskDir, 0o755); err != nil {
		o.failTask(ctx, logger, t, task.StageDownloading, fmt.Errorf("create task workspace: %w", err))
		return
	}

	steps := []struct {
		stage   task.Stage
		message string
		run     func(context.Context) error
	}{
		{task.StageDownloading, "extracting audio", func(ctx context.Context) error { return o.stageDownload(ctx, t, state) }},
		{task.StageTranscribing, "transcribing audio", func(ctx context.Context) error { return o.stageTranscribe(ctx, t, state) }},
		{task.StageFiltering, "filtering vocabulary", func(ctx context.Context) error { return o.stageFilter(ctx, t, state) }},
		{task.StageTranslating, "translating subtitles", func(ctx context.Context) error { return o.stageTranslate(ctx, t, state) }},
	}

	for _, step := range steps {
		if o.handleCancel(ctx, logger, t) {
			return
		}

		evt, err := o.store.AdvanceStage(ctx, t.ID, step.stage, stageEntryProgress[step.stage], step.message)
		if err != nil {
			logger.Error("failed to advance stage",
				logging.String(logging.FieldStage, string(step.stage)),
				logging.Error(err))
			return
		}
		if evt == nil {
			logger.Debug("stage advance discarded",
				logging.String(logging.FieldStage, string(step.stage)))
		}
		o.publish(evt)

		if err := o.runStage(ctx, t, step.run); err != nil {
			if ctx.Err() != nil {
				// Daemon shutdown mid-stage. The task keeps its current
				// stage; the watchdog stalls it if nothing resumes it.
				logger.Warn("stage interrupted by shutdown",
					logging.String(logging.FieldStage, string(step.stage)))
				return
			}
			o.failTask(ctx, logger, t, step.stage, err)
			return
		}
	}

	if o.handleCancel(ctx, logger, t) {
		return
	}

	evt, err := o.store.AdvanceStage(ctx, t.ID, task.StageCompleted, 100, "chunk ready")
	if err != nil {
		logger.Error("failed to complete task", logging.Error(err))
		return
	}
	o.publish(evt)

	wordCount := 0
	if state.filtered != nil {
		wordCount = len(state.filtered.Words)
	}
	logger.Info("task completed", logging.Int("word_count", wordCount))
	if err := o.notifier.NotifyChunkCompleted(ctx, t.VideoRef, t.ChunkIndex, wordCount); err != nil {
		logger.Warn("completion notification failed", logging.Error(err))
	}
}

// runStage executes one stage body under the stage timeout, retrying
// transient failures per the retry policy. Each extra attempt is recorded
// on the task.
func (o *Orchestrator) runStage(ctx context.Context, t *task.Task, run func(context.Context) error) error {
	timeout := time.Duration(o.cfg.Pipeline.StageTimeout) * time.Second
	return o.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			if err := o.store.IncrementAttempts(ctx, t.ID); err != nil {
				o.logger.Warn("failed to record retry attempt",
					logging.String(logging.FieldTaskID, t.ID),
					logging.Error(err))
			}
		}
		stageCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			stageCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return run(stageCtx)
	})
}

// handleCancel honors a pending cancel request at a stage boundary.
func (o *Orchestrator) handleCancel(ctx context.Context, logger *slog.Logger, t *task.Task) bool {
	current, err := o.store.GetByID(ctx, t.ID)
	if err != nil {
		logger.Error("failed to re-read task", logging.Error(err))
		return false
	}
	if !current.CancelRequested {
		return false
	}
	evt, err := o.store.MarkCancelled(ctx, t.ID, "cancelled by user")
	if err != nil {
		logger.Error("failed to mark task cancelled", logging.Error(err))
		return true
	}
	o.publish(evt)
	logger.Info("task cancelled")
	return true
}

func (o *Orchestrator) failTask(ctx context.Context, logger *slog.Logger, t *task.Task, stage task.Stage, cause error) {
	logger.Error("stage failed",
		logging.String(logging.FieldStage, string(stage)),
		logging.Error(cause))

	evt, err := o.store.Fail(ctx, t.ID, stage, cause.Error())
	if err != nil {
		logger.Error("failed to record task failure", logging.Error(err))
		return
	}
	o.publish(evt)

	if err := o.notifier.NotifyTaskFailed(ctx, t.VideoRef, t.ChunkIndex, string(stage), cause.Error()); err != nil {
		logger.Warn("failure notification failed", logging.Error(err))
	}
}

func (o *Orchestrator) stageDownload(ctx context.Context, t *task.Task, state *pipelineState) error {
	source := t.VideoRef
	if !filepath.IsAbs(source) {
		source = filepath.Join(o.cfg.Paths.IngestDir, source)
	}
	if _, err := os.Stat(source); err != nil {
		return services.Wrap(services.ErrValidation, string(task.StageDownloading), "stat",
			fmt.Sprintf("source video %s is not readable", source), err)
	}
	state.audioPath = filepath.Join(state.taskDir, "chunk.wav")
	return o.prober.ExtractAudioSegment(ctx, source, t.ChunkStartSec, t.ChunkEndSec-t.ChunkStartSec, state.audioPath)
}

func (o *Orchestrator) stageTranscribe(ctx context.Context, t *task.Task, state *pipelineState) error {
	segments, err := o.registry.Transcribe(ctx, t.Prefs.Transcription, state.audioPath, t.SourceLang)
	if err != nil {
		return err
	}
	state.segments = segments

	path := filepath.Join(state.taskDir, "transcript.json")
	payload, err := json.MarshalIndent(struct {
		Segments []models.Segment `json:"segments"`
	}{Segments: segments}, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrValidation, string(task.StageTranscribing), "encode", "encode transcript", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return services.Wrap(services.ErrTransient, string(task.StageTranscribing), "write", "write transcript", err)
	}
	return o.store.SetResults(ctx, t.ID, task.ResultRefs{TranscriptPath: path})
}

func (o *Orchestrator) stageFilter(ctx context.Context, t *task.Task, state *pipelineState) error {
	result, err := o.filter.Run(ctx, t.UserRef, t.ID, state.segments)
	if err != nil {
		return err
	}
	state.filtered = result

	state.wordIDs = make([]int64, 0, len(result.Words))
	for _, word := range result.Words {
		state.wordIDs = append(state.wordIDs, word.ID)
	}
	if err := o.scheduler.RecordExposure(ctx, state.wordIDs); err != nil {
		return err
	}
	if err := o.store.SetResults(ctx, t.ID, task.ResultRefs{
		FilteredSubtitlePath: result.SubtitlePath,
		VocabularyIDs:        state.wordIDs,
		ChunkComplexity:      maxComplexity(result.Segments),
	}); err != nil {
		return err
	}

	if len(state.wordIDs) > 0 {
		blocking, err := o.scheduler.BlockingWords(ctx, t.UserRef, state.wordIDs, maxComplexity(result.Segments))
		if err != nil {
			return err
		}
		if len(blocking) > 0 {
			if err := o.notifier.NotifyReviewReady(ctx, t.VideoRef, t.ChunkIndex, len(blocking)); err != nil {
				o.logger.Warn("review notification failed",
					logging.String(logging.FieldTaskID, t.ID),
					logging.Error(err))
			}
		}
	}
	return nil
}

func (o *Orchestrator) stageTranslate(ctx context.Context, t *task.Task, state *pipelineState) error {
	path := filepath.Join(state.taskDir, "translated.srt")

	var segments []vocab.ScoredSegment
	if state.filtered != nil {
		segments = state.filtered.Segments
	}

	var b strings.Builder
	for i, scored := range segments {
		translated, err := o.registry.Translate(ctx, t.Prefs.Translation, scored.Segment.Text, t.SourceLang, t.TargetLang)
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n%s\n\n",
			i+1,
			formatSRTTime(scored.Segment.StartSec),
			formatSRTTime(scored.Segment.EndSec),
			strings.TrimSpace(scored.Segment.Text),
			strings.TrimSpace(translated),
		)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return services.Wrap(services.ErrTransient, string(task.StageTranslating), "write", "write translated subtitles", err)
	}
	return o.store.SetResults(ctx, t.ID, task.ResultRefs{TranslatedPath: path})
}

func maxComplexity(segments []vocab.ScoredSegment) float64 {
	highest := 0.0
	for _, seg := range segments {
		if seg.Complexity > highest {
			highest = seg.Complexity
		}
	}
	return highest
}

func formatSRTTime(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60
	millis := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}
