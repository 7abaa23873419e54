package orchestrator

import (
	"context"
	"fmt"
	"time"

	"sublingo/internal/logging"
	"sublingo/internal/task"
)

// runWatchdog periodically sweeps in-flight tasks whose last event is older
// than twice the stage timeout and marks them stalled. Stalled tasks keep
// their chunk slot until a retry or cancel resolves them. Tasks that exceed
// the whole-task deadline are failed outright.
func (o *Orchestrator) runWatchdog(ctx context.Context) {
	defer o.wg.Done()

	interval := time.Duration(o.cfg.Pipeline.WatchdogInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.sweepStale(ctx, time.Now().UTC())
		}
	}
}

func (o *Orchestrator) sweepStale(ctx context.Context, now time.Time) {
	stageTimeout := time.Duration(o.cfg.Pipeline.StageTimeout) * time.Second
	taskTimeout := time.Duration(o.cfg.Pipeline.TaskTimeout) * time.Second

	stale, err := o.store.StaleTasks(ctx, now.Add(-2*stageTimeout))
	if err != nil {
		o.logger.Error("stale task sweep failed", logging.Error(err))
		return
	}

	for _, t := range stale {
		logger := o.logger.With(
			logging.String(logging.FieldTaskID, t.ID),
			logging.String(logging.FieldStage, string(t.Stage)),
		)

		if taskTimeout > 0 && now.Sub(t.CreatedAt) > taskTimeout {
			evt, err := o.store.Fail(ctx, t.ID, t.Stage,
				fmt.Sprintf("task exceeded %s total deadline", taskTimeout))
			if err != nil {
				logger.Error("failed to fail timed-out task", logging.Error(err))
				continue
			}
			o.publish(evt)
			logger.Warn("task exceeded total deadline")
			if err := o.notifier.NotifyTaskFailed(ctx, t.VideoRef, t.ChunkIndex, string(t.Stage), "task deadline exceeded"); err != nil {
				logger.Warn("failure notification failed", logging.Error(err))
			}
			continue
		}

		evt, err := o.store.MarkStalled(ctx, t.ID,
			fmt.Sprintf("no progress for more than %s", 2*stageTimeout))
		if err != nil {
			logger.Error("failed to mark task stalled", logging.Error(err))
			continue
		}
		o.publish(evt)
		logger.Warn("task stalled")
		if err := o.notifier.NotifyTaskStalled(ctx, t.VideoRef, t.ChunkIndex, string(t.Stage)); err != nil {
			logger.Warn("stall notification failed", logging.Error(err))
		}
	}
}

// runRetention deletes terminal tasks older than the retention window.
// Event history and vocabulary schedules survive because vocabulary rows
// are keyed by user, not task.
func (o *Orchestrator) runRetention(ctx context.Context) {
	defer o.wg.Done()

	retention := time.Duration(o.cfg.Pipeline.TaskRetentionHours) * time.Hour
	if retention <= 0 {
		return
	}

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		o.sweepRetention(ctx, time.Now().UTC().Add(-retention))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) sweepRetention(ctx context.Context, cutoff time.Time) {
	deleted, err := o.store.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		o.logger.Error("retention sweep failed", logging.Error(err))
		return
	}
	if deleted > 0 {
		o.logger.Info("pruned terminal tasks", logging.Int64("deleted", deleted))
	}
}

// RetryTask requeues a stalled or failed task and republishes its queued
// event.
func (o *Orchestrator) RetryTask(ctx context.Context, id string) (*task.Task, error) {
	retried, err := o.store.Retry(ctx, id)
	if err != nil {
		return nil, err
	}
	evt, err := o.store.AdvanceStage(ctx, id, task.StageQueued, 0, "requeued")
	if err != nil {
		return nil, err
	}
	o.publish(evt)
	o.logger.Info("task requeued", logging.String(logging.FieldTaskID, id))
	return retried, nil
}

// CancelTask flags a task for cooperative cancellation. Queued tasks are
// cancelled immediately since no worker owns them.
func (o *Orchestrator) CancelTask(ctx context.Context, id string) error {
	current, err := o.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := o.store.RequestCancel(ctx, id); err != nil {
		return err
	}
	if current.Stage == task.StageQueued || current.Stage == task.StageStalled {
		evt, err := o.store.MarkCancelled(ctx, id, "cancelled by user")
		if err != nil {
			return err
		}
		o.publish(evt)
	}
	return nil
}
