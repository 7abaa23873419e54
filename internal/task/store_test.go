package task_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"sublingo/internal/services"
	"sublingo/internal/task"
	"sublingo/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	created := testsupport.NewTask(t, store, "user-1", "video-1", 0)
	if created.ID == "" {
		t.Fatal("expected task ID to be assigned")
	}
	if created.Stage != task.StageQueued {
		t.Fatalf("expected queued stage, got %s", created.Stage)
	}

	fetched, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.VideoRef != "video-1" || fetched.ChunkIndex != 0 {
		t.Fatalf("unexpected fetched task: %#v", fetched)
	}
}

func TestCreateRejectsInvalidChunk(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	_, err := store.Create(ctx, task.CreateRequest{
		UserRef:       "user-1",
		VideoRef:      "video-1",
		ChunkIndex:    0,
		ChunkStartSec: 300,
		ChunkEndSec:   300,
		SourceLang:    "en",
		TargetLang:    "de",
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateRejectsDuplicateLiveChunk(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	first := testsupport.NewTask(t, store, "user-1", "video-1", 2)

	_, err := store.Create(ctx, task.CreateRequest{
		UserRef:       "user-2",
		VideoRef:      "video-1",
		ChunkIndex:    2,
		ChunkStartSec: 600,
		ChunkEndSec:   900,
		SourceLang:    "en",
		TargetLang:    "de",
	})
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}

	// Finishing the live task frees the slot.
	if _, err := store.Fail(ctx, first.ID, task.StageQueued, "boom"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if _, err := store.Create(ctx, task.CreateRequest{
		UserRef:       "user-2",
		VideoRef:      "video-1",
		ChunkIndex:    2,
		ChunkStartSec: 600,
		ChunkEndSec:   900,
		SourceLang:    "en",
		TargetLang:    "de",
	}); err != nil {
		t.Fatalf("expected create to succeed after terminal task, got %v", err)
	}
}

func TestConcurrentCreateOneWins(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Create(ctx, task.CreateRequest{
				UserRef:       "user-1",
				VideoRef:      "video-race",
				ChunkIndex:    5,
				ChunkStartSec: 1500,
				ChunkEndSec:   1800,
				SourceLang:    "en",
				TargetLang:    "de",
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, services.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || conflicts != attempts-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d/%d", attempts-1, successes, conflicts)
	}
}

func TestAdvanceStageAppendsSequencedEvents(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	created := testsupport.NewTask(t, store, "user-1", "video-1", 0)

	stages := []task.Stage{task.StageDownloading, task.StageTranscribing, task.StageFiltering, task.StageTranslating, task.StageCompleted}
	for i, stage := range stages {
		event, err := store.AdvanceStage(ctx, created.ID, stage, float64(i*20), fmt.Sprintf("entered %s", stage))
		if err != nil {
			t.Fatalf("AdvanceStage(%s): %v", stage, err)
		}
		if event.Sequence != int64(i+1) {
			t.Fatalf("expected sequence %d, got %d", i+1, event.Sequence)
		}
	}

	events, err := store.EventsForTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("EventsForTask: %v", err)
	}
	if len(events) != len(stages) {
		t.Fatalf("expected %d events, got %d", len(stages), len(events))
	}
	for i, event := range events {
		if event.Sequence != int64(i+1) {
			t.Fatalf("event %d out of order: seq %d", i, event.Sequence)
		}
	}

	final, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if final.Stage != task.StageCompleted || final.ProgressPercent != 100 {
		t.Fatalf("expected completed at 100%%, got %s at %v", final.Stage, final.ProgressPercent)
	}
}

func TestAdvanceStageDiscardsBackwardTransition(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	created := testsupport.NewTask(t, store, "user-1", "video-1", 0)
	if _, err := store.AdvanceStage(ctx, created.ID, task.StageTranscribing, 40, ""); err != nil {
		t.Fatalf("AdvanceStage: %v", err)
	}

	event, err := store.AdvanceStage(ctx, created.ID, task.StageDownloading, 10, "")
	if err != nil {
		t.Fatalf("backward AdvanceStage: %v", err)
	}
	if event != nil {
		t.Fatalf("expected backward transition to be discarded, got event %#v", event)
	}
	current, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if current.Stage != task.StageTranscribing || current.ProgressPercent != 40 {
		t.Fatalf("expected transcribing at 40%%, got %s at %v", current.Stage, current.ProgressPercent)
	}

	// Re-applying the current stage is an idempotent progress update.
	event, err = store.AdvanceStage(ctx, created.ID, task.StageTranscribing, 55, "halfway")
	if err != nil {
		t.Fatalf("idempotent AdvanceStage: %v", err)
	}
	if event == nil || event.ProgressPercent != 55 {
		t.Fatalf("expected progress event at 55, got %#v", event)
	}
}

func TestAdvanceStageDiscardsLowerProgressWithinStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	created := testsupport.NewTask(t, store, "user-1", "video-1", 0)
	if _, err := store.AdvanceStage(ctx, created.ID, task.StageTranscribing, 50, ""); err != nil {
		t.Fatalf("AdvanceStage: %v", err)
	}

	before, err := store.EventsForTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("EventsForTask: %v", err)
	}

	event, err := store.AdvanceStage(ctx, created.ID, task.StageTranscribing, 20, "late update")
	if err != nil {
		t.Fatalf("regressive AdvanceStage: %v", err)
	}
	if event != nil {
		t.Fatalf("expected regressive progress to be discarded, got event %#v", event)
	}

	current, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if current.ProgressPercent != 50 {
		t.Fatalf("expected progress to stay at 50, got %v", current.ProgressPercent)
	}
	after, err := store.EventsForTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("EventsForTask: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("expected no event for discarded update, got %d -> %d", len(before), len(after))
	}
}

func TestAdvanceStageRandomOrderNeverRegresses(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	created := testsupport.NewTask(t, store, "user-1", "video-1", 0)

	stages := []task.Stage{
		task.StageQueued,
		task.StageDownloading,
		task.StageTranscribing,
		task.StageFiltering,
		task.StageTranslating,
	}
	rng := rand.New(rand.NewSource(42))

	lastIdx := 0
	lastProgress := 0.0
	for i := 0; i < 200; i++ {
		stage := stages[rng.Intn(len(stages))]
		progress := float64(rng.Intn(101))

		if _, err := store.AdvanceStage(ctx, created.ID, stage, progress, ""); err != nil {
			t.Fatalf("AdvanceStage(%s, %v): %v", stage, progress, err)
		}

		current, err := store.GetByID(ctx, created.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		idx, ok := task.StageIndex(current.Stage)
		if !ok {
			t.Fatalf("unknown stage %s", current.Stage)
		}
		if idx < lastIdx {
			t.Fatalf("stage index regressed from %d to %d after %s", lastIdx, idx, stage)
		}
		if idx == lastIdx && current.ProgressPercent < lastProgress {
			t.Fatalf("progress regressed from %v to %v within stage %s", lastProgress, current.ProgressPercent, current.Stage)
		}
		lastIdx = idx
		lastProgress = current.ProgressPercent
	}
}

func TestAdvanceStageRejectsTerminalTask(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	created := testsupport.NewTask(t, store, "user-1", "video-1", 0)
	if _, err := store.Fail(ctx, created.ID, task.StageTranscribing, "model crashed"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if _, err := store.AdvanceStage(ctx, created.ID, task.StageFiltering, 0, ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error on terminal task, got %v", err)
	}
}

func TestClaimQueuedIsExclusive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	first := testsupport.NewTask(t, store, "user-1", "video-1", 0)
	second := testsupport.NewTask(t, store, "user-1", "video-1", 1)

	claimed1, err := store.ClaimQueued(ctx)
	if err != nil {
		t.Fatalf("ClaimQueued: %v", err)
	}
	claimed2, err := store.ClaimQueued(ctx)
	if err != nil {
		t.Fatalf("ClaimQueued: %v", err)
	}
	if claimed1 == nil || claimed2 == nil {
		t.Fatal("expected two claims")
	}
	if claimed1.ID == claimed2.ID {
		t.Fatal("same task claimed twice")
	}
	if claimed1.ID != first.ID || claimed2.ID != second.ID {
		t.Fatalf("claims out of order: %s, %s", claimed1.ID, claimed2.ID)
	}

	empty, err := store.ClaimQueued(ctx)
	if err != nil {
		t.Fatalf("ClaimQueued on empty queue: %v", err)
	}
	if empty != nil {
		t.Fatalf("expected nil claim, got %#v", empty)
	}
}

func TestFailPreservesResultRefs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	created := testsupport.NewTask(t, store, "user-1", "video-1", 0)
	if err := store.SetResults(ctx, created.ID, task.ResultRefs{TranscriptPath: "/tmp/chunk0.json"}); err != nil {
		t.Fatalf("SetResults: %v", err)
	}
	if _, err := store.Fail(ctx, created.ID, task.StageFiltering, "lexicon unreadable"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	failed, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if failed.Stage != task.StageError {
		t.Fatalf("expected error stage, got %s", failed.Stage)
	}
	if failed.ErrorStage != task.StageFiltering {
		t.Fatalf("expected failure attributed to filtering, got %s", failed.ErrorStage)
	}
	if failed.Results.TranscriptPath != "/tmp/chunk0.json" {
		t.Fatalf("transcript ref lost: %#v", failed.Results)
	}
}

func TestRequestCancelAndMarkCancelled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	created := testsupport.NewTask(t, store, "user-1", "video-1", 0)
	if err := store.RequestCancel(ctx, created.ID); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}

	pending, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !pending.CancelRequested {
		t.Fatal("expected cancel_requested flag")
	}

	if _, err := store.MarkCancelled(ctx, created.ID, "cancelled by user"); err != nil {
		t.Fatalf("MarkCancelled: %v", err)
	}
	if err := store.RequestCancel(ctx, created.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error cancelling terminal task, got %v", err)
	}
}

func TestRetryRequeuesStalledTask(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	created := testsupport.NewTask(t, store, "user-1", "video-1", 0)
	if _, err := store.AdvanceStage(ctx, created.ID, task.StageTranscribing, 30, ""); err != nil {
		t.Fatalf("AdvanceStage: %v", err)
	}
	if _, err := store.MarkStalled(ctx, created.ID, "no events for 600s"); err != nil {
		t.Fatalf("MarkStalled: %v", err)
	}

	// The stalled task still occupies the live slot.
	_, err := store.Create(ctx, task.CreateRequest{
		UserRef:       "user-1",
		VideoRef:      "video-1",
		ChunkIndex:    0,
		ChunkStartSec: 0,
		ChunkEndSec:   300,
		SourceLang:    "en",
		TargetLang:    "de",
	})
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict while stalled, got %v", err)
	}

	retried, err := store.Retry(ctx, created.ID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if retried.Stage != task.StageQueued || retried.Attempts != 1 {
		t.Fatalf("unexpected retried task: stage %s attempts %d", retried.Stage, retried.Attempts)
	}
	if retried.ErrorMessage != "" || retried.ErrorStage != "" {
		t.Fatalf("expected error fields cleared: %#v", retried)
	}
}

func TestStaleTasksUsesLastEvent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	created := testsupport.NewTask(t, store, "user-1", "video-1", 0)
	if _, err := store.AdvanceStage(ctx, created.ID, task.StageTranscribing, 10, ""); err != nil {
		t.Fatalf("AdvanceStage: %v", err)
	}

	stale, err := store.StaleTasks(ctx, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("StaleTasks: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("fresh task reported stale: %#v", stale)
	}

	stale, err = store.StaleTasks(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("StaleTasks: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != created.ID {
		t.Fatalf("expected one stale task, got %#v", stale)
	}
}

func TestDeleteTerminalBefore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	done := testsupport.NewTask(t, store, "user-1", "video-1", 0)
	live := testsupport.NewTask(t, store, "user-1", "video-1", 1)
	for _, stage := range []task.Stage{task.StageDownloading, task.StageTranscribing, task.StageFiltering, task.StageTranslating, task.StageCompleted} {
		if _, err := store.AdvanceStage(ctx, done.ID, stage, 100, ""); err != nil {
			t.Fatalf("AdvanceStage: %v", err)
		}
	}

	removed, err := store.DeleteTerminalBefore(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("DeleteTerminalBefore: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := store.GetByID(ctx, done.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.GetByID(ctx, live.ID); err != nil {
		t.Fatalf("live task removed: %v", err)
	}

	events, err := store.EventsForTask(ctx, done.ID)
	if err != nil {
		t.Fatalf("EventsForTask: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected cascade to remove events, got %d", len(events))
	}
}

func TestLatestEventsForUser(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	a := testsupport.NewTask(t, store, "user-1", "video-1", 0)
	b := testsupport.NewTask(t, store, "user-1", "video-1", 1)
	testsupport.NewTask(t, store, "user-2", "video-2", 0)

	if _, err := store.AdvanceStage(ctx, a.ID, task.StageDownloading, 5, ""); err != nil {
		t.Fatalf("AdvanceStage: %v", err)
	}
	if _, err := store.AdvanceStage(ctx, a.ID, task.StageTranscribing, 40, ""); err != nil {
		t.Fatalf("AdvanceStage: %v", err)
	}
	if _, err := store.AdvanceStage(ctx, b.ID, task.StageDownloading, 10, ""); err != nil {
		t.Fatalf("AdvanceStage: %v", err)
	}

	latest, err := store.LatestEventsForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("LatestEventsForUser: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("expected 2 snapshot events, got %d", len(latest))
	}
	byTask := make(map[string]task.Stage, len(latest))
	for _, event := range latest {
		byTask[event.TaskID] = event.Stage
	}
	if byTask[a.ID] != task.StageTranscribing || byTask[b.ID] != task.StageDownloading {
		t.Fatalf("unexpected snapshot: %#v", byTask)
	}
}

func TestStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.NewTask(t, store, "user-1", "video-1", 0)
	other := testsupport.NewTask(t, store, "user-1", "video-1", 1)
	if _, err := store.AdvanceStage(ctx, other.ID, task.StageDownloading, 0, ""); err != nil {
		t.Fatalf("AdvanceStage: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[task.StageQueued] != 1 || stats[task.StageDownloading] != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}
