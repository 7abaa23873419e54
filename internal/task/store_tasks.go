package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sublingo/internal/services"
)

// CreateRequest carries the caller-supplied fields for a new task.
type CreateRequest struct {
	UserRef       string
	VideoRef      string
	ChunkIndex    int
	ChunkStartSec float64
	ChunkEndSec   float64
	Prefs         ModelPreferences
	SourceLang    string
	TargetLang    string
}

// Create inserts a new queued task. A second live task for the same
// (video_ref, chunk_index) pair fails with services.ErrConflict; the partial
// unique index arbitrates concurrent creates so exactly one wins.
func (s *Store) Create(ctx context.Context, req CreateRequest) (*Task, error) {
	if req.UserRef == "" || req.VideoRef == "" {
		return nil, services.Wrap(services.ErrValidation, "queued", "create", "user_ref and video_ref are required", nil)
	}
	if req.ChunkIndex < 0 {
		return nil, services.Wrap(services.ErrValidation, "queued", "create", fmt.Sprintf("chunk index %d is negative", req.ChunkIndex), nil)
	}
	if req.ChunkEndSec <= req.ChunkStartSec {
		return nil, services.Wrap(services.ErrValidation, "queued", "create",
			fmt.Sprintf("chunk bounds [%0.3f, %0.3f) are empty", req.ChunkStartSec, req.ChunkEndSec), nil)
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO tasks (
            id, user_ref, video_ref, chunk_index, chunk_start_sec, chunk_end_sec,
            stage, progress_percent, message, transcription_model, translation_model,
            source_lang, target_lang, attempts, cancel_requested,
            created_at, updated_at, last_event_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?)`,
		id,
		req.UserRef,
		req.VideoRef,
		req.ChunkIndex,
		req.ChunkStartSec,
		req.ChunkEndSec,
		StageQueued,
		0.0,
		nil,
		req.Prefs.Transcription,
		req.Prefs.Translation,
		req.SourceLang,
		req.TargetLang,
		timestamp,
		timestamp,
		timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, services.Wrap(services.ErrConflict, "queued", "create",
				fmt.Sprintf("a live task for %s chunk %d already exists", req.VideoRef, req.ChunkIndex), nil)
		}
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches one task.
func (s *Store) GetByID(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "", "get", fmt.Sprintf("task %s not found", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// List returns tasks, optionally filtered by stage, oldest first.
func (s *Store) List(ctx context.Context, stages ...Stage) ([]*Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks"
	args := make([]any, 0, len(stages))
	if len(stages) > 0 {
		query += " WHERE stage IN (?" // first placeholder
		for range stages[1:] {
			query += ", ?"
		}
		query += ")"
		for _, stage := range stages {
			args = append(args, string(stage))
		}
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// ListByUser returns all tasks belonging to one user, newest first.
func (s *Store) ListByUser(ctx context.Context, userRef string) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE user_ref = ? ORDER BY created_at DESC, id DESC", userRef)
	if err != nil {
		return nil, fmt.Errorf("list user tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// ClaimQueued atomically moves the oldest queued task to the downloading
// stage and returns it. Returns nil when the queue is empty. The
// UPDATE...RETURNING form keeps two workers from claiming the same task.
func (s *Store) ClaimQueued(ctx context.Context) (*Task, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	row := s.db.QueryRowContext(ctx,
		`UPDATE tasks SET stage = ?, updated_at = ?, last_event_at = ?
         WHERE id = (
             SELECT id FROM tasks WHERE stage = ? ORDER BY created_at ASC, id ASC LIMIT 1
         )
         RETURNING `+taskColumns,
		StageDownloading, now, now, StageQueued)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim queued task: %w", err)
	}
	return t, nil
}

// AdvanceStage records a stage transition or a progress update within the
// current stage, and appends the matching stage event in the same
// transaction. Transitions are monotonic: a request that would move the task
// backwards through the pipeline, or lower its progress within the current
// stage, is discarded and returns a nil event. Re-applying the task's
// current stage with equal or higher progress is an idempotent update,
// never an error.
func (s *Store) AdvanceStage(ctx context.Context, id string, stage Stage, progressPercent float64, message string) (*StageEvent, error) {
	targetIdx, ok := StageIndex(stage)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, string(stage), "advance", fmt.Sprintf("%q is not a pipeline stage", stage), nil)
	}
	if progressPercent < 0 {
		progressPercent = 0
	}
	if progressPercent > 100 {
		progressPercent = 100
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin advance tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := lockTask(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if current.IsTerminal() {
		return nil, services.Wrap(services.ErrValidation, string(current.Stage), "advance",
			fmt.Sprintf("task %s is already %s", id, current.Stage), nil)
	}
	if current.Stage != StageStalled {
		currentIdx, ok := StageIndex(current.Stage)
		if ok && targetIdx < currentIdx {
			// Late or replayed calls cannot move a task backwards.
			return nil, nil
		}
		if ok && targetIdx == currentIdx && progressPercent < current.ProgressPercent {
			return nil, nil
		}
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	if stage == StageCompleted {
		progressPercent = 100
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE tasks SET stage = ?, progress_percent = ?, message = ?, updated_at = ?, last_event_at = ? WHERE id = ?`,
		stage, progressPercent, nullableString(message), timestamp, timestamp, id,
	); err != nil {
		return nil, fmt.Errorf("update task stage: %w", err)
	}

	event, err := appendEvent(ctx, tx, current.UserRef, id, stage, progressPercent, message, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit advance: %w", err)
	}
	return event, nil
}

// SetResults persists the artifact refs produced by a stage. Only non-empty
// fields overwrite; earlier refs survive later failures.
func (s *Store) SetResults(ctx context.Context, id string, results ResultRefs) error {
	vocab, err := encodeVocabularyIDs(results.VocabularyIDs)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET
            transcript_path = COALESCE(?, transcript_path),
            filtered_subtitle_path = COALESCE(?, filtered_subtitle_path),
            translated_path = COALESCE(?, translated_path),
            vocabulary_ids = COALESCE(?, vocabulary_ids),
            chunk_complexity = COALESCE(?, chunk_complexity),
            updated_at = ?
         WHERE id = ?`,
		nullableString(results.TranscriptPath),
		nullableString(results.FilteredSubtitlePath),
		nullableString(results.TranslatedPath),
		vocab,
		nullableFloat(results.ChunkComplexity),
		now, id,
	)
	if err != nil {
		return fmt.Errorf("set results: %w", err)
	}
	return requireRowAffected(res, id)
}

// Fail moves a task to the error stage, recording which pipeline stage the
// failure is attributed to. Result refs from completed stages are untouched.
func (s *Store) Fail(ctx context.Context, id string, failedStage Stage, message string) (*StageEvent, error) {
	return s.finish(ctx, id, StageError, failedStage, message)
}

// MarkCancelled finalizes a cancellation acknowledged by the worker.
func (s *Store) MarkCancelled(ctx context.Context, id string, message string) (*StageEvent, error) {
	return s.finish(ctx, id, StageCancelled, "", message)
}

func (s *Store) finish(ctx context.Context, id string, outcome Stage, failedStage Stage, message string) (*StageEvent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin finish tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := lockTask(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if current.IsTerminal() {
		return nil, services.Wrap(services.ErrValidation, string(current.Stage), "finish",
			fmt.Sprintf("task %s is already %s", id, current.Stage), nil)
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	attributed := failedStage
	if attributed == "" {
		attributed = current.Stage
	}

	if outcome == StageError {
		_, err = tx.ExecContext(ctx,
			`UPDATE tasks SET stage = ?, error_stage = ?, error_message = ?, message = ?, updated_at = ?, last_event_at = ? WHERE id = ?`,
			outcome, string(attributed), nullableString(message), nullableString(message), timestamp, timestamp, id)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE tasks SET stage = ?, message = ?, updated_at = ?, last_event_at = ? WHERE id = ?`,
			outcome, nullableString(message), timestamp, timestamp, id)
	}
	if err != nil {
		return nil, fmt.Errorf("finish task: %w", err)
	}

	event, err := appendEvent(ctx, tx, current.UserRef, id, outcome, current.ProgressPercent, message, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit finish: %w", err)
	}
	return event, nil
}

// RequestCancel flips the cooperative cancel flag on a live task. Workers
// observe the flag at stage boundaries; terminal tasks reject the request.
func (s *Store) RequestCancel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET cancel_requested = 1, updated_at = ?
         WHERE id = ? AND stage NOT IN (?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano), id, StageCompleted, StageError, StageCancelled)
	if err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return services.Wrap(services.ErrValidation, "", "cancel", fmt.Sprintf("task %s already finished", id), nil)
	}
	return nil
}

// MarkStalled flags a task whose worker stopped emitting events. Stalled is
// not terminal, so the chunk slot stays occupied until retry or cancel.
func (s *Store) MarkStalled(ctx context.Context, id string, message string) (*StageEvent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin stall tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := lockTask(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if current.IsTerminal() || current.Stage == StageStalled {
		return nil, services.Wrap(services.ErrValidation, string(current.Stage), "stall",
			fmt.Sprintf("task %s is %s", id, current.Stage), nil)
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		`UPDATE tasks SET stage = ?, error_stage = ?, message = ?, updated_at = ?, last_event_at = ? WHERE id = ?`,
		StageStalled, string(current.Stage), nullableString(message), timestamp, timestamp, id,
	); err != nil {
		return nil, fmt.Errorf("mark stalled: %w", err)
	}

	event, err := appendEvent(ctx, tx, current.UserRef, id, StageStalled, current.ProgressPercent, message, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit stall: %w", err)
	}
	return event, nil
}

// Retry requeues a stalled or errored task, clearing the error fields and
// bumping the attempt counter. Completed or cancelled tasks are rejected.
func (s *Store) Retry(ctx context.Context, id string) (*Task, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET stage = ?, progress_percent = 0, message = NULL,
            error_stage = NULL, error_message = NULL, cancel_requested = 0,
            attempts = attempts + 1, updated_at = ?, last_event_at = ?
         WHERE id = ? AND stage IN (?, ?)`,
		StageQueued, now, now, id, StageStalled, StageError)
	if err != nil {
		return nil, fmt.Errorf("retry task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		current, getErr := s.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, services.Wrap(services.ErrValidation, string(current.Stage), "retry",
			fmt.Sprintf("task %s is %s and cannot be retried", id, current.Stage), nil)
	}
	return s.GetByID(ctx, id)
}

// IncrementAttempts bumps the retry counter without a stage change. Used by
// the orchestrator when a transient failure restarts a stage in place.
func (s *Store) IncrementAttempts(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE tasks SET attempts = attempts + 1, updated_at = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("increment attempts: %w", err)
	}
	return requireRowAffected(res, id)
}

// StaleTasks returns live in-flight tasks whose last event predates the cutoff.
func (s *Store) StaleTasks(ctx context.Context, cutoff time.Time) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+taskColumns+` FROM tasks
         WHERE stage NOT IN (?, ?, ?, ?, ?) AND last_event_at < ?
         ORDER BY last_event_at ASC`,
		StageQueued, StageCompleted, StageError, StageCancelled, StageStalled,
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("list stale tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// DeleteTerminalBefore removes terminal tasks older than the cutoff, along
// with their events via the cascade. Returns the number removed.
func (s *Store) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE stage IN (?, ?, ?) AND updated_at < ?`,
		StageCompleted, StageError, StageCancelled,
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("delete terminal tasks: %w", err)
	}
	return res.RowsAffected()
}

// Stats aggregates task counts per stage.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT stage, COUNT(1) FROM tasks GROUP BY stage")
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	stats := make(Stats)
	for rows.Next() {
		var stage string
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[Stage(stage)] = count
	}
	return stats, rows.Err()
}

func lockTask(ctx context.Context, tx *sql.Tx, id string) (*Task, error) {
	row := tx.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "", "get", fmt.Sprintf("task %s not found", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	return t, nil
}

func appendEvent(ctx context.Context, tx *sql.Tx, userRef, taskID string, stage Stage, progressPercent float64, message string, at time.Time) (*StageEvent, error) {
	var seq int64
	row := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) + 1 FROM stage_events WHERE task_id = ?", taskID)
	if err := row.Scan(&seq); err != nil {
		return nil, fmt.Errorf("next event seq: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO stage_events (task_id, user_ref, stage, progress_percent, message, seq, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		taskID, userRef, stage, progressPercent, nullableString(message), seq, at.Format(time.RFC3339Nano),
	); err != nil {
		return nil, fmt.Errorf("append stage event: %w", err)
	}
	return &StageEvent{
		TaskID:          taskID,
		UserRef:         userRef,
		Stage:           stage,
		ProgressPercent: progressPercent,
		Message:         message,
		Sequence:        seq,
		Timestamp:       at,
	}, nil
}

func requireRowAffected(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "", "update", fmt.Sprintf("task %s not found", id), nil)
	}
	return nil
}
