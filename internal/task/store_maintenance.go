package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// DatabaseHealth reports detailed diagnostics for the task database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalTasks       int
	Error            string
}

var expectedTaskColumns = []string{
	"id", "user_ref", "video_ref", "chunk_index", "chunk_start_sec",
	"chunk_end_sec", "stage", "progress_percent", "message",
	"transcription_model", "translation_model", "source_lang", "target_lang",
	"transcript_path", "filtered_subtitle_path", "translated_path",
	"vocabulary_ids", "chunk_complexity", "error_stage", "error_message", "attempts",
	"cancel_requested", "created_at", "updated_at", "last_event_at",
}

// CheckHealth runs database diagnostics: file presence, connectivity,
// schema shape, and an integrity check.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{
		DBPath:        s.path,
		SchemaVersion: fmt.Sprintf("%d", schemaVersion),
	}

	if s.path == "" {
		return health, errors.New("task database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat task database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("task database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("task database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping task database: %w", err)
	}
	health.DatabaseReadable = true

	var tableName string
	row := s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'tasks'")
	if err := row.Scan(&tableName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			health.TableExists = false
			return health, nil
		}
		health.Error = err.Error()
		return health, fmt.Errorf("query table info: %w", err)
	}
	health.TableExists = true

	present := make(map[string]bool, len(expectedTaskColumns))
	colsRows, err := s.db.QueryContext(connCtx, "PRAGMA table_info(tasks)")
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("table info: %w", err)
	}
	defer colsRows.Close()
	for colsRows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := colsRows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("scan column info: %w", err)
		}
		present[name] = true
		health.ColumnsPresent = append(health.ColumnsPresent, name)
	}
	if err := colsRows.Err(); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("iterate column info: %w", err)
	}
	for _, col := range expectedTaskColumns {
		if !present[col] {
			health.MissingColumns = append(health.MissingColumns, col)
		}
	}

	var integrity string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")

	if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM tasks").Scan(&health.TotalTasks); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("count tasks: %w", err)
	}
	return health, nil
}

// DeleteCompleted removes all completed tasks regardless of age. Event rows
// cascade; vocabulary and schedules are keyed by user and survive.
func (s *Store) DeleteCompleted(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE stage = ?`, string(StageCompleted))
	if err != nil {
		return 0, fmt.Errorf("delete completed tasks: %w", err)
	}
	return result.RowsAffected()
}
