package srs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sublingo/internal/services"
)

// Schedule is one word's persisted review state. Lazily created on first
// exposure and never deleted.
type Schedule struct {
	WordID         int64      `json:"word_id"`
	Repetitions    int        `json:"repetitions"`
	IntervalDays   int        `json:"interval_days"`
	EaseFactor     float64    `json:"ease_factor"`
	NextReviewAt   *time.Time `json:"next_review_at,omitempty"`
	LastReviewedAt *time.Time `json:"last_reviewed_at,omitempty"`
	LastGrade      Grade      `json:"last_grade,omitempty"`
}

// Store persists review schedules in the shared task database.
type Store struct {
	db *sql.DB
}

// NewStore wraps the shared database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ensure creates the schedule row for a word if it does not exist yet and
// returns it either way.
func (s *Store) Ensure(ctx context.Context, wordID int64, defaultEase float64) (*Schedule, error) {
	schedule, err := s.Get(ctx, wordID)
	if err == nil {
		return schedule, nil
	}
	if !errors.Is(err, services.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO review_schedules (word_id, repetitions, interval_days, ease_factor, updated_at)
         VALUES (?, 0, 0, ?, ?)
         ON CONFLICT (word_id) DO NOTHING`,
		wordID, defaultEase, now)
	if err != nil {
		return nil, fmt.Errorf("insert review schedule: %w", err)
	}
	return s.Get(ctx, wordID)
}

// Get fetches one schedule.
func (s *Store) Get(ctx context.Context, wordID int64) (*Schedule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT word_id, repetitions, interval_days, ease_factor, next_review_at, last_reviewed_at, last_grade
         FROM review_schedules WHERE word_id = ?`, wordID)
	schedule, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "", "srs", fmt.Sprintf("no schedule for word %d", wordID), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get review schedule: %w", err)
	}
	return schedule, nil
}

// Update persists a schedule after a grade.
func (s *Store) Update(ctx context.Context, schedule *Schedule) error {
	var nextReview any
	if schedule.NextReviewAt != nil {
		nextReview = schedule.NextReviewAt.UTC().Format(time.RFC3339Nano)
	}
	var lastReviewed any
	if schedule.LastReviewedAt != nil {
		lastReviewed = schedule.LastReviewedAt.UTC().Format(time.RFC3339Nano)
	}
	var lastGrade any
	if schedule.LastGrade != "" {
		lastGrade = string(schedule.LastGrade)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE review_schedules SET repetitions = ?, interval_days = ?, ease_factor = ?,
            next_review_at = ?, last_reviewed_at = ?, last_grade = ?, updated_at = ?
         WHERE word_id = ?`,
		schedule.Repetitions, schedule.IntervalDays, schedule.EaseFactor,
		nextReview, lastReviewed, lastGrade, time.Now().UTC().Format(time.RFC3339Nano), schedule.WordID)
	if err != nil {
		return fmt.Errorf("update review schedule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "", "srs", fmt.Sprintf("no schedule for word %d", schedule.WordID), nil)
	}
	return nil
}

// DueWords returns word IDs whose next review is at or before now, for one
// user, soonest first.
func (s *Store) DueWords(ctx context.Context, userRef string, now time.Time) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.word_id FROM review_schedules r
         JOIN vocabulary_words w ON w.id = r.word_id
         WHERE w.user_ref = ? AND r.next_review_at IS NOT NULL AND r.next_review_at <= ?
         ORDER BY r.next_review_at ASC`,
		userRef, now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("due words: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan due word: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanSchedule(scanner interface{ Scan(dest ...any) error }) (*Schedule, error) {
	var (
		wordID       int64
		repetitions  int64
		intervalDays int64
		easeFactor   float64
		nextRaw      sql.NullString
		reviewedRaw  sql.NullString
		lastGrade    sql.NullString
	)
	if err := scanner.Scan(&wordID, &repetitions, &intervalDays, &easeFactor, &nextRaw, &reviewedRaw, &lastGrade); err != nil {
		return nil, err
	}
	schedule := &Schedule{
		WordID:       wordID,
		Repetitions:  int(repetitions),
		IntervalDays: int(intervalDays),
		EaseFactor:   easeFactor,
		LastGrade:    Grade(lastGrade.String),
	}
	if nextRaw.Valid && nextRaw.String != "" {
		if next, err := time.Parse(time.RFC3339Nano, nextRaw.String); err == nil {
			schedule.NextReviewAt = &next
		}
	}
	if reviewedRaw.Valid && reviewedRaw.String != "" {
		if reviewed, err := time.Parse(time.RFC3339Nano, reviewedRaw.String); err == nil {
			schedule.LastReviewedAt = &reviewed
		}
	}
	return schedule, nil
}
