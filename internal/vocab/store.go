package vocab

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"sublingo/internal/services"
)

// Word is a vocabulary word surfaced for one user. (user_ref, lemma,
// language) is unique; re-encountering a word reuses the existing row.
type Word struct {
	ID            int64    `json:"id"`
	UserRef       string   `json:"user_ref"`
	Lemma         string   `json:"lemma"`
	SurfaceForms  []string `json:"surface_forms,omitempty"`
	Language      string   `json:"language"`
	CEFRLevel     string   `json:"cefr_level,omitempty"`
	CorpusRank    int      `json:"corpus_rank,omitempty"`
	FirstSeenTask string   `json:"first_seen_task,omitempty"`
}

// Store persists vocabulary words in the shared task database.
type Store struct {
	db *sql.DB
}

// NewStore wraps the shared database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetOrCreate returns the user's word row for a lemma, creating it on first
// encounter. A concurrent insert losing the unique-index race falls back to
// the winner's row.
func (s *Store) GetOrCreate(ctx context.Context, userRef, taskID string, entry *Entry) (*Word, error) {
	if userRef == "" || entry == nil || entry.Lemma == "" {
		return nil, services.Wrap(services.ErrValidation, "filtering", "vocab", "user ref and lemma are required", nil)
	}

	word, err := s.find(ctx, userRef, entry.Lemma, entry.Language)
	if err == nil {
		return word, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find vocabulary word: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO vocabulary_words (user_ref, lemma, surface_forms, language, cefr_level, corpus_rank, first_seen_task, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userRef, entry.Lemma, nullableString(strings.Join(entry.SurfaceForms, "|")), entry.Language,
		nullableString(entry.CEFRLevel), nullableInt(entry.CorpusRank), nullableString(taskID), now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return s.find(ctx, userRef, entry.Lemma, entry.Language)
		}
		return nil, fmt.Errorf("insert vocabulary word: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches one word row.
func (s *Store) GetByID(ctx context.Context, id int64) (*Word, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_ref, lemma, surface_forms, language, cefr_level, corpus_rank, first_seen_task
         FROM vocabulary_words WHERE id = ?`, id)
	word, err := scanWord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "", "vocab", fmt.Sprintf("vocabulary word %d not found", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get vocabulary word: %w", err)
	}
	return word, nil
}

// GetByIDs fetches multiple word rows, preserving input order and skipping
// missing IDs.
func (s *Store) GetByIDs(ctx context.Context, ids []int64) ([]*Word, error) {
	words := make([]*Word, 0, len(ids))
	for _, id := range ids {
		word, err := s.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				continue
			}
			return nil, err
		}
		words = append(words, word)
	}
	return words, nil
}

func (s *Store) find(ctx context.Context, userRef, lemma, language string) (*Word, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_ref, lemma, surface_forms, language, cefr_level, corpus_rank, first_seen_task
         FROM vocabulary_words WHERE user_ref = ? AND lemma = ? AND language = ?`,
		userRef, lemma, language)
	return scanWord(row)
}

func scanWord(scanner interface{ Scan(dest ...any) error }) (*Word, error) {
	var (
		id        int64
		userRef   string
		lemma     string
		forms     sql.NullString
		language  string
		cefr      sql.NullString
		rank      sql.NullInt64
		firstSeen sql.NullString
	)
	if err := scanner.Scan(&id, &userRef, &lemma, &forms, &language, &cefr, &rank, &firstSeen); err != nil {
		return nil, err
	}
	word := &Word{
		ID:            id,
		UserRef:       userRef,
		Lemma:         lemma,
		Language:      language,
		CEFRLevel:     cefr.String,
		CorpusRank:    int(rank.Int64),
		FirstSeenTask: firstSeen.String,
	}
	if forms.Valid && forms.String != "" {
		word.SurfaceForms = strings.Split(forms.String, "|")
	}
	return word, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt(value int) any {
	if value <= 0 {
		return nil
	}
	return value
}
