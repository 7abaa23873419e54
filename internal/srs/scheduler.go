package srs

import (
	"context"
	"fmt"
	"time"

	"sublingo/internal/config"
	"sublingo/internal/services"
	"sublingo/internal/vocab"
)

// Scheduler owns review schedules: it is the only component that mutates
// them. Difficulty decides which words block a chunk's review phase; grading
// drives the spaced-repetition schedule.
type Scheduler struct {
	words     *vocab.Store
	schedules *Store
	bounds    Bounds
	threshold float64

	now func() time.Time
}

// Option customizes a scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler builds a scheduler from the review configuration.
func NewScheduler(words *vocab.Store, schedules *Store, cfg config.Review, opts ...Option) *Scheduler {
	s := &Scheduler{
		words:     words,
		schedules: schedules,
		bounds: Bounds{
			EaseFloor:       cfg.EaseFloor,
			EaseCeiling:     cfg.EaseCeiling,
			MaxIntervalDays: cfg.MaxIntervalDays,
		},
		threshold: cfg.DifficultyThreshold,
		now:       time.Now,
	}
	if s.bounds.EaseFloor <= 0 {
		s.bounds = DefaultBounds()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordExposure lazily creates schedules for every word surfaced by a
// filtered chunk. Existing schedules are untouched.
func (s *Scheduler) RecordExposure(ctx context.Context, wordIDs []int64) error {
	for _, id := range wordIDs {
		if _, err := s.schedules.Ensure(ctx, id, s.bounds.EaseCeiling); err != nil {
			return err
		}
	}
	return nil
}

// SubmitGrade applies one grade to a word and returns the updated schedule.
// The word must belong to the given user. Skipped grades leave the long-term
// schedule untouched but are still recorded as the last grade.
func (s *Scheduler) SubmitGrade(ctx context.Context, userRef string, wordID int64, grade Grade) (*Schedule, error) {
	if _, ok := ParseGrade(string(grade)); !ok {
		return nil, services.Wrap(services.ErrValidation, "", "review", fmt.Sprintf("unknown grade %q", grade), nil)
	}
	word, err := s.words.GetByID(ctx, wordID)
	if err != nil {
		return nil, err
	}
	if word.UserRef != userRef {
		return nil, services.Wrap(services.ErrNotFound, "", "review", fmt.Sprintf("word %d does not belong to user", wordID), nil)
	}

	schedule, err := s.schedules.Ensure(ctx, wordID, s.bounds.EaseCeiling)
	if err != nil {
		return nil, err
	}

	if grade != GradeSkipped {
		state := Apply(State{
			Repetitions:  schedule.Repetitions,
			IntervalDays: schedule.IntervalDays,
			EaseFactor:   schedule.EaseFactor,
		}, grade, s.bounds)
		schedule.Repetitions = state.Repetitions
		schedule.IntervalDays = state.IntervalDays
		schedule.EaseFactor = state.EaseFactor
		next := s.now().UTC().AddDate(0, 0, state.IntervalDays)
		schedule.NextReviewAt = &next
	}
	schedule.LastGrade = grade
	reviewed := s.now().UTC()
	schedule.LastReviewedAt = &reviewed

	if err := s.schedules.Update(ctx, schedule); err != nil {
		return nil, err
	}
	return schedule, nil
}

// BlockingWord pairs a vocabulary word with its difficulty score.
type BlockingWord struct {
	Word       *vocab.Word `json:"word"`
	Difficulty float64     `json:"difficulty"`
	Graded     bool        `json:"graded"`
}

// BlockingWords filters a chunk's surfaced words down to those that gate its
// review phase: difficulty above the threshold and not already marked known.
// Complexity is the chunk-level sentence-complexity score.
func (s *Scheduler) BlockingWords(ctx context.Context, userRef string, wordIDs []int64, complexity float64) ([]BlockingWord, error) {
	words, err := s.words.GetByIDs(ctx, wordIDs)
	if err != nil {
		return nil, err
	}

	var blocking []BlockingWord
	for _, word := range words {
		if word.UserRef != userRef {
			continue
		}
		score := DifficultyScore(word.CorpusRank, word.CEFRLevel, complexity)
		if score <= s.threshold {
			continue
		}
		schedule, err := s.schedules.Get(ctx, word.ID)
		if err != nil && !services.IsNotFound(err) {
			return nil, err
		}
		graded := schedule != nil && schedule.LastGrade != "" && schedule.LastGrade != GradeSkipped
		if schedule != nil && schedule.LastGrade == GradeKnown {
			continue
		}
		blocking = append(blocking, BlockingWord{Word: word, Difficulty: score, Graded: graded})
	}
	return blocking, nil
}

// ChunkReviewComplete reports whether every blocking word of the chunk has
// received a real grade.
func (s *Scheduler) ChunkReviewComplete(ctx context.Context, userRef string, wordIDs []int64, complexity float64) (bool, error) {
	blocking, err := s.BlockingWords(ctx, userRef, wordIDs, complexity)
	if err != nil {
		return false, err
	}
	for _, word := range blocking {
		if !word.Graded {
			return false, nil
		}
	}
	return true, nil
}

// Schedule returns the stored review state for one word. Words that have
// never been exposed have no schedule and report ErrNotFound.
func (s *Scheduler) Schedule(ctx context.Context, wordID int64) (*Schedule, error) {
	return s.schedules.Get(ctx, wordID)
}

// DueWords lists the user's words due for review.
func (s *Scheduler) DueWords(ctx context.Context, userRef string) ([]int64, error) {
	return s.schedules.DueWords(ctx, userRef, s.now())
}
