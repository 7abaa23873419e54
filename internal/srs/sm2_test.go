package srs

import (
	"math/rand"
	"testing"
)

func TestApplySeedSequence(t *testing.T) {
	bounds := DefaultBounds()
	state := State{EaseFactor: 2.5}

	state = Apply(state, GradeUnknown, bounds)
	if state.IntervalDays != 1 || state.Repetitions != 0 {
		t.Fatalf("after unknown: %+v", state)
	}
	state = Apply(state, GradeKnown, bounds)
	if state.IntervalDays != 6 || state.Repetitions != 1 {
		t.Fatalf("after first known: %+v", state)
	}
	state = Apply(state, GradeKnown, bounds)
	if state.IntervalDays != 15 || state.Repetitions != 2 {
		t.Fatalf("after second known: %+v", state)
	}
}

func TestApplyKnownNeverShrinksInterval(t *testing.T) {
	bounds := DefaultBounds()
	rng := rand.New(rand.NewSource(7))
	state := State{EaseFactor: 2.5}
	for i := 0; i < 500; i++ {
		grade := GradeKnown
		if rng.Intn(4) == 0 {
			grade = GradeUnknown
		}
		before := state
		state = Apply(state, grade, bounds)
		if grade == GradeKnown && state.IntervalDays < before.IntervalDays {
			t.Fatalf("known shrank interval: %+v -> %+v", before, state)
		}
		if state.EaseFactor < bounds.EaseFloor-1e-9 {
			t.Fatalf("ease factor below floor: %+v", state)
		}
		if state.EaseFactor > bounds.EaseCeiling+1e-9 {
			t.Fatalf("ease factor above ceiling: %+v", state)
		}
		if state.IntervalDays > bounds.MaxIntervalDays {
			t.Fatalf("interval above cap: %+v", state)
		}
	}
}

func TestApplyUnknownResets(t *testing.T) {
	bounds := DefaultBounds()
	state := State{Repetitions: 5, IntervalDays: 90, EaseFactor: 2.5}
	state = Apply(state, GradeUnknown, bounds)
	if state.Repetitions != 0 || state.IntervalDays != 1 {
		t.Fatalf("unknown did not reset: %+v", state)
	}
	if state.EaseFactor != 2.3 {
		t.Fatalf("expected ease 2.3, got %v", state.EaseFactor)
	}
}

func TestApplySkippedChangesNothing(t *testing.T) {
	bounds := DefaultBounds()
	state := State{Repetitions: 3, IntervalDays: 14, EaseFactor: 2.1}
	after := Apply(state, GradeSkipped, bounds)
	if after != state {
		t.Fatalf("skipped mutated state: %+v -> %+v", state, after)
	}
}

func TestApplyCapsInterval(t *testing.T) {
	bounds := Bounds{EaseFloor: 1.3, EaseCeiling: 2.5, MaxIntervalDays: 30}
	state := State{Repetitions: 4, IntervalDays: 28, EaseFactor: 2.5}
	state = Apply(state, GradeKnown, bounds)
	if state.IntervalDays != 30 {
		t.Fatalf("expected capped interval 30, got %d", state.IntervalDays)
	}
}

func TestDifficultyScoreOrdersWords(t *testing.T) {
	easy := DifficultyScore(100, "A1", 0.1)
	hard := DifficultyScore(9500, "C2", 0.9)
	if easy >= hard {
		t.Fatalf("expected rare C2 word to score higher: easy %v hard %v", easy, hard)
	}
	unranked := DifficultyScore(0, "", 0.5)
	if unranked <= 0 || unranked >= 1 {
		t.Fatalf("unranked word should land mid-range, got %v", unranked)
	}
}
