package srs

import "math"

// Grade is a learner's verdict on one word exposure.
type Grade string

const (
	GradeKnown   Grade = "known"
	GradeUnknown Grade = "unknown"
	GradeSkipped Grade = "skipped"
)

// ParseGrade validates a grade string.
func ParseGrade(value string) (Grade, bool) {
	switch Grade(value) {
	case GradeKnown, GradeUnknown, GradeSkipped:
		return Grade(value), true
	}
	return "", false
}

// State is the scheduling state carried between reviews.
type State struct {
	Repetitions  int
	IntervalDays int
	EaseFactor   float64
}

// Bounds caps the scheduling parameters.
type Bounds struct {
	EaseFloor       float64
	EaseCeiling     float64
	MaxIntervalDays int
}

const (
	seedIntervalFirst  = 1
	seedIntervalSecond = 6
	easeStep           = 0.1
	easePenalty        = 0.2
)

// DefaultBounds mirrors the stock configuration.
func DefaultBounds() Bounds {
	return Bounds{EaseFloor: 1.3, EaseCeiling: 2.5, MaxIntervalDays: 180}
}

// Apply advances a word's scheduling state for one grade.
//
// known grows the interval: the first two repetitions use the fixed seeds 1
// and 6 days, after that the interval multiplies by the ease factor. unknown
// resets repetitions and drops back to the minimum seed while penalizing the
// ease factor. skipped touches nothing; it only affects in-session ordering.
func Apply(state State, grade Grade, bounds Bounds) State {
	if bounds.EaseFloor <= 0 {
		bounds = DefaultBounds()
	}
	if state.EaseFactor < bounds.EaseFloor {
		state.EaseFactor = bounds.EaseCeiling
	}

	switch grade {
	case GradeKnown:
		state.Repetitions++
		state.EaseFactor += easeStep
		if state.EaseFactor > bounds.EaseCeiling {
			state.EaseFactor = bounds.EaseCeiling
		}
		switch {
		case state.IntervalDays < seedIntervalFirst:
			state.IntervalDays = seedIntervalFirst
		case state.IntervalDays == seedIntervalFirst:
			state.IntervalDays = seedIntervalSecond
		default:
			state.IntervalDays = int(math.Round(float64(state.IntervalDays) * state.EaseFactor))
		}
		if bounds.MaxIntervalDays > 0 && state.IntervalDays > bounds.MaxIntervalDays {
			state.IntervalDays = bounds.MaxIntervalDays
		}
	case GradeUnknown:
		state.Repetitions = 0
		state.IntervalDays = seedIntervalFirst
		state.EaseFactor -= easePenalty
		if state.EaseFactor < bounds.EaseFloor {
			state.EaseFactor = bounds.EaseFloor
		}
	case GradeSkipped:
		// No schedule change.
	}
	return state
}
