package srs

import "strings"

// cefrScores maps proficiency tiers onto [0, 1]. Unranked words sit in the
// middle rather than being assumed easy.
var cefrScores = map[string]float64{
	"A1": 0.0,
	"A2": 0.2,
	"B1": 0.4,
	"B2": 0.6,
	"C1": 0.8,
	"C2": 1.0,
}

// rankSaturation is the corpus rank at which a word counts as fully rare.
const rankSaturation = 10000

// DifficultyScore combines corpus frequency rank, CEFR level, and the
// sentence-complexity heuristic of the context the word appeared in. The
// result lands in [0, 1]; words scoring above the configured threshold are
// blocking until graded.
func DifficultyScore(corpusRank int, cefrLevel string, complexity float64) float64 {
	rankScore := 0.5
	if corpusRank > 0 {
		rankScore = float64(corpusRank) / rankSaturation
		if rankScore > 1 {
			rankScore = 1
		}
	}

	cefrScore, ok := cefrScores[strings.ToUpper(strings.TrimSpace(cefrLevel))]
	if !ok {
		cefrScore = 0.5
	}

	if complexity < 0 {
		complexity = 0
	}
	if complexity > 1 {
		complexity = 1
	}

	return 0.4*rankScore + 0.4*cefrScore + 0.2*complexity
}
