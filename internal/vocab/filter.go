package vocab

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"sublingo/internal/models"
	"sublingo/internal/services"
)

// FilterResult carries the filtering stage's outputs: the subtitle file
// reduced to segments containing lexicon words, the matched words, and the
// per-segment complexity feeding difficulty scoring.
type FilterResult struct {
	SubtitlePath string
	Words        []*Word
	Segments     []ScoredSegment
}

// ScoredSegment pairs a retained transcript segment with its matched lemmas
// and sentence-complexity score.
type ScoredSegment struct {
	Segment    models.Segment
	Lemmas     []string
	Complexity float64
}

// Filter reduces a transcript to the segments worth studying.
type Filter struct {
	lexicon *Lexicon
	store   *Store
	workDir string
}

// NewFilter builds a filter over a loaded lexicon.
func NewFilter(lexicon *Lexicon, store *Store, workDir string) *Filter {
	return &Filter{lexicon: lexicon, store: store, workDir: workDir}
}

// Run tokenizes the transcript segments, keeps those containing at least one
// lexicon word, records each matched word for the user, and writes the
// filtered segments as an SRT file. Transcripts with no lexicon matches
// still succeed with an empty subtitle file.
func (f *Filter) Run(ctx context.Context, userRef, taskID string, segments []models.Segment) (*FilterResult, error) {
	if f.lexicon == nil {
		return nil, services.Wrap(services.ErrConfiguration, "filtering", "filter", "no lexicon loaded", nil)
	}

	result := &FilterResult{}
	seen := make(map[int64]struct{})
	for _, segment := range segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tokens := Tokenize(segment.Text)
		var lemmas []string
		lemmaSet := make(map[string]struct{})
		for _, token := range tokens {
			entry, ok := f.lexicon.Lookup(token)
			if !ok {
				continue
			}
			if _, dup := lemmaSet[entry.Lemma]; dup {
				continue
			}
			lemmaSet[entry.Lemma] = struct{}{}
			lemmas = append(lemmas, entry.Lemma)

			word, err := f.store.GetOrCreate(ctx, userRef, taskID, entry)
			if err != nil {
				return nil, err
			}
			if _, dup := seen[word.ID]; !dup {
				seen[word.ID] = struct{}{}
				result.Words = append(result.Words, word)
			}
		}
		if len(lemmas) == 0 {
			continue
		}
		result.Segments = append(result.Segments, ScoredSegment{
			Segment:    segment,
			Lemmas:     lemmas,
			Complexity: Complexity(segment.Text),
		})
	}

	path, err := f.writeSubtitles(taskID, result.Segments)
	if err != nil {
		return nil, err
	}
	result.SubtitlePath = path
	return result, nil
}

func (f *Filter) writeSubtitles(taskID string, segments []ScoredSegment) (string, error) {
	dir := filepath.Join(f.workDir, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, "filtering", "filter", "create task work dir", err)
	}
	path := filepath.Join(dir, "filtered.srt")

	var sb strings.Builder
	for i, scored := range segments {
		fmt.Fprintf(&sb, "%d\n%s --> %s\n%s\n\n",
			i+1,
			formatSRTTime(scored.Segment.StartSec),
			formatSRTTime(scored.Segment.EndSec),
			strings.TrimSpace(scored.Segment.Text))
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return "", services.Wrap(services.ErrTransient, "filtering", "filter", "write filtered subtitles", err)
	}
	return path, nil
}

// Tokenize splits text into lowercase word tokens, dropping punctuation and
// digits but keeping intra-word apostrophes and hyphens.
func Tokenize(text string) []string {
	var tokens []string
	var current strings.Builder
	flush := func() {
		token := strings.Trim(current.String(), "'-")
		if token != "" {
			tokens = append(tokens, token)
		}
		current.Reset()
	}
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || r == '\'' || r == '-' {
			current.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}

// Complexity scores a sentence in [0, 1] from mean word length and the share
// of long words. Empty text scores zero.
func Complexity(text string) float64 {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return 0
	}
	totalLen := 0
	longWords := 0
	for _, token := range tokens {
		runes := len([]rune(token))
		totalLen += runes
		if runes > 6 {
			longWords++
		}
	}
	meanLen := float64(totalLen) / float64(len(tokens))
	lengthScore := (meanLen - 3) / 5 // ~3 runes is trivial, ~8 is dense
	if lengthScore < 0 {
		lengthScore = 0
	}
	if lengthScore > 1 {
		lengthScore = 1
	}
	longRatio := float64(longWords) / float64(len(tokens))
	score := 0.6*lengthScore + 0.4*longRatio
	if score > 1 {
		score = 1
	}
	return score
}

func formatSRTTime(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	ms := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
