package vocab_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"sublingo/internal/models"
	"sublingo/internal/services"
	"sublingo/internal/testsupport"
	"sublingo/internal/vocab"
)

const sampleLexicon = `lemma,surface_forms,language,cefr_level,corpus_rank
ephemeral,ephemerally,en,C1,8200
ubiquitous,ubiquitously,en,C1,6400
run,runs|ran|running,en,A1,120
haus,häuser|hauses,de,A1,95
`

func loadLexicon(t *testing.T, language string) *vocab.Lexicon {
	t.Helper()
	lex, err := vocab.ParseLexicon(strings.NewReader(sampleLexicon), language)
	if err != nil {
		t.Fatalf("ParseLexicon: %v", err)
	}
	return lex
}

func TestParseLexiconFiltersLanguage(t *testing.T) {
	lex := loadLexicon(t, "en")
	if lex.Len() != 3 {
		t.Fatalf("expected 3 english lemmas, got %d", lex.Len())
	}
	if _, ok := lex.Lookup("häuser"); ok {
		t.Fatal("german surface form leaked into english lexicon")
	}
	entry, ok := lex.Lookup("Running")
	if !ok || entry.Lemma != "run" {
		t.Fatalf("surface lookup failed: %#v", entry)
	}
}

func TestParseLexiconRejectsBadCEFR(t *testing.T) {
	_, err := vocab.ParseLexicon(strings.NewReader(
		"lemma,surface_forms,language,cefr_level,corpus_rank\nword,,en,Z9,10\n"), "en")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestTokenize(t *testing.T) {
	tokens := vocab.Tokenize(`She said: "It's running - quickly!" 42 times.`)
	want := []string{"she", "said", "it's", "running", "quickly", "times"}
	if len(tokens) != len(want) {
		t.Fatalf("expected %v, got %v", want, tokens)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Fatalf("token %d: expected %q, got %q", i, want[i], tokens[i])
		}
	}
}

func TestComplexityOrdersSentences(t *testing.T) {
	simple := vocab.Complexity("the cat sat on the mat")
	dense := vocab.Complexity("ubiquitous surveillance infrastructure demonstrates considerable sophistication")
	if simple >= dense {
		t.Fatalf("expected dense sentence to score higher: simple %v dense %v", simple, dense)
	}
	if vocab.Complexity("") != 0 {
		t.Fatal("empty text must score zero")
	}
}

func TestFilterRecordsWordsAndWritesSubtitles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	words := vocab.NewStore(store.DB())
	filter := vocab.NewFilter(loadLexicon(t, "en"), words, cfg.Paths.WorkDir)

	ctx := context.Background()
	segments := []models.Segment{
		{Text: "The fame proved ephemeral.", StartSec: 0, EndSec: 2.5},
		{Text: "Nothing to study here.", StartSec: 2.5, EndSec: 4},
		{Text: "Smartphones are ubiquitous; she ran home.", StartSec: 4, EndSec: 7},
	}
	result, err := filter.Run(ctx, "user-1", "task-1", segments)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Segments) != 2 {
		t.Fatalf("expected 2 retained segments, got %d", len(result.Segments))
	}
	if len(result.Words) != 3 {
		t.Fatalf("expected 3 matched words, got %d", len(result.Words))
	}

	data, err := os.ReadFile(result.SubtitlePath)
	if err != nil {
		t.Fatalf("read subtitles: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "ephemeral") || strings.Contains(text, "Nothing to study") {
		t.Fatalf("unexpected subtitle contents:\n%s", text)
	}
	if !strings.Contains(text, "00:00:00,000 --> 00:00:02,500") {
		t.Fatalf("missing SRT timing:\n%s", text)
	}
}

func TestGetOrCreatePersistsSurfaceForms(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	words := vocab.NewStore(store.DB())
	lex := loadLexicon(t, "en")

	entry, ok := lex.Lookup("ran")
	if !ok {
		t.Fatal("lexicon lookup failed")
	}
	ctx := context.Background()
	created, err := words.GetOrCreate(ctx, "user-1", "task-1", entry)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	fetched, err := words.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	want := []string{"runs", "ran", "running"}
	if len(fetched.SurfaceForms) != len(want) {
		t.Fatalf("expected forms %v, got %v", want, fetched.SurfaceForms)
	}
	for i := range want {
		if fetched.SurfaceForms[i] != want[i] {
			t.Fatalf("form %d: expected %q, got %q", i, want[i], fetched.SurfaceForms[i])
		}
	}
}

func TestFilterDeduplicatesWordsPerUser(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	words := vocab.NewStore(store.DB())
	filter := vocab.NewFilter(loadLexicon(t, "en"), words, cfg.Paths.WorkDir)

	ctx := context.Background()
	segments := []models.Segment{
		{Text: "running and running and RUNNING", StartSec: 0, EndSec: 1},
	}
	first, err := filter.Run(ctx, "user-1", "task-1", segments)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(first.Words) != 1 {
		t.Fatalf("expected 1 word, got %d", len(first.Words))
	}

	// Same word in a later chunk reuses the existing row.
	second, err := filter.Run(ctx, "user-1", "task-2", segments)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(second.Words) != 1 || second.Words[0].ID != first.Words[0].ID {
		t.Fatalf("expected reused word row: %#v vs %#v", first.Words, second.Words)
	}
	if second.Words[0].FirstSeenTask != "task-1" {
		t.Fatalf("first seen task overwritten: %q", second.Words[0].FirstSeenTask)
	}
}

func TestFilterEmptyTranscriptSucceeds(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	words := vocab.NewStore(store.DB())
	filter := vocab.NewFilter(loadLexicon(t, "en"), words, cfg.Paths.WorkDir)

	result, err := filter.Run(context.Background(), "user-1", "task-1", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Words) != 0 || len(result.Segments) != 0 {
		t.Fatalf("expected empty result, got %#v", result)
	}
	if result.SubtitlePath == "" {
		t.Fatal("expected subtitle file even when empty")
	}
}
