package vocab

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"sublingo/internal/services"
)

// Entry is one curated lexicon word. SurfaceForms holds the inflected forms
// from the CSV; the lemma itself always matches and is not repeated there.
type Entry struct {
	Lemma        string
	SurfaceForms []string
	Language     string
	CEFRLevel    string
	CorpusRank   int
}

// Lexicon maps surface forms to curated entries for one language. Curation
// and import tooling live elsewhere; this only loads the published CSV.
type Lexicon struct {
	language  string
	bySurface map[string]*Entry
	entries   []*Entry
}

var validCEFR = map[string]struct{}{
	"A1": {}, "A2": {}, "B1": {}, "B2": {}, "C1": {}, "C2": {},
}

// LoadLexicon reads a lexicon CSV with the header
// lemma,surface_forms,language,cefr_level,corpus_rank. Surface forms are
// pipe-separated; the lemma itself is always a surface form.
func LoadLexicon(path, language string) (*Lexicon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "lexicon", fmt.Sprintf("open lexicon %s", path), err)
	}
	defer f.Close()
	return ParseLexicon(f, language)
}

// ParseLexicon reads lexicon CSV rows from an arbitrary reader.
func ParseLexicon(r io.Reader, language string) (*Lexicon, error) {
	language = strings.ToLower(strings.TrimSpace(language))
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 5
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "lexicon", "read lexicon header", err)
	}
	if len(header) != 5 || strings.ToLower(strings.TrimSpace(header[0])) != "lemma" {
		return nil, services.Wrap(services.ErrConfiguration, "", "lexicon",
			fmt.Sprintf("unexpected lexicon header %v", header), nil)
	}

	lex := &Lexicon{
		language:  language,
		bySurface: make(map[string]*Entry),
	}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "", "lexicon", fmt.Sprintf("read lexicon line %d", line), err)
		}

		rowLanguage := strings.ToLower(strings.TrimSpace(record[2]))
		if rowLanguage != language {
			continue
		}
		lemma := strings.ToLower(strings.TrimSpace(record[0]))
		if lemma == "" {
			return nil, services.Wrap(services.ErrConfiguration, "", "lexicon", fmt.Sprintf("empty lemma at line %d", line), nil)
		}
		cefr := strings.ToUpper(strings.TrimSpace(record[3]))
		if cefr != "" {
			if _, ok := validCEFR[cefr]; !ok {
				return nil, services.Wrap(services.ErrConfiguration, "", "lexicon",
					fmt.Sprintf("invalid CEFR level %q at line %d", cefr, line), nil)
			}
		}
		rank := 0
		if raw := strings.TrimSpace(record[4]); raw != "" {
			rank, err = strconv.Atoi(raw)
			if err != nil || rank < 0 {
				return nil, services.Wrap(services.ErrConfiguration, "", "lexicon",
					fmt.Sprintf("invalid corpus rank %q at line %d", raw, line), nil)
			}
		}

		entry := &Entry{
			Lemma:      lemma,
			Language:   rowLanguage,
			CEFRLevel:  cefr,
			CorpusRank: rank,
		}
		lex.entries = append(lex.entries, entry)
		lex.bySurface[lemma] = entry
		for _, surface := range strings.Split(record[1], "|") {
			surface = strings.ToLower(strings.TrimSpace(surface))
			if surface != "" && surface != lemma {
				entry.SurfaceForms = append(entry.SurfaceForms, surface)
				lex.bySurface[surface] = entry
			}
		}
	}
	return lex, nil
}

// Lookup resolves a surface token to its lexicon entry.
func (l *Lexicon) Lookup(token string) (*Entry, bool) {
	entry, ok := l.bySurface[strings.ToLower(token)]
	return entry, ok
}

// Language returns the lexicon's language code.
func (l *Lexicon) Language() string {
	return l.language
}

// Len reports the number of distinct lemmas.
func (l *Lexicon) Len() int {
	return len(l.entries)
}
