package language

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"sublingo/internal/services"
)

// Pair is a validated source/target language combination for translation.
type Pair struct {
	Source string
	Target string
}

// String renders the pair in the "en->de" form used in backend descriptors.
func (p Pair) String() string {
	return p.Source + "->" + p.Target
}

// Normalize canonicalizes a language code ("EN", "eng", "en-US") to its
// ISO 639-1 base form. Unrecognized codes fail with a configuration error.
func Normalize(code string) (string, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return "", services.Wrap(services.ErrConfiguration, "", "normalize language", "empty language code", nil)
	}
	tag, err := language.Parse(trimmed)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "", "normalize language",
			"unrecognized language code "+trimmed, err)
	}
	base, _ := tag.Base()
	return base.String(), nil
}

// NewPair validates and normalizes a source/target combination.
func NewPair(source, target string) (Pair, error) {
	src, err := Normalize(source)
	if err != nil {
		return Pair{}, err
	}
	dst, err := Normalize(target)
	if err != nil {
		return Pair{}, err
	}
	if src == dst {
		return Pair{}, services.Wrap(services.ErrConfiguration, "", "language pair",
			"source and target language must differ", nil)
	}
	return Pair{Source: src, Target: dst}, nil
}

// DisplayName returns the English name of a language code for logs and
// prompts ("de" -> "German"). Falls back to the raw code when unknown.
func DisplayName(code string) string {
	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil {
		return code
	}
	name := display.English.Tags().Name(tag)
	if name == "" {
		return code
	}
	return name
}
