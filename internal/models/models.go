package models

import "context"

// Capability identifies what a model backend can do.
type Capability string

const (
	CapabilityTranscription Capability = "transcription"
	CapabilityTranslation   Capability = "translation"
)

// Segment is one timed span of transcribed speech.
type Segment struct {
	Text     string  `json:"text"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
}

// Transcriber converts an extracted audio file into ordered timed segments.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, lang string) ([]Segment, error)
}

// Translator converts text between a fixed language pair.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// Descriptor describes a registered backend. Registered at startup,
// immutable thereafter.
type Descriptor struct {
	Name             string
	Capability       Capability
	LanguagePair     string
	ConcurrencyLimit int
}
