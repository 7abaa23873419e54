package task

import (
	"strings"
	"time"
)

// Stage represents one step of the chunk pipeline, or a terminal outcome.
type Stage string

const (
	StageQueued       Stage = "queued"
	StageDownloading  Stage = "downloading"
	StageTranscribing Stage = "transcribing"
	StageFiltering    Stage = "filtering"
	StageTranslating  Stage = "translating"
	StageCompleted    Stage = "completed"
	StageError        Stage = "error"
	StageCancelled    Stage = "cancelled"
	StageStalled      Stage = "stalled"
)

// pipelineStages is the ordered happy path. Index position defines the
// monotonic ordering AdvanceStage enforces.
var pipelineStages = []Stage{
	StageQueued,
	StageDownloading,
	StageTranscribing,
	StageFiltering,
	StageTranslating,
	StageCompleted,
}

var stageIndex = func() map[Stage]int {
	idx := make(map[Stage]int, len(pipelineStages))
	for i, stage := range pipelineStages {
		idx[stage] = i
	}
	return idx
}()

// terminalStages are immutable once reached (except cleanup/deletion).
// Stalled is deliberately excluded: it still occupies the live-task slot so a
// duplicate create cannot race a manual retry.
var terminalStages = map[Stage]struct{}{
	StageCompleted: {},
	StageError:     {},
	StageCancelled: {},
}

// PipelineStages returns the ordered happy-path stages.
func PipelineStages() []Stage {
	cp := make([]Stage, len(pipelineStages))
	copy(cp, pipelineStages)
	return cp
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	if _, ok := stageIndex[normalized]; ok {
		return normalized, true
	}
	switch normalized {
	case StageError, StageCancelled, StageStalled:
		return normalized, true
	}
	return "", false
}

// StageIndex returns the pipeline position of a stage and whether the stage
// participates in the ordered pipeline at all.
func StageIndex(stage Stage) (int, bool) {
	idx, ok := stageIndex[stage]
	return idx, ok
}

// IsTerminal reports whether a stage is immutable.
func IsTerminal(stage Stage) bool {
	_, ok := terminalStages[stage]
	return ok
}

// ResultRefs holds the artifact paths and vocabulary produced by completed
// stages. Earlier stages' refs are never cleared by later failures.
type ResultRefs struct {
	TranscriptPath       string  `json:"transcript_path,omitempty"`
	FilteredSubtitlePath string  `json:"filtered_subtitle_path,omitempty"`
	TranslatedPath       string  `json:"translated_path,omitempty"`
	VocabularyIDs        []int64 `json:"vocabulary_ids,omitempty"`
	ChunkComplexity      float64 `json:"chunk_complexity,omitempty"`
}

// ModelPreferences selects the backends a task should use.
type ModelPreferences struct {
	Transcription string `json:"transcription"`
	Translation   string `json:"translation"`
}

// Task is one chunk's trip through the pipeline. Owned exclusively by the
// orchestrator; mutated only through the store's transition methods.
type Task struct {
	ID              string
	UserRef         string
	VideoRef        string
	ChunkIndex      int
	ChunkStartSec   float64
	ChunkEndSec     float64
	Stage           Stage
	ProgressPercent float64
	Message         string
	Prefs           ModelPreferences
	SourceLang      string
	TargetLang      string
	Results         ResultRefs
	ErrorStage      Stage
	ErrorMessage    string
	Attempts        int
	CancelRequested bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastEventAt     time.Time
}

// IsTerminal reports whether the task reached an immutable stage.
func (t *Task) IsTerminal() bool {
	return IsTerminal(t.Stage)
}

// StageEvent is the append-only progress record fan-out and reconnection
// replay are built on. Sequence numbers are strictly increasing per task.
type StageEvent struct {
	TaskID          string    `json:"task_id"`
	UserRef         string    `json:"-"`
	Stage           Stage     `json:"stage"`
	ProgressPercent float64   `json:"progress_percent"`
	Message         string    `json:"message"`
	Sequence        int64     `json:"sequence_number"`
	Timestamp       time.Time `json:"timestamp"`
}

// Stats aggregates task counts per stage.
type Stats map[Stage]int
