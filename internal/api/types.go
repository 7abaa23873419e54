package api

// TaskView describes a chunk task in a transport-friendly format.
type TaskView struct {
	ID              string  `json:"task_id"`
	UserRef         string  `json:"user_ref"`
	VideoRef        string  `json:"video_ref"`
	ChunkIndex      int     `json:"chunk_index"`
	ChunkStartSec   float64 `json:"chunk_start_sec"`
	ChunkEndSec     float64 `json:"chunk_end_sec"`
	Stage           string  `json:"stage"`
	ProgressPercent float64 `json:"progress_percent"`
	Message         string  `json:"message,omitempty"`
	SourceLang      string  `json:"source_lang"`
	TargetLang      string  `json:"target_lang"`
	Transcription   string  `json:"transcription_model"`
	Translation     string  `json:"translation_model"`
	TranscriptPath  string  `json:"transcript_path,omitempty"`
	FilteredPath    string  `json:"filtered_subtitle_path,omitempty"`
	TranslatedPath  string  `json:"translated_path,omitempty"`
	VocabularyIDs   []int64 `json:"vocabulary_ids,omitempty"`
	ErrorStage      string  `json:"error_stage,omitempty"`
	ErrorMessage    string  `json:"error_message,omitempty"`
	Attempts        int     `json:"attempts"`
	CancelRequested bool    `json:"cancel_requested"`
	CreatedAt       string  `json:"created_at,omitempty"`
	UpdatedAt       string  `json:"updated_at,omitempty"`
}

// EventView is one progress event on the wire.
type EventView struct {
	Cursor          uint64  `json:"cursor"`
	TaskID          string  `json:"task_id"`
	Stage           string  `json:"stage"`
	ProgressPercent float64 `json:"progress_percent"`
	Message         string  `json:"message,omitempty"`
	Sequence        int64   `json:"sequence_number"`
	Timestamp       string  `json:"timestamp"`
}

// EventsResponse carries a batch of progress events plus the cursor to
// resume from.
type EventsResponse struct {
	Events []EventView `json:"events"`
	Next   uint64      `json:"next"`
}

// ModelPreferences selects the backends a task should use.
type ModelPreferences struct {
	Transcription string `json:"transcription,omitempty"`
	Translation   string `json:"translation,omitempty"`
}

// CreateTaskRequest is the POST /api/tasks payload.
type CreateTaskRequest struct {
	VideoRef         string           `json:"video_ref"`
	StartSec         float64          `json:"start_sec"`
	EndSec           float64          `json:"end_sec"`
	ModelPreferences ModelPreferences `json:"model_preferences"`
	SourceLang       string           `json:"source_lang,omitempty"`
	TargetLang       string           `json:"target_lang,omitempty"`
}

// CreateTaskResponse returns the identifier of the created task.
type CreateTaskResponse struct {
	TaskID string `json:"task_id"`
}

// TaskListResponse wraps a collection of tasks.
type TaskListResponse struct {
	Tasks []TaskView `json:"tasks"`
}

// WordView describes one vocabulary word with its review state.
type WordView struct {
	ID           int64    `json:"word_id"`
	Lemma        string   `json:"lemma"`
	SurfaceForms []string `json:"surface_forms,omitempty"`
	Language     string   `json:"language"`
	CEFRLevel    string   `json:"cefr_level,omitempty"`
	CorpusRank   int      `json:"corpus_rank,omitempty"`
	Difficulty   float64  `json:"difficulty"`
	Graded       bool     `json:"graded"`
	IntervalDays int      `json:"interval_days,omitempty"`
	NextReviewAt string   `json:"next_review_at,omitempty"`
}

// ReviewResponse lists the words blocking a chunk plus the overall gate.
type ReviewResponse struct {
	TaskID   string     `json:"task_id"`
	Complete bool       `json:"complete"`
	Blocking []WordView `json:"blocking"`
}

// GradeRequest is the POST /api/reviews payload.
type GradeRequest struct {
	WordID int64  `json:"word_id"`
	Grade  string `json:"grade"`
}

// GradeResponse reports the updated schedule after grading.
type GradeResponse struct {
	WordID         int64   `json:"word_id"`
	Grade          string  `json:"grade"`
	Repetitions    int     `json:"repetitions"`
	IntervalDays   int     `json:"interval_days"`
	EaseFactor     float64 `json:"ease_factor"`
	NextReviewAt   string  `json:"next_review_at,omitempty"`
	LastReviewedAt string  `json:"last_reviewed_at,omitempty"`
}

// StatusResponse aggregates daemon runtime information.
type StatusResponse struct {
	Running     bool           `json:"running"`
	PID         int            `json:"pid"`
	DBPath      string         `json:"db_path"`
	LockPath    string         `json:"lock_path"`
	TaskStats   map[string]int `json:"task_stats"`
	Subscribers int            `json:"subscribers"`
	Backends    []BackendView  `json:"backends"`
}

// BackendView describes one registered model backend.
type BackendView struct {
	Name             string `json:"name"`
	Capability       string `json:"capability"`
	ConcurrencyLimit int    `json:"concurrency_limit"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}
