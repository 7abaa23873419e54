package ipc

import "sublingo/internal/api"

// TaskView mirrors the HTTP API task DTO for internal IPC callers.
type TaskView = api.TaskView

// BackendView describes one registered model backend.
type BackendView = api.BackendView

// StopRequest stops the daemon.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and pipeline status.
type StatusResponse struct {
	Running     bool           `json:"running"`
	PID         int            `json:"pid"`
	DBPath      string         `json:"db_path"`
	LockPath    string         `json:"lock_path"`
	TaskStats   map[string]int `json:"task_stats"`
	Subscribers int            `json:"subscribers"`
	Backends    []BackendView  `json:"backends"`
}

// TaskListRequest filters task listing by stage names.
type TaskListRequest struct {
	Stages []string `json:"stages"`
}

// TaskListResponse contains task entries, oldest first.
type TaskListResponse struct {
	Tasks []TaskView `json:"tasks"`
}

// TaskDescribeRequest fetches a single task by id.
type TaskDescribeRequest struct {
	ID string `json:"id"`
}

// TaskDescribeResponse contains a single task.
type TaskDescribeResponse struct {
	Task TaskView `json:"task"`
}

// TaskAddRequest enqueues one chunk task. Model and language fields fall
// back to configured defaults when empty.
type TaskAddRequest struct {
	UserRef       string  `json:"user_ref"`
	VideoRef      string  `json:"video_ref"`
	StartSec      float64 `json:"start_sec"`
	EndSec        float64 `json:"end_sec"`
	Transcription string  `json:"transcription"`
	Translation   string  `json:"translation"`
	SourceLang    string  `json:"source_lang"`
	TargetLang    string  `json:"target_lang"`
}

// TaskAddResponse contains the created task.
type TaskAddResponse struct {
	Task TaskView `json:"task"`
}

// VideoPlanRequest enqueues one task per chunk of a whole video.
type VideoPlanRequest struct {
	UserRef   string `json:"user_ref"`
	VideoPath string `json:"video_path"`
}

// VideoPlanResponse contains the newly created chunk tasks.
type VideoPlanResponse struct {
	Tasks []TaskView `json:"tasks"`
}

// TaskRetryRequest requeues a failed or stalled task.
type TaskRetryRequest struct {
	ID string `json:"id"`
}

// TaskRetryResponse contains the requeued task.
type TaskRetryResponse struct {
	Task TaskView `json:"task"`
}

// TaskCancelRequest requests cooperative cancellation of a task.
type TaskCancelRequest struct {
	ID string `json:"id"`
}

// TaskCancelResponse indicates the cancel request was recorded.
type TaskCancelResponse struct {
	Requested bool `json:"requested"`
}

// TaskClearCompletedRequest removes completed tasks.
type TaskClearCompletedRequest struct{}

// TaskClearCompletedResponse reports number of removed tasks.
type TaskClearCompletedResponse struct {
	Removed int64 `json:"removed"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    string   `json:"schema_version"`
	TableExists      bool     `json:"table_exists"`
	ColumnsPresent   []string `json:"columns_present"`
	MissingColumns   []string `json:"missing_columns"`
	IntegrityCheck   bool     `json:"integrity_check"`
	TotalTasks       int      `json:"total_tasks"`
	Error            string   `json:"error"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
