package api

import (
	"time"

	"sublingo/internal/progress"
	"sublingo/internal/srs"
	"sublingo/internal/task"
)

const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// FromTask converts a stored task into its wire representation.
func FromTask(t *task.Task) TaskView {
	if t == nil {
		return TaskView{}
	}
	return TaskView{
		ID:              t.ID,
		UserRef:         t.UserRef,
		VideoRef:        t.VideoRef,
		ChunkIndex:      t.ChunkIndex,
		ChunkStartSec:   t.ChunkStartSec,
		ChunkEndSec:     t.ChunkEndSec,
		Stage:           string(t.Stage),
		ProgressPercent: t.ProgressPercent,
		Message:         t.Message,
		SourceLang:      t.SourceLang,
		TargetLang:      t.TargetLang,
		Transcription:   t.Prefs.Transcription,
		Translation:     t.Prefs.Translation,
		TranscriptPath:  t.Results.TranscriptPath,
		FilteredPath:    t.Results.FilteredSubtitlePath,
		TranslatedPath:  t.Results.TranslatedPath,
		VocabularyIDs:   append([]int64(nil), t.Results.VocabularyIDs...),
		ErrorStage:      string(t.ErrorStage),
		ErrorMessage:    t.ErrorMessage,
		Attempts:        t.Attempts,
		CancelRequested: t.CancelRequested,
		CreatedAt:       formatTime(t.CreatedAt),
		UpdatedAt:       formatTime(t.UpdatedAt),
	}
}

// FromTasks converts a task slice, skipping nil entries.
func FromTasks(tasks []*task.Task) []TaskView {
	views := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		if t == nil {
			continue
		}
		views = append(views, FromTask(t))
	}
	return views
}

// FromEvent converts a hub event into its wire representation.
func FromEvent(evt progress.Event) EventView {
	return EventView{
		Cursor:          evt.Cursor,
		TaskID:          evt.TaskID,
		Stage:           string(evt.Stage),
		ProgressPercent: evt.ProgressPercent,
		Message:         evt.Message,
		Sequence:        evt.Sequence,
		Timestamp:       formatTime(evt.Timestamp),
	}
}

// FromEvents converts a hub event batch.
func FromEvents(events []progress.Event) []EventView {
	views := make([]EventView, 0, len(events))
	for _, evt := range events {
		views = append(views, FromEvent(evt))
	}
	return views
}

// FromBlockingWord converts a scheduler gate entry.
func FromBlockingWord(w srs.BlockingWord, schedule *srs.Schedule) WordView {
	view := WordView{
		Difficulty: w.Difficulty,
		Graded:     w.Graded,
	}
	if w.Word != nil {
		view.ID = w.Word.ID
		view.Lemma = w.Word.Lemma
		view.SurfaceForms = w.Word.SurfaceForms
		view.Language = w.Word.Language
		view.CEFRLevel = w.Word.CEFRLevel
		view.CorpusRank = w.Word.CorpusRank
	}
	if schedule != nil {
		view.IntervalDays = schedule.IntervalDays
		if schedule.NextReviewAt != nil {
			view.NextReviewAt = formatTime(*schedule.NextReviewAt)
		}
	}
	return view
}

// FromSchedule converts a review schedule after grading.
func FromSchedule(schedule *srs.Schedule, grade srs.Grade) GradeResponse {
	resp := GradeResponse{Grade: string(grade)}
	if schedule == nil {
		return resp
	}
	resp.WordID = schedule.WordID
	resp.Repetitions = schedule.Repetitions
	resp.IntervalDays = schedule.IntervalDays
	resp.EaseFactor = schedule.EaseFactor
	if schedule.NextReviewAt != nil {
		resp.NextReviewAt = formatTime(*schedule.NextReviewAt)
	}
	if schedule.LastReviewedAt != nil {
		resp.LastReviewedAt = formatTime(*schedule.LastReviewedAt)
	}
	return resp
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
