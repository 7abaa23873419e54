package task

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const taskColumns = "id, user_ref, video_ref, chunk_index, chunk_start_sec, chunk_end_sec, stage, progress_percent, message, transcription_model, translation_model, source_lang, target_lang, transcript_path, filtered_subtitle_path, translated_path, vocabulary_ids, chunk_complexity, error_stage, error_message, attempts, cancel_requested, created_at, updated_at, last_event_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id              string
		userRef         string
		videoRef        string
		chunkIndex      int64
		chunkStart      float64
		chunkEnd        float64
		stageStr        string
		progressPercent float64
		message         sql.NullString
		transcription   string
		translation     string
		sourceLang      string
		targetLang      string
		transcriptPath  sql.NullString
		filteredPath    sql.NullString
		translatedPath  sql.NullString
		vocabularyRaw   sql.NullString
		complexity      sql.NullFloat64
		errorStage      sql.NullString
		errorMessage    sql.NullString
		attempts        int64
		cancelRequested int64
		createdRaw      string
		updatedRaw      string
		lastEventRaw    string
	)

	if err := scanner.Scan(
		&id,
		&userRef,
		&videoRef,
		&chunkIndex,
		&chunkStart,
		&chunkEnd,
		&stageStr,
		&progressPercent,
		&message,
		&transcription,
		&translation,
		&sourceLang,
		&targetLang,
		&transcriptPath,
		&filteredPath,
		&translatedPath,
		&vocabularyRaw,
		&complexity,
		&errorStage,
		&errorMessage,
		&attempts,
		&cancelRequested,
		&createdRaw,
		&updatedRaw,
		&lastEventRaw,
	); err != nil {
		return nil, err
	}

	t := &Task{
		ID:              id,
		UserRef:         userRef,
		VideoRef:        videoRef,
		ChunkIndex:      int(chunkIndex),
		ChunkStartSec:   chunkStart,
		ChunkEndSec:     chunkEnd,
		Stage:           Stage(stageStr),
		ProgressPercent: progressPercent,
		Message:         message.String,
		Prefs: ModelPreferences{
			Transcription: transcription,
			Translation:   translation,
		},
		SourceLang: sourceLang,
		TargetLang: targetLang,
		Results: ResultRefs{
			TranscriptPath:       transcriptPath.String,
			FilteredSubtitlePath: filteredPath.String,
			TranslatedPath:       translatedPath.String,
			ChunkComplexity:      complexity.Float64,
		},
		ErrorStage:      Stage(errorStage.String),
		ErrorMessage:    errorMessage.String,
		Attempts:        int(attempts),
		CancelRequested: cancelRequested != 0,
	}

	if vocabularyRaw.Valid && vocabularyRaw.String != "" {
		if err := json.Unmarshal([]byte(vocabularyRaw.String), &t.Results.VocabularyIDs); err != nil {
			return nil, fmt.Errorf("decode vocabulary ids: %w", err)
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		t.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		t.UpdatedAt = updated
	}
	if lastEvent, err := parseTimeString(lastEventRaw); err == nil {
		t.LastEventAt = lastEvent
	}
	return t, nil
}

func scanEvent(scanner interface{ Scan(dest ...any) error }) (*StageEvent, error) {
	var (
		taskID          string
		userRef         string
		stageStr        string
		progressPercent float64
		message         sql.NullString
		seq             int64
		createdRaw      string
	)
	if err := scanner.Scan(&taskID, &userRef, &stageStr, &progressPercent, &message, &seq, &createdRaw); err != nil {
		return nil, err
	}
	event := &StageEvent{
		TaskID:          taskID,
		UserRef:         userRef,
		Stage:           Stage(stageStr),
		ProgressPercent: progressPercent,
		Message:         message.String,
		Sequence:        seq,
	}
	if ts, err := parseTimeString(createdRaw); err == nil {
		event.Timestamp = ts
	}
	return event, nil
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty time string")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableFloat(value float64) any {
	if value == 0 {
		return nil
	}
	return value
}

func encodeVocabularyIDs(ids []int64) (any, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("encode vocabulary ids: %w", err)
	}
	return string(data), nil
}

// isUniqueViolation detects the sqlite unique-constraint failure raised by
// the live-chunk partial index and the per-task event sequence.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
