package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"sublingo/internal/ipc"
)

func buildTaskStatsRows(stats map[string]int) [][]string {
	if len(stats) == 0 {
		return nil
	}
	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{formatStageLabel(key), fmt.Sprintf("%d", stats[key])})
	}
	return rows
}

func buildTaskListRows(tasks []ipc.TaskView) [][]string {
	if len(tasks) == 0 {
		return nil
	}
	sorted := make([]ipc.TaskView, len(tasks))
	copy(sorted, tasks)

	sort.Slice(sorted, func(i, j int) bool {
		ti := parseTaskTime(sorted[i].CreatedAt)
		tj := parseTaskTime(sorted[j].CreatedAt)
		if ti.Equal(tj) {
			return sorted[i].ID > sorted[j].ID
		}
		return ti.After(tj)
	})

	rows := make([][]string, 0, len(sorted))
	for _, t := range sorted {
		rows = append(rows, []string{
			shortTaskID(t.ID),
			t.UserRef,
			t.VideoRef,
			fmt.Sprintf("%d", t.ChunkIndex),
			formatStageLabel(t.Stage),
			fmt.Sprintf("%.0f%%", t.ProgressPercent),
			formatDisplayTime(t.UpdatedAt),
		})
	}
	return rows
}

func buildTaskDetailLines(t ipc.TaskView) []string {
	lines := []string{
		fmt.Sprintf("Task:          %s", t.ID),
		fmt.Sprintf("User:          %s", t.UserRef),
		fmt.Sprintf("Video:         %s", t.VideoRef),
		fmt.Sprintf("Chunk:         %d (%.1fs - %.1fs)", t.ChunkIndex, t.ChunkStartSec, t.ChunkEndSec),
		fmt.Sprintf("Stage:         %s (%.0f%%)", formatStageLabel(t.Stage), t.ProgressPercent),
		fmt.Sprintf("Languages:     %s -> %s", t.SourceLang, t.TargetLang),
		fmt.Sprintf("Models:        %s / %s", t.Transcription, t.Translation),
		fmt.Sprintf("Attempts:      %d", t.Attempts),
		fmt.Sprintf("Cancel asked:  %s", yesNo(t.CancelRequested)),
	}
	if t.Message != "" {
		lines = append(lines, fmt.Sprintf("Message:       %s", t.Message))
	}
	if t.TranscriptPath != "" {
		lines = append(lines, fmt.Sprintf("Transcript:    %s", t.TranscriptPath))
	}
	if t.FilteredPath != "" {
		lines = append(lines, fmt.Sprintf("Filtered:      %s", t.FilteredPath))
	}
	if t.TranslatedPath != "" {
		lines = append(lines, fmt.Sprintf("Translated:    %s", t.TranslatedPath))
	}
	if len(t.VocabularyIDs) > 0 {
		lines = append(lines, fmt.Sprintf("Vocabulary:    %d words", len(t.VocabularyIDs)))
	}
	if t.ErrorMessage != "" {
		stage := t.ErrorStage
		if stage == "" {
			stage = "unknown stage"
		}
		lines = append(lines, fmt.Sprintf("Error:         %s (%s)", t.ErrorMessage, stage))
	}
	lines = append(lines,
		fmt.Sprintf("Created:       %s", formatDisplayTime(t.CreatedAt)),
		fmt.Sprintf("Updated:       %s", formatDisplayTime(t.UpdatedAt)),
	)
	return lines
}

func formatStageLabel(stage string) string {
	stage = strings.TrimSpace(stage)
	if stage == "" {
		return ""
	}
	parts := strings.Split(stage, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC().Format("2006-01-02 15:04")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC().Format("2006-01-02 15:04")
	}
	return value
}

func parseTaskTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}

func shortTaskID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
