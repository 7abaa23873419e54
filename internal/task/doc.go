// Package task persists pipeline tasks and their stage events in SQLite.
//
// A task is one video chunk's trip through the pipeline. Stage transitions
// go through AdvanceStage, which updates the task row and appends to the
// append-only stage_events log in one transaction, so the event stream never
// disagrees with task state. A partial unique index keeps at most one live
// task per (video_ref, chunk_index) pair.
//
// The store also owns the schema for vocabulary_words and review_schedules;
// the vocab and srs packages share the same database handle via DB().
// When the schema changes, update schema.sql and bump schemaVersion.
package task
