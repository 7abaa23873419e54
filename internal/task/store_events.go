package task

import (
	"context"
	"fmt"
)

// EventsForTask returns a task's stage events in sequence order.
func (s *Store) EventsForTask(ctx context.Context, taskID string) ([]*StageEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, user_ref, stage, progress_percent, message, seq, created_at
         FROM stage_events WHERE task_id = ? ORDER BY seq ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task events: %w", err)
	}
	defer rows.Close()

	var events []*StageEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// LatestEventsForUser returns the most recent event of every task a user
// owns. A subscriber that reconnects replays these as its snapshot, so a
// missed intermediate stage still resolves to the latest state.
func (s *Store) LatestEventsForUser(ctx context.Context, userRef string) ([]*StageEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.task_id, e.user_ref, e.stage, e.progress_percent, e.message, e.seq, e.created_at
         FROM stage_events e
         JOIN (
             SELECT task_id, MAX(seq) AS max_seq FROM stage_events
             WHERE user_ref = ? GROUP BY task_id
         ) latest ON latest.task_id = e.task_id AND latest.max_seq = e.seq
         ORDER BY e.created_at ASC, e.task_id ASC`, userRef)
	if err != nil {
		return nil, fmt.Errorf("latest user events: %w", err)
	}
	defer rows.Close()

	var events []*StageEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
