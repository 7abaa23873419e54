package progress

import (
	"context"

	"sublingo/internal/task"
)

// SnapshotSource supplies the latest persisted event per task for a user.
type SnapshotSource interface {
	LatestEventsForUser(ctx context.Context, userRef string) ([]*task.StageEvent, error)
}

// Replay pushes the persisted snapshot through a fresh view of the user's
// stream state. A reconnecting subscriber calls this with since=0 semantics:
// every task resolves to its latest stage, so no terminal state is missed.
func Replay(ctx context.Context, source SnapshotSource, userRef string) ([]Event, error) {
	latest, err := source.LatestEventsForUser(ctx, userRef)
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(latest))
	for _, evt := range latest {
		// Snapshot events carry cursor zero: the subscriber resumes live
		// polling from the beginning of the stream and deduplicates by
		// per-task sequence number.
		events = append(events, Event{StageEvent: *evt})
	}
	return events, nil
}
