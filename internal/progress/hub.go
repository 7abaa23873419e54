package progress

import (
	"context"
	"sync"
	"time"

	"sublingo/internal/config"
	"sublingo/internal/task"
)

// Event is a stage event annotated with the owning user's stream cursor.
// The cursor orders the whole stream; Sequence still orders one task.
type Event struct {
	Cursor uint64 `json:"cursor"`
	task.StageEvent
}

// Hub fans stage events out to per-user bounded streams and wakes long-poll
// waiters when new events arrive. Delivery is at-least-once: the store keeps
// every event, so a subscriber that falls off the ring replays the persisted
// snapshot on reconnect.
type Hub struct {
	mu       sync.Mutex
	users    map[string]*userStream
	capacity int
	idleTTL  time.Duration
}

type userStream struct {
	mu          sync.Mutex
	cond        *sync.Cond
	buffer      []Event
	nextCursor  uint64
	lastTaskSeq map[string]int64
	lastActive  time.Time
}

// NewHub builds a hub from the progress configuration. Streams idle longer
// than MissedHeartbeats heartbeat intervals are pruned.
func NewHub(cfg config.Progress) *Hub {
	capacity := cfg.BufferSize
	if capacity <= 0 {
		capacity = 256
	}
	idle := time.Duration(cfg.HeartbeatInterval) * time.Second * time.Duration(max(cfg.MissedHeartbeats, 1))
	if idle <= 0 {
		idle = 45 * time.Second
	}
	return &Hub{
		users:    make(map[string]*userStream),
		capacity: capacity,
		idleTTL:  idle,
	}
}

// Publish appends an event to the owning user's stream. An event whose
// per-task sequence does not advance past the last delivered one is dropped
// so displayed state never regresses.
func (h *Hub) Publish(evt *task.StageEvent) {
	if h == nil || evt == nil || evt.UserRef == "" {
		return
	}
	stream := h.stream(evt.UserRef)

	stream.mu.Lock()
	defer stream.mu.Unlock()

	if last, ok := stream.lastTaskSeq[evt.TaskID]; ok && evt.Sequence <= last {
		return
	}
	stream.lastTaskSeq[evt.TaskID] = evt.Sequence

	stream.nextCursor++
	out := Event{Cursor: stream.nextCursor, StageEvent: *evt}
	if len(stream.buffer) == h.capacity {
		copy(stream.buffer, stream.buffer[1:])
		stream.buffer = stream.buffer[:h.capacity-1]
	}
	stream.buffer = append(stream.buffer, out)
	stream.cond.Broadcast()
}

// Fetch returns the user's events with cursor greater than since. When wait
// is true and nothing is pending, Fetch blocks until an event arrives or the
// context ends. The returned cursor resumes the stream.
func (h *Hub) Fetch(ctx context.Context, userRef string, since uint64, limit int, wait bool) ([]Event, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}
	stream := h.stream(userRef)

	cancelWait := make(chan struct{})
	if wait && ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				stream.cond.Broadcast()
			case <-cancelWait:
			}
		}()
	}
	defer close(cancelWait)

	stream.mu.Lock()
	defer stream.mu.Unlock()
	stream.lastActive = time.Now()

	for {
		events, next := stream.snapshotLocked(since, limit)
		if len(events) > 0 || !wait {
			return events, next, contextError(ctx)
		}
		if err := contextError(ctx); err != nil {
			return nil, next, err
		}
		stream.cond.Wait()
		stream.lastActive = time.Now()
		if err := contextError(ctx); err != nil {
			return nil, next, err
		}
	}
}

// Run prunes idle user streams until the context ends. A pruned subscriber
// must reconnect and replay the persisted snapshot.
func (h *Hub) Run(ctx context.Context) {
	interval := h.idleTTL / 3
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.pruneIdle(now)
		}
	}
}

// Subscribers reports the number of live user streams.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.users)
}

func (h *Hub) pruneIdle(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userRef, stream := range h.users {
		stream.mu.Lock()
		idle := now.Sub(stream.lastActive) > h.idleTTL
		if idle {
			// Wake any stragglers before dropping the stream.
			stream.cond.Broadcast()
		}
		stream.mu.Unlock()
		if idle {
			delete(h.users, userRef)
		}
	}
}

func (h *Hub) stream(userRef string) *userStream {
	h.mu.Lock()
	defer h.mu.Unlock()
	stream, ok := h.users[userRef]
	if !ok {
		stream = &userStream{
			lastTaskSeq: make(map[string]int64),
			lastActive:  time.Now(),
		}
		stream.cond = sync.NewCond(&stream.mu)
		h.users[userRef] = stream
	}
	return stream
}

func (s *userStream) snapshotLocked(since uint64, limit int) ([]Event, uint64) {
	if len(s.buffer) == 0 {
		return nil, s.nextCursor
	}
	startIdx := -1
	for i, evt := range s.buffer {
		if evt.Cursor > since {
			startIdx = i
			break
		}
	}
	if startIdx < 0 {
		return nil, s.nextCursor
	}
	end := startIdx + limit
	if end > len(s.buffer) {
		end = len(s.buffer)
	}
	out := make([]Event, end-startIdx)
	copy(out, s.buffer[startIdx:end])
	return out, out[len(out)-1].Cursor
}

func contextError(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
