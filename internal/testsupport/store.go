package testsupport

import (
	"context"
	"testing"

	"sublingo/internal/config"
	"sublingo/internal/task"
)

// MustOpenStore opens a task.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *task.Store {
	t.Helper()

	store, err := task.Open(cfg)
	if err != nil {
		t.Fatalf("task.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewTask creates a queued task for tests using the provided store.
func NewTask(t testing.TB, store *task.Store, userRef, videoRef string, chunkIndex int) *task.Task {
	t.Helper()

	created, err := store.Create(context.Background(), task.CreateRequest{
		UserRef:       userRef,
		VideoRef:      videoRef,
		ChunkIndex:    chunkIndex,
		ChunkStartSec: float64(chunkIndex) * 300,
		ChunkEndSec:   float64(chunkIndex)*300 + 300,
		Prefs: task.ModelPreferences{
			Transcription: "whisper-base",
			Translation:   "gemini-flash",
		},
		SourceLang: "en",
		TargetLang: "de",
	})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return created
}
