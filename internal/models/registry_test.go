package models_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sublingo/internal/models"
	"sublingo/internal/services"
)

type fakeTranscriber struct {
	mu       sync.Mutex
	inFlight int
	peak     int
	block    chan struct{}
	closed   atomic.Bool
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath, lang string) ([]models.Segment, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []models.Segment{{Text: "hello", StartSec: 0, EndSec: 1}}, nil
}

func (f *fakeTranscriber) Close() error {
	f.closed.Store(true)
	return nil
}

type fakeTranslator struct{}

func (fakeTranslator) Translate(ctx context.Context, text, src, dst string) (string, error) {
	return "übersetzt: " + text, nil
}

func newRegistry(t *testing.T, transcriber models.Transcriber, limit int) *models.Registry {
	t.Helper()
	reg := models.NewRegistry()
	err := reg.RegisterTranscriber(models.Descriptor{
		Name:             "whisper-base",
		ConcurrencyLimit: limit,
	}, transcriber)
	if err != nil {
		t.Fatalf("RegisterTranscriber failed: %v", err)
	}
	if err := reg.RegisterTranslator(models.Descriptor{
		Name:             "gemini-flash",
		LanguagePair:     "en->de",
		ConcurrencyLimit: 2,
	}, fakeTranslator{}); err != nil {
		t.Fatalf("RegisterTranslator failed: %v", err)
	}
	return reg
}

func TestResolveUnknownBackendFailsFast(t *testing.T) {
	reg := newRegistry(t, &fakeTranscriber{}, 1)
	if err := reg.ValidateTranscriber("nope"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if err := reg.ValidateTranslator("nope"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if err := reg.ValidateTranscriber("whisper-base"); err != nil {
		t.Fatalf("known backend should validate: %v", err)
	}
}

func TestDuplicateRegistrationRejected(t *testing.T) {
	reg := newRegistry(t, &fakeTranscriber{}, 1)
	err := reg.RegisterTranscriber(models.Descriptor{Name: "whisper-base", ConcurrencyLimit: 1}, &fakeTranscriber{})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected duplicate registration error, got %v", err)
	}
}

func TestSemaphoreBoundsConcurrency(t *testing.T) {
	fake := &fakeTranscriber{}
	reg := newRegistry(t, fake, 1)

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := reg.Transcribe(ctx, "whisper-base", "/a.wav", "en"); err != nil {
				t.Errorf("Transcribe failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if fake.peak > 1 {
		t.Fatalf("concurrency limit violated: peak %d", fake.peak)
	}
}

func TestTryTranscribeSignalsBackpressure(t *testing.T) {
	block := make(chan struct{})
	fake := &fakeTranscriber{block: block}
	reg := newRegistry(t, fake, 1)

	ctx := context.Background()
	started := make(chan struct{})
	go func() {
		close(started)
		_, _ = reg.Transcribe(ctx, "whisper-base", "/a.wav", "en")
	}()
	<-started
	// Give the in-flight call time to take the only slot.
	deadline := time.Now().Add(time.Second)
	for {
		_, err := reg.TryTranscribe(ctx, "whisper-base", "/b.wav", "en")
		if services.IsBackpressure(err) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected backpressure error, got %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(block)
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	fake := &fakeTranscriber{block: block}
	reg := newRegistry(t, fake, 1)

	go func() { _, _ = reg.Transcribe(context.Background(), "whisper-base", "/a.wav", "en") }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := reg.Transcribe(ctx, "whisper-base", "/b.wav", "en"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestTranslate(t *testing.T) {
	reg := newRegistry(t, &fakeTranscriber{}, 1)
	out, err := reg.Translate(context.Background(), "gemini-flash", "hello", "en", "de")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if out != "übersetzt: hello" {
		t.Fatalf("unexpected translation: %q", out)
	}
}

func TestCloseReleasesBackends(t *testing.T) {
	fake := &fakeTranscriber{}
	reg := newRegistry(t, fake, 1)
	if err := reg.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !fake.closed.Load() {
		t.Fatal("backend should have been closed")
	}
}

func TestDescriptorsSorted(t *testing.T) {
	reg := newRegistry(t, &fakeTranscriber{}, 1)
	descs := reg.Descriptors()
	if len(descs) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(descs))
	}
	if descs[0].Capability != models.CapabilityTranscription {
		t.Fatalf("expected transcription first, got %s", descs[0].Capability)
	}
}
