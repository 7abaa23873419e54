package segment_test

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"sublingo/internal/segment"
	"sublingo/internal/services"
)

func TestPlanFiveMinuteChunks(t *testing.T) {
	chunks, err := segment.Plan("video-1", 1380, 300)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	want := [][2]float64{{0, 300}, {300, 600}, {600, 900}, {900, 1200}, {1200, 1380}}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(chunks))
	}
	for i, bounds := range want {
		if chunks[i].StartSec != bounds[0] || chunks[i].EndSec != bounds[1] {
			t.Errorf("chunk %d = [%v,%v), want [%v,%v)", i, chunks[i].StartSec, chunks[i].EndSec, bounds[0], bounds[1])
		}
		if chunks[i].Index != i {
			t.Errorf("chunk %d has index %d", i, chunks[i].Index)
		}
		if chunks[i].VideoRef != "video-1" {
			t.Errorf("chunk %d has video ref %q", i, chunks[i].VideoRef)
		}
	}
}

func TestPlanShortVideoSingleChunk(t *testing.T) {
	chunks, err := segment.Plan("clip", 42, 300)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].StartSec != 0 || chunks[0].EndSec != 42 {
		t.Fatalf("unexpected bounds [%v,%v)", chunks[0].StartSec, chunks[0].EndSec)
	}
}

func TestPlanExactMultiple(t *testing.T) {
	chunks, err := segment.Plan("v", 600, 300)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[1].DurationSec() != 300 {
		t.Fatalf("final chunk should be full size, got %v", chunks[1].DurationSec())
	}
}

func TestPlanRejectsNonPositiveInputs(t *testing.T) {
	for _, tc := range [][2]float64{{0, 300}, {-5, 300}, {100, 0}, {100, -1}} {
		if _, err := segment.Plan("v", tc[0], tc[1]); !errors.Is(err, services.ErrValidation) {
			t.Errorf("Plan(%v, %v) should fail with validation error, got %v", tc[0], tc[1], err)
		}
	}
}

func TestPlanCoversDurationWithoutGaps(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		duration := rng.Float64()*7200 + 0.5
		chunkSize := rng.Float64()*900 + 1
		chunks, err := segment.Plan("v", duration, chunkSize)
		if err != nil {
			t.Fatalf("Plan(%v, %v) failed: %v", duration, chunkSize, err)
		}

		expected := int(math.Ceil(duration / chunkSize))
		if len(chunks) != expected {
			t.Fatalf("Plan(%v, %v): expected %d chunks, got %d", duration, chunkSize, expected, len(chunks))
		}
		if chunks[0].StartSec != 0 {
			t.Fatalf("first chunk must start at 0, got %v", chunks[0].StartSec)
		}
		for j, chunk := range chunks {
			if chunk.StartSec >= chunk.EndSec {
				t.Fatalf("chunk %d has empty range [%v,%v)", j, chunk.StartSec, chunk.EndSec)
			}
			if j > 0 && chunk.StartSec != chunks[j-1].EndSec {
				t.Fatalf("gap between chunk %d and %d: %v != %v", j-1, j, chunks[j-1].EndSec, chunk.StartSec)
			}
		}
		if last := chunks[len(chunks)-1]; last.EndSec != duration {
			t.Fatalf("last chunk must end at duration %v, got %v", duration, last.EndSec)
		}
	}
}

func TestPlanDeterministic(t *testing.T) {
	first, err := segment.Plan("v", 1234.5, 301)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	second, err := segment.Plan("v", 1234.5, 301)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("nondeterministic chunk count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("chunk %d differs: %#v vs %#v", i, first[i], second[i])
		}
	}
}
