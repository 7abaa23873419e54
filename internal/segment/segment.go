// Package segment splits a video's duration into ordered, contiguous,
// non-overlapping time ranges. Chunk boundaries are a pure function of the
// inputs, so tasks for the same chunk index can be recreated safely after a
// restart.
package segment

import (
	"fmt"

	"sublingo/internal/services"
)

// Chunk is a fixed-duration time range of a video processed as one pipeline unit.
type Chunk struct {
	VideoRef string
	Index    int
	StartSec float64
	EndSec   float64
}

// DurationSec returns the chunk length in seconds.
func (c Chunk) DurationSec() float64 {
	return c.EndSec - c.StartSec
}

// Plan computes the chunk list for a video. All chunks except the last have
// length exactly chunkSizeSec; the last covers the remainder. A duration no
// longer than one chunk yields a single chunk spanning the whole video.
func Plan(videoRef string, durationSec, chunkSizeSec float64) ([]Chunk, error) {
	if durationSec <= 0 {
		return nil, services.Wrap(services.ErrValidation, "segment", "plan",
			fmt.Sprintf("duration must be positive, got %v", durationSec), nil)
	}
	if chunkSizeSec <= 0 {
		return nil, services.Wrap(services.ErrValidation, "segment", "plan",
			fmt.Sprintf("chunk size must be positive, got %v", chunkSizeSec), nil)
	}

	count := int(durationSec / chunkSizeSec)
	if float64(count)*chunkSizeSec < durationSec {
		count++
	}

	chunks := make([]Chunk, 0, count)
	for i := 0; i < count; i++ {
		start := float64(i) * chunkSizeSec
		end := start + chunkSizeSec
		if end > durationSec {
			end = durationSec
		}
		chunks = append(chunks, Chunk{
			VideoRef: videoRef,
			Index:    i,
			StartSec: start,
			EndSec:   end,
		})
	}
	return chunks, nil
}
