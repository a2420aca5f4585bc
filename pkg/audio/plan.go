// Package audio splits long recordings into bounded, contiguous chunks for
// speech-to-text providers that cap input length.
package audio

import (
	"errors"
	"time"
)

// DefaultMaxChunkDuration matches the five minute segments the transcription
// providers handle comfortably.
const DefaultMaxChunkDuration = 5 * time.Minute

type Span struct {
	Start    time.Duration
	Duration time.Duration
}

// PlanChunks divides total into ceil(total/max) contiguous spans. Every span but the
// last is exactly max long. A total at or below max yields a single span.
func PlanChunks(total time.Duration, max time.Duration) ([]Span, error) {
	ranges, err := planRanges(int64(total), int64(max))
	if err != nil {
		return nil, err
	}
	spans := make([]Span, len(ranges))
	for i, r := range ranges {
		spans[i] = Span{Start: time.Duration(r.start), Duration: time.Duration(r.length)}
	}
	return spans, nil
}

type span64 struct {
	start  int64
	length int64
}

func planRanges(total int64, max int64) ([]span64, error) {
	if max <= 0 {
		return nil, errors.New("max chunk length must be positive")
	}
	if total < 0 {
		return nil, errors.New("total length must not be negative")
	}
	if total <= max {
		return []span64{{start: 0, length: total}}, nil
	}

	count := (total + max - 1) / max
	out := make([]span64, 0, count)
	for start := int64(0); start < total; start += max {
		length := max
		if start+length > total {
			length = total - start
		}
		out = append(out, span64{start: start, length: length})
	}
	return out, nil
}
