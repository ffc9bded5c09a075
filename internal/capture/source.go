// Package capture defines the audio frame source consumed by the pipeline.
// The concrete device layer (sound card, virtual cable, network feed) lives
// behind the Source interface.
package capture

import (
	"context"
	"errors"

	"live-subtitle-pipeline/internal/model"
)

// ErrSourceClosed is returned by Next once the source has been closed.
var ErrSourceClosed = errors.New("capture source closed")

// Event is one delivery from the source: either an audio frame or a gap
// signal. A gap means the underlying device stalled; the pipeline treats it
// as a forced finalization boundary rather than silently dropped audio.
type Event struct {
	Frame model.AudioFrame
	Gap   bool
}

// Source is a blocking pull feed of capture events. Frames carry
// monotonically non-decreasing CapturedAt timestamps.
type Source interface {
	// Next blocks until the next event is available. It returns
	// ErrSourceClosed after Close, or the context error on cancellation.
	Next(ctx context.Context) (Event, error)

	// Close stops the source. Idempotent.
	Close() error
}
