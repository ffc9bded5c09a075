package capture

import (
	"context"
	"sync"
	"time"

	"live-subtitle-pipeline/internal/model"
)

// SyntheticSource emits silence frames on a fixed cadence. It stands in for
// the real device feed during development and tests, the same way the mock
// recognizer stands in for the cloud recognizer.
type SyntheticSource struct {
	frameDuration time.Duration
	sampleBytes   int

	mu      sync.Mutex
	closed  bool
	gapNext bool
	last    time.Time
	ticker  *time.Ticker
	done    chan struct{}
}

// NewSyntheticSource creates a source producing one silent frame per
// frameDuration. sampleBytes sets the payload size per frame (16-bit mono at
// 16kHz is 32 bytes per millisecond).
func NewSyntheticSource(frameDuration time.Duration, sampleBytes int) *SyntheticSource {
	return &SyntheticSource{
		frameDuration: frameDuration,
		sampleBytes:   sampleBytes,
		ticker:        time.NewTicker(frameDuration),
		done:          make(chan struct{}),
	}
}

// InjectGap makes the next delivery a gap event instead of a frame.
func (s *SyntheticSource) InjectGap() {
	s.mu.Lock()
	s.gapNext = true
	s.mu.Unlock()
}

// Next blocks until the next tick and returns a silence frame, or a gap if
// one was injected.
func (s *SyntheticSource) Next(ctx context.Context) (Event, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Event{}, ErrSourceClosed
	}
	if s.gapNext {
		s.gapNext = false
		s.mu.Unlock()
		return Event{Gap: true}, nil
	}
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case <-s.done:
		return Event{}, ErrSourceClosed
	case <-s.ticker.C:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Event{}, ErrSourceClosed
	}

	now := time.Now()
	if !s.last.IsZero() && now.Before(s.last) {
		// Keep CapturedAt monotone even if the wall clock steps back.
		now = s.last
	}
	s.last = now

	return Event{Frame: model.AudioFrame{
		CapturedAt: now,
		DurationMs: s.frameDuration.Milliseconds(),
		Samples:    make([]byte, s.sampleBytes),
	}}, nil
}

// Close stops the ticker and unblocks any pending Next call.
func (s *SyntheticSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.ticker.Stop()
	close(s.done)
	return nil
}
