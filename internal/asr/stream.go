package asr

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"live-subtitle-pipeline/internal/model"
	"live-subtitle-pipeline/internal/observability/logging"
	"live-subtitle-pipeline/internal/observability/metrics"
)

// StreamConfig tunes the reconnecting stream adapter.
type StreamConfig struct {
	// RingCapacity bounds how many frames are buffered while disconnected.
	RingCapacity int
	// Reconnect backoff schedule.
	ReconnectBase   time.Duration
	ReconnectFactor float64
	ReconnectCap    time.Duration
	// MaxConnectAttempts bounds consecutive failed connection attempts;
	// past it the stream stops with an error. Zero means retry forever.
	MaxConnectAttempts int
	// Transient classifies session errors as retryable. A nil classifier
	// treats every error as retryable; a non-transient error stops the
	// stream instead of reconnecting.
	Transient func(error) bool
	// EventBuffer sizes the outgoing segment event channel.
	EventBuffer int
}

// DefaultStreamConfig returns the standard adapter settings: a 5 second
// latency budget at 100ms frames and 250ms..8s exponential backoff.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		RingCapacity:       50,
		ReconnectBase:      250 * time.Millisecond,
		ReconnectFactor:    2,
		ReconnectCap:       8 * time.Second,
		MaxConnectAttempts: 10,
		EventBuffer:        256,
	}
}

// sessionError pairs a session failure with the generation of the session
// that reported it, so a dying session's late error is never charged to its
// replacement.
type sessionError struct {
	gen int
	err error
}

// Stream is the transcription stream adapter. It keeps one recognizer session
// alive, buffers frames in a bounded ring across connection loss, reconnects
// with exponential backoff, and assigns stable utterance identifiers to the
// segment events it emits.
type Stream struct {
	factory SessionFactory
	cfg     StreamConfig
	ring    *frameRing
	notify  chan struct{}
	out     chan model.SegmentEvent
	sessErr chan sessionError
	m       *metrics.Metrics
	logger  zerolog.Logger

	uttSeq  atomic.Uint64
	mu      sync.Mutex
	runCtx  context.Context
	current string
}

// NewStream creates a stream adapter around the given session factory.
func NewStream(factory SessionFactory, cfg StreamConfig) *Stream {
	if cfg.RingCapacity < 1 {
		cfg.RingCapacity = 1
	}
	if cfg.EventBuffer < 1 {
		cfg.EventBuffer = 256
	}
	if cfg.ReconnectFactor < 1 {
		cfg.ReconnectFactor = 2
	}
	s := &Stream{
		factory: factory,
		cfg:     cfg,
		ring:    newFrameRing(cfg.RingCapacity),
		notify:  make(chan struct{}, 1),
		out:     make(chan model.SegmentEvent, cfg.EventBuffer),
		sessErr: make(chan sessionError, 4),
		m:       metrics.DefaultMetrics,
		logger:  logging.WithComponent("asr-stream"),
	}
	s.rotateUtterance()
	return s
}

// Events returns the segment event output. The channel closes when Run
// returns.
func (s *Stream) Events() <-chan model.SegmentEvent {
	return s.out
}

// Feed buffers one audio frame for delivery to the recognizer. It never
// blocks: on overflow the oldest buffered frame is dropped and the loss is
// surfaced downstream as a discontinuity.
func (s *Stream) Feed(frame model.AudioFrame) {
	if dropped := s.ring.Push(frame); dropped > 0 {
		s.m.RingDrops.Inc()
	}
	s.m.FramesBuffered.Set(float64(s.ring.Len()))
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// SignalGap records a capture gap. The open utterance is force-finalized
// downstream and subsequent speech gets a fresh utterance identifier.
func (s *Stream) SignalGap() {
	s.m.RecordCaptureGap()
	s.emitBreak()
}

// BufferedFrames reports how many frames are waiting in the ring.
func (s *Stream) BufferedFrames() int {
	return s.ring.Len()
}

// DropBuffered discards any frames still waiting in the ring (fast stop).
func (s *Stream) DropBuffered() {
	s.ring.Drain()
	s.m.FramesBuffered.Set(0)
}

// Drain waits until the ring is empty or the context expires.
func (s *Stream) Drain(ctx context.Context) error {
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for s.ring.Len() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}

// Run maintains the recognizer session until the context is canceled. It
// reconnects on transient failure, resuming from the ring's current content;
// a non-transient error or an exhausted connect budget stops the stream.
func (s *Stream) Run(ctx context.Context) error {
	s.setRunCtx(ctx)
	defer close(s.out)

	attempt := 0
	failures := 0
	gen := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 0 {
			s.m.Reconnects.Inc()
			wait := s.backoff(attempt)
			s.logger.Warn().
				Int("attempt", attempt).
				Dur("backoff", wait).
				Msg("Recognizer disconnected, reconnecting")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		gen++
		sess, err := s.factory(ctx)
		if err != nil {
			if fatal := s.connectFailed(err, &failures); fatal != nil {
				return fatal
			}
			attempt++
			continue
		}
		if err := sess.Start(ctx, &sessionCallback{stream: s, gen: gen}); err != nil {
			_ = sess.Close()
			if fatal := s.connectFailed(err, &failures); fatal != nil {
				return fatal
			}
			attempt++
			continue
		}

		failures = 0
		s.m.SessionState.Set(1)
		s.logger.Info().Msg("Recognizer session connected")
		attempt = 1

		err = s.feed(ctx, sess, gen)
		s.m.SessionState.Set(0)
		_ = sess.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !s.transient(err) {
			s.logger.Error().Err(err).Msg("Recognizer failed permanently")
			return fmt.Errorf("recognizer session: %w", err)
		}
		s.logger.Warn().Err(err).Msg("Recognizer session lost")
		// A drop mid-utterance is a forced finalization boundary.
		s.emitBreak()
	}
}

// connectFailed applies the retry policy to a factory or Start error. The
// returned error, when non-nil, stops the stream.
func (s *Stream) connectFailed(err error, failures *int) error {
	if !s.transient(err) {
		s.logger.Error().Err(err).Msg("Recognizer connect failed permanently")
		return fmt.Errorf("recognizer connect: %w", err)
	}
	*failures++
	if s.cfg.MaxConnectAttempts > 0 && *failures >= s.cfg.MaxConnectAttempts {
		s.logger.Error().
			Err(err).
			Int("attempts", *failures).
			Msg("Recognizer unavailable, connect budget exhausted")
		return fmt.Errorf("recognizer unavailable after %d attempts: %w", *failures, err)
	}
	return nil
}

func (s *Stream) transient(err error) bool {
	if s.cfg.Transient == nil {
		return true
	}
	return s.cfg.Transient(err)
}

// feed delivers frames from the ring to the session until it fails.
func (s *Stream) feed(ctx context.Context, sess Session, gen int) error {
	// Frames buffered across a reconnect must replay even though their
	// notify signal was consumed by the previous session.
	if s.ring.Len() > 0 {
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case se := <-s.sessErr:
			if se.gen != gen {
				// Late report from an already-replaced session.
				continue
			}
			return se.err
		case <-s.notify:
		}

		for {
			frame, ok := s.ring.Pop()
			if !ok {
				break
			}
			s.m.FramesBuffered.Set(float64(s.ring.Len()))
			if frame.Discontinuity {
				s.m.Discontinuities.Inc()
				s.emitBreak()
			}
			if err := sess.SendFrame(ctx, frame); err != nil {
				s.ring.Unpop(frame)
				return err
			}
		}
	}
}

func (s *Stream) backoff(attempt int) time.Duration {
	wait := s.cfg.ReconnectBase
	for i := 1; i < attempt; i++ {
		wait = time.Duration(float64(wait) * s.cfg.ReconnectFactor)
		if wait >= s.cfg.ReconnectCap {
			return s.cfg.ReconnectCap
		}
	}
	if wait > s.cfg.ReconnectCap {
		wait = s.cfg.ReconnectCap
	}
	return wait
}

func (s *Stream) rotateUtterance() string {
	id := fmt.Sprintf("utt-%d", s.uttSeq.Add(1))
	s.mu.Lock()
	s.current = id
	s.mu.Unlock()
	return id
}

func (s *Stream) currentUtterance() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Stream) setRunCtx(ctx context.Context) {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()
}

func (s *Stream) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx == nil {
		return context.Background()
	}
	return s.runCtx
}

// emitBreak publishes a discontinuity marker for the current utterance and
// rotates to a fresh identifier for whatever speech follows.
func (s *Stream) emitBreak() {
	ev := model.SegmentEvent{
		UtteranceID:   s.currentUtterance(),
		Discontinuity: true,
	}
	s.rotateUtterance()
	s.emit(ev)
}

func (s *Stream) emit(ev model.SegmentEvent) {
	select {
	case s.out <- ev:
	case <-s.context().Done():
	}
}

// onPartial forwards an interim transcript under the current utterance id.
func (s *Stream) onPartial(text string, startMs, endMs int64) {
	if text == "" {
		s.m.ProtocolFaults.Inc()
		return
	}
	s.m.RecordSegment(false)
	s.emit(model.SegmentEvent{
		UtteranceID: s.currentUtterance(),
		StartMs:     startMs,
		EndMs:       endMs,
		Text:        text,
		IsFinal:     false,
	})
}

// onFinal forwards the completed transcript and rotates the utterance id.
func (s *Stream) onFinal(text string, startMs, endMs int64) {
	if text == "" {
		// An empty final still closes the utterance; treat it as a break.
		s.m.ProtocolFaults.Inc()
		s.emitBreak()
		return
	}
	s.m.RecordSegment(true)
	id := s.currentUtterance()
	s.rotateUtterance()
	s.emit(model.SegmentEvent{
		UtteranceID: id,
		StartMs:     startMs,
		EndMs:       endMs,
		Text:        text,
		IsFinal:     true,
	})
}

func (s *Stream) onSessionError(gen int, err error) {
	select {
	case s.sessErr <- sessionError{gen: gen, err: err}:
	default:
	}
}

// sessionCallback binds one session's callbacks to its generation. Invoked
// from session receive goroutines.
type sessionCallback struct {
	stream *Stream
	gen    int
}

func (c *sessionCallback) OnPartial(text string, startMs, endMs int64) {
	c.stream.onPartial(text, startMs, endMs)
}

func (c *sessionCallback) OnFinal(text string, startMs, endMs int64) {
	c.stream.onFinal(text, startMs, endMs)
}

func (c *sessionCallback) OnError(err error) {
	c.stream.onSessionError(c.gen, err)
}
