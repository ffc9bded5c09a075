package render

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"live-subtitle-pipeline/internal/model"
	"live-subtitle-pipeline/internal/observability/logging"
	"live-subtitle-pipeline/internal/observability/metrics"
)

// PlaceholderText is shown when a translation misses its hold deadline.
const PlaceholderText = "…"

// Config tunes the reorder buffer.
type Config struct {
	// MaxHold bounds how long the buffer waits for a missing sequence
	// number while later ones are already complete.
	MaxHold time.Duration
	// Hold-time clamp for displayed subtitles, derived from utterance
	// duration.
	MinHoldTime time.Duration
	MaxHoldTime time.Duration
}

// DefaultConfig returns the standard reorder settings.
func DefaultConfig() Config {
	return Config{
		MaxHold:     3 * time.Second,
		MinHoldTime: 1200 * time.Millisecond,
		MaxHoldTime: 8 * time.Second,
	}
}

// Buffer releases translated utterances to the overlay in strict sequence
// order. Out-of-order completions wait in a map keyed by sequence number;
// a cursor advances as gaps fill. A missing sequence number that exceeds
// MaxHold while later ones are ready is replaced by a placeholder so one
// slow translation cannot stall everything behind it.
type Buffer struct {
	in      <-chan model.TranslatedUtterance
	overlay Overlay
	cfg     Config

	waiting   map[uint64]model.TranslatedUtterance
	next      uint64
	holdStart time.Time
	// skipped remembers sequence numbers emitted as placeholders so their
	// real results are logged, never re-displayed.
	skipped map[uint64]struct{}

	m      *metrics.Metrics
	logger zerolog.Logger
}

// New creates a reorder buffer reading from in and driving overlay.
func New(in <-chan model.TranslatedUtterance, overlay Overlay, cfg Config) *Buffer {
	if cfg.MaxHold <= 0 {
		cfg.MaxHold = 3 * time.Second
	}
	return &Buffer{
		in:      in,
		overlay: overlay,
		cfg:     cfg,
		waiting: make(map[uint64]model.TranslatedUtterance),
		next:    1,
		skipped: make(map[uint64]struct{}),
		m:       metrics.DefaultMetrics,
		logger:  logging.WithComponent("render"),
	}
}

// Run consumes completions until the input channel closes or the context is
// canceled, then flushes whatever is ordered-ready.
func (b *Buffer) Run(ctx context.Context) error {
	for {
		var timerC <-chan time.Time
		var timer *time.Timer
		if len(b.waiting) > 0 && !b.holdStart.IsZero() {
			wait := b.cfg.MaxHold - time.Since(b.holdStart)
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		select {
		case tu, ok := <-b.in:
			if timer != nil {
				timer.Stop()
			}
			if !ok {
				b.flush()
				return nil
			}
			b.handle(tu)

		case <-timerC:
			b.forceNext()

		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			b.flush()
			return ctx.Err()
		}
	}
}

func (b *Buffer) handle(tu model.TranslatedUtterance) {
	seq := tu.Utterance.SequenceNo

	if seq < b.next {
		// Arrived after its slot was already passed.
		if _, ok := b.skipped[seq]; ok {
			delete(b.skipped, seq)
			b.m.ReorderLateArrival.Inc()
			lg := logging.WithUtterance("render", seq, tu.Utterance.UtteranceID)
			lg.Warn().
				Str("targetText", tu.TargetText).
				Msg("Late arrival after placeholder, not re-displayed")
		}
		return
	}

	b.waiting[seq] = tu
	b.m.ReorderWaiting.Set(float64(len(b.waiting)))
	b.advance()
}

// advance emits every consecutively-ready entry starting at the cursor.
func (b *Buffer) advance() {
	for {
		tu, ok := b.waiting[b.next]
		if !ok {
			break
		}
		delete(b.waiting, b.next)
		b.emit(tu)
		b.next++
	}
	b.m.ReorderWaiting.Set(float64(len(b.waiting)))

	if len(b.waiting) == 0 {
		b.holdStart = time.Time{}
	} else if b.holdStart.IsZero() {
		// The cursor is now blocked on a missing sequence number while
		// later ones wait; start the hold clock.
		b.holdStart = time.Now()
	}
}

// forceNext gives up on the missing sequence number and shows a placeholder.
func (b *Buffer) forceNext() {
	b.skipped[b.next] = struct{}{}
	b.m.ReorderPlaceholder.Inc()
	b.logger.Warn().
		Uint64("sequenceNo", b.next).
		Dur("maxHold", b.cfg.MaxHold).
		Msg("Hold time exceeded, emitting placeholder")

	b.overlay.Show(Subtitle{
		SequenceNo:  b.next,
		TargetText:  PlaceholderText,
		Placeholder: true,
		HoldFor:     b.cfg.MinHoldTime,
	})
	b.m.SubtitlesShown.Inc()

	b.next++
	b.holdStart = time.Time{}
	b.advance()
}

// flush emits the remaining ordered-ready entries; gaps are abandoned.
func (b *Buffer) flush() {
	b.advance()
	b.waiting = make(map[uint64]model.TranslatedUtterance)
	b.m.ReorderWaiting.Set(0)
}

func (b *Buffer) emit(tu model.TranslatedUtterance) {
	b.overlay.Show(Subtitle{
		SequenceNo: tu.Utterance.SequenceNo,
		SourceText: tu.Utterance.SourceText,
		TargetText: tu.TargetText,
		HoldFor:    b.holdTime(tu.Utterance),
	})
	b.m.SubtitlesShown.Inc()
}

// holdTime derives the display duration from the spoken duration, clamped.
func (b *Buffer) holdTime(u model.Utterance) time.Duration {
	hold := time.Duration(u.DurationMs()) * time.Millisecond
	if hold < b.cfg.MinHoldTime {
		hold = b.cfg.MinHoldTime
	}
	if b.cfg.MaxHoldTime > 0 && hold > b.cfg.MaxHoldTime {
		hold = b.cfg.MaxHoldTime
	}
	return hold
}
