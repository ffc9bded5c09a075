package aggregate

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"live-subtitle-pipeline/internal/model"
	"live-subtitle-pipeline/internal/observability/logging"
	"live-subtitle-pipeline/internal/observability/metrics"
)

// Config tunes the aggregator.
type Config struct {
	// IdleTimeout force-finalizes an open utterance with no updates.
	IdleTimeout time.Duration
	// QueueDepth bounds the output channel; on overflow the oldest queued
	// utterance is dropped and counted, never blocking the event loop.
	QueueDepth int
}

// DefaultConfig returns the standard aggregator settings.
func DefaultConfig() Config {
	return Config{
		IdleTimeout: 2 * time.Second,
		QueueDepth:  64,
	}
}

// Aggregator consumes segment events and emits finalized utterances with
// strictly increasing sequence numbers. It is the sole owner and writer of
// the sequence counter; at most one utterance is open at a time.
type Aggregator struct {
	in  <-chan model.SegmentEvent
	out chan model.Utterance
	cfg Config

	seq       uint64
	open      *tracker
	finalized *finalizedLog

	m      *metrics.Metrics
	logger zerolog.Logger
}

// New creates an aggregator reading from the given segment event stream.
func New(in <-chan model.SegmentEvent, cfg Config) *Aggregator {
	if cfg.QueueDepth < 1 {
		cfg.QueueDepth = 64
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 2 * time.Second
	}
	return &Aggregator{
		in:        in,
		out:       make(chan model.Utterance, cfg.QueueDepth),
		cfg:       cfg,
		finalized: newFinalizedLog(16),
		m:         metrics.DefaultMetrics,
		logger:    logging.WithComponent("aggregator"),
	}
}

// Utterances returns the finalized utterance output. The channel closes when
// Run returns.
func (a *Aggregator) Utterances() <-chan model.Utterance {
	return a.out
}

// Run processes events until the input channel closes or the context is
// canceled. Any open utterance is force-finalized on the way out.
func (a *Aggregator) Run(ctx context.Context) error {
	defer close(a.out)

	tick := time.NewTicker(a.cfg.IdleTimeout / 4)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			a.finalizeOpen(ReasonShutdown)
			return ctx.Err()

		case ev, ok := <-a.in:
			if !ok {
				a.finalizeOpen(ReasonShutdown)
				return nil
			}
			a.handle(ev)

		case <-tick.C:
			if a.open != nil && a.open.IdleSince(time.Now()) >= a.cfg.IdleTimeout {
				a.finalizeOpen(ReasonIdleTimeout)
			}
		}
	}
}

func (a *Aggregator) handle(ev model.SegmentEvent) {
	if ev.Discontinuity {
		a.finalizeOpen(ReasonDiscontinuity)
		if ev.Text == "" {
			return
		}
	}

	// Duplicate delivery of an already-finalized utterance must not produce
	// a second one.
	if a.finalized.Contains(ev.UtteranceID) {
		a.logger.Debug().
			Str("utteranceId", ev.UtteranceID).
			Msg("Dropping event for finalized utterance")
		return
	}
	if ev.UtteranceID == "" || (ev.Text == "" && !ev.IsFinal) {
		a.m.ProtocolFaults.Inc()
		return
	}

	now := time.Now()

	if a.open != nil && a.open.id != ev.UtteranceID {
		// Recognizers are expected to finalize before starting a new
		// utterance; force the boundary if one didn't.
		a.finalizeOpen(ReasonPreempted)
	}
	if a.open == nil {
		a.open = newTracker(ev.UtteranceID, ev.StartMs, now)
	}

	if err := a.open.Revise(ev.Text, ev.EndMs, now); err != nil {
		a.m.ProtocolFaults.Inc()
		return
	}

	if ev.IsFinal {
		a.finalizeOpen(ReasonFinal)
	}
}

// finalizeOpen closes the open utterance, assigns it the next sequence
// number, and emits it. Open utterances that never accumulated text are
// discarded without consuming a sequence number.
func (a *Aggregator) finalizeOpen(reason Reason) {
	if a.open == nil {
		return
	}
	t := a.open
	a.open = nil

	text, err := t.Finalize()
	if err != nil {
		// Empty utterance: nothing worth a subtitle.
		return
	}

	a.seq++
	a.finalized.Add(t.id)
	a.m.RecordFinalized(string(reason))

	u := model.Utterance{
		SequenceNo:  a.seq,
		UtteranceID: t.id,
		StartMs:     t.startMs,
		EndMs:       t.endMs,
		SourceText:  text,
	}

	lg := logging.WithUtterance("aggregator", u.SequenceNo, u.UtteranceID)
	lg.Debug().
		Str("reason", string(reason)).
		Str("text", text).
		Msg("Utterance finalized")

	a.send(u)
}

// send enqueues without ever blocking the event loop: on overflow the oldest
// queued utterance is dropped and counted.
func (a *Aggregator) send(u model.Utterance) {
	for {
		select {
		case a.out <- u:
			return
		default:
		}
		select {
		case dropped := <-a.out:
			a.m.UtteranceQueueDrops.Inc()
			a.logger.Warn().
				Uint64("sequenceNo", dropped.SequenceNo).
				Msg("Utterance queue overflow, dropping oldest")
		default:
		}
	}
}
