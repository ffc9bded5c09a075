// Package aggregate turns partial/final segment events into immutable,
// sequence-numbered utterances.
package aggregate

import (
	"errors"
	"fmt"
	"time"
)

// Reason records what triggered an utterance finalization.
type Reason string

const (
	// ReasonFinal - the recognizer reported an explicit final transcript.
	ReasonFinal Reason = "final"
	// ReasonDiscontinuity - a capture gap or connection loss forced the
	// boundary.
	ReasonDiscontinuity Reason = "discontinuity"
	// ReasonIdleTimeout - no update arrived within the idle window.
	ReasonIdleTimeout Reason = "idle_timeout"
	// ReasonPreempted - a new utterance started while this one was open.
	// Recognizers are expected to finalize first; this covers the ones that
	// don't.
	ReasonPreempted Reason = "preempted"
	// ReasonShutdown - the pipeline stopped while the utterance was open.
	ReasonShutdown Reason = "shutdown"
)

// Errors for invalid tracker transitions.
var (
	ErrTrackerFinalized = errors.New("utterance already finalized")
	ErrEmptyUtterance   = errors.New("utterance has no text to finalize")
)

// trackerState is the lifecycle state of one tracked utterance.
type trackerState int

const (
	stateOpen trackerState = iota
	stateFinalized
)

func (s trackerState) String() string {
	switch s {
	case stateOpen:
		return "OPEN"
	case stateFinalized:
		return "FINALIZED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// tracker accumulates partial revisions for a single utterance id.
//
// State transitions:
//
//	OPEN → FINALIZED
//	  │
//	  └── Revise() ──→ multiple times
//
// A tracker is owned by the aggregator's event loop and is not safe for
// concurrent use.
type tracker struct {
	id         string
	state      trackerState
	startMs    int64
	endMs      int64
	text       string
	lastUpdate time.Time
}

func newTracker(id string, startMs int64, now time.Time) *tracker {
	return &tracker{
		id:         id,
		state:      stateOpen,
		startMs:    startMs,
		endMs:      startMs,
		lastUpdate: now,
	}
}

// Revise applies a partial or final text revision.
func (t *tracker) Revise(text string, endMs int64, now time.Time) error {
	if t.state == stateFinalized {
		return ErrTrackerFinalized
	}
	if text != "" {
		t.text = text
	}
	if endMs > t.endMs {
		t.endMs = endMs
	}
	t.lastUpdate = now
	return nil
}

// Finalize transitions to FINALIZED and returns the accumulated text.
// Finalizing an utterance that never received text is an error; forced
// boundaries on empty trackers are silently discarded by the caller.
func (t *tracker) Finalize() (string, error) {
	if t.state == stateFinalized {
		return "", ErrTrackerFinalized
	}
	if t.text == "" {
		return "", ErrEmptyUtterance
	}
	t.state = stateFinalized
	return t.text, nil
}

// IdleSince reports how long ago the tracker was last revised.
func (t *tracker) IdleSince(now time.Time) time.Duration {
	return now.Sub(t.lastUpdate)
}

// finalizedLog remembers recently finalized utterance ids so duplicate final
// deliveries never produce a second utterance. Bounded; old entries age out.
type finalizedLog struct {
	ids  map[string]struct{}
	fifo []string
	cap  int
}

func newFinalizedLog(capacity int) *finalizedLog {
	if capacity < 1 {
		capacity = 1
	}
	return &finalizedLog{
		ids: make(map[string]struct{}, capacity),
		cap: capacity,
	}
}

func (l *finalizedLog) Add(id string) {
	if _, ok := l.ids[id]; ok {
		return
	}
	if len(l.fifo) == l.cap {
		delete(l.ids, l.fifo[0])
		l.fifo = l.fifo[1:]
	}
	l.ids[id] = struct{}{}
	l.fifo = append(l.fifo, id)
}

func (l *finalizedLog) Contains(id string) bool {
	_, ok := l.ids[id]
	return ok
}
