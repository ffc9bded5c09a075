// Package mock provides a scripted recognizer session for development and
// tests without cloud credentials. It simulates realistic streaming behavior:
// progressive partial transcripts and exactly one final per utterance.
package mock

import (
	"context"
	"sync"
	"time"

	"live-subtitle-pipeline/internal/asr"
	"live-subtitle-pipeline/internal/model"
)

// SimulatedUtterance is one scripted utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials []string // Progressive partial transcripts
	Final    string   // Final transcript text
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials: []string{"Good", "Good morning", "Good morning everyone"},
		Final:    "Good morning everyone and welcome",
	},
	{
		Partials: []string{"Today", "Today we will"},
		Final:    "Today we will cover three topics",
	},
	{
		Partials: []string{"First", "First the", "First the quarterly"},
		Final:    "First the quarterly results",
	},
	{
		Partials: []string{"Any", "Any questions"},
		Final:    "Any questions so far",
	},
	{
		Partials: []string{"Thank you"},
		Final:    "Thank you for joining",
	},
}

// Session implements asr.Session with scripted responses. One partial is
// emitted per received frame; once an utterance's partials are exhausted the
// final is emitted and the script advances to the next utterance.
type Session struct {
	Utterances []SimulatedUtterance
	// Latency delays each emitted transcript, simulating processing time.
	Latency time.Duration
	// FailAfterFrames, when > 0, makes the session report an error after
	// that many frames. Used to exercise the reconnect path.
	FailAfterFrames int

	mu           sync.Mutex
	cb           asr.Callback
	closed       bool
	frames       int
	elapsedMs    int64
	uttIndex     int
	partialIndex int
	uttStartMs   int64
}

// New creates a mock session cycling through DefaultUtterances.
func New() *Session {
	return &Session{Utterances: DefaultUtterances}
}

// Start begins the scripted session.
func (s *Session) Start(ctx context.Context, cb asr.Callback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = cb
	return nil
}

// SendFrame consumes one frame and emits the next scripted transcript.
func (s *Session) SendFrame(ctx context.Context, frame model.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.cb == nil || len(s.Utterances) == 0 {
		return nil
	}

	s.frames++
	s.elapsedMs += frame.DurationMs

	if s.FailAfterFrames > 0 && s.frames > s.FailAfterFrames {
		cb := s.cb
		go cb.OnError(errSimulatedDrop)
		return errSimulatedDrop
	}

	utt := s.Utterances[s.uttIndex%len(s.Utterances)]
	startMs := s.uttStartMs
	endMs := s.elapsedMs

	if s.partialIndex < len(utt.Partials) {
		text := utt.Partials[s.partialIndex]
		s.partialIndex++
		s.deliver(func(cb asr.Callback) { cb.OnPartial(text, startMs, endMs) })
		return nil
	}

	// Partials exhausted: the speaker stopped, emit the final and move on.
	s.partialIndex = 0
	s.uttIndex++
	s.uttStartMs = endMs
	s.deliver(func(cb asr.Callback) { cb.OnFinal(utt.Final, startMs, endMs) })
	return nil
}

func (s *Session) deliver(fn func(asr.Callback)) {
	cb := s.cb
	latency := s.Latency
	go func() {
		if latency > 0 {
			time.Sleep(latency)
		}
		fn(cb)
	}()
}

// Close ends the scripted session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var errSimulatedDrop = simError("simulated connection drop")

type simError string

func (e simError) Error() string { return string(e) }
