// Package asr wraps a streaming speech recognizer behind a reconnecting
// stream adapter. Recognizer backends (Google, mock) implement Session; the
// Stream type owns buffering, reconnect, and utterance identity.
package asr

import (
	"context"

	"live-subtitle-pipeline/internal/model"
)

// Callback receives transcript results from the recognizer backend.
// Offsets are milliseconds from the start of the recognizer session.
type Callback interface {
	// OnPartial is called for an interim transcript of the current utterance.
	OnPartial(text string, startMs, endMs int64)

	// OnFinal is called exactly once when the current utterance completes.
	OnFinal(text string, startMs, endMs int64)

	// OnError is called when the session fails. The session is unusable
	// afterwards; the stream adapter reconnects with a fresh one.
	OnError(err error)
}

// Session is one live connection to a recognizer backend.
type Session interface {
	// Start begins the streaming recognition session.
	Start(ctx context.Context, cb Callback) error

	// SendFrame feeds one audio frame to the recognizer.
	SendFrame(ctx context.Context, frame model.AudioFrame) error

	// Close ends the session and releases resources.
	Close() error
}

// SessionFactory builds a fresh Session for each (re)connection attempt.
type SessionFactory func(ctx context.Context) (Session, error)
