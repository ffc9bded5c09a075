// Package history durably logs every transcript/translation pair, decoupled
// from the render path.
package history

import (
	"context"

	"live-subtitle-pipeline/internal/model"
)

// Sink is an append-only store for history records. Append returns only
// after the record is durably accepted.
type Sink interface {
	Append(ctx context.Context, rec model.HistoryRecord) error
	Close() error
}

// MultiSink appends to several sinks in order. The first error is returned
// but remaining sinks still receive the record.
type MultiSink []Sink

// Append writes the record to every sink.
func (m MultiSink) Append(ctx context.Context, rec model.HistoryRecord) error {
	var first error
	for _, s := range m {
		if err := s.Append(ctx, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every sink.
func (m MultiSink) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
