package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"live-subtitle-pipeline/internal/model"
)

// memorySink records appends in order. Test helper.
type memorySink struct {
	// failFirst fails the first N appends per record.
	failFirst int

	mu       sync.Mutex
	records  []model.HistoryRecord
	attempts map[uint64]int
	closed   bool
}

func newMemorySink(failFirst int) *memorySink {
	return &memorySink{
		failFirst: failFirst,
		attempts:  make(map[uint64]int),
	}
}

var errSinkUnavailable = errors.New("sink unavailable")

func (s *memorySink) Append(ctx context.Context, rec model.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[rec.SequenceNo]++
	if s.attempts[rec.SequenceNo] <= s.failFirst {
		return errSinkUnavailable
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memorySink) snapshot() []model.HistoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.HistoryRecord, len(s.records))
	copy(out, s.records)
	return out
}

func translated(seq uint64, source, target string) model.TranslatedUtterance {
	return model.TranslatedUtterance{
		Utterance: model.Utterance{
			SequenceNo: seq,
			SourceText: source,
		},
		TargetText: target,
		TargetLang: "es",
		OK:         true,
	}
}

func runLogger(t *testing.T, sink Sink, cfg LoggerConfig) (chan<- model.TranslatedUtterance, <-chan struct{}) {
	t.Helper()
	in := make(chan model.TranslatedUtterance, 16)
	l := NewLogger(in, sink, cfg)
	done := make(chan struct{})
	go func() {
		_ = l.Run(context.Background())
		close(done)
	}()
	return in, done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("logger did not stop")
	}
}

func TestLogger_AppendsInArrivalOrder(t *testing.T) {
	sink := newMemorySink(0)
	in, done := runLogger(t, sink, DefaultLoggerConfig())

	in <- translated(1, "one", "uno")
	in <- translated(2, "two", "dos")
	in <- translated(3, "three", "tres")
	close(in)
	waitDone(t, done)

	recs := sink.snapshot()
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	for i, rec := range recs {
		if rec.SequenceNo != uint64(i+1) {
			t.Errorf("position %d: sequenceNo = %d", i, rec.SequenceNo)
		}
		if rec.LoggedAt.IsZero() {
			t.Errorf("position %d: loggedAt not set", i)
		}
	}
	if !sink.closed {
		t.Error("expected sink closed when input drains")
	}
}

func TestLogger_RetriesFailedAppend(t *testing.T) {
	sink := newMemorySink(2)
	in, done := runLogger(t, sink, LoggerConfig{Retries: 3, RetryBackoff: time.Millisecond})

	in <- translated(1, "flaky", "inestable")
	close(in)
	waitDone(t, done)

	recs := sink.snapshot()
	if len(recs) != 1 {
		t.Fatalf("expected the record to land on retry, got %d records", len(recs))
	}
	if sink.attempts[1] != 3 {
		t.Errorf("expected 3 attempts, got %d", sink.attempts[1])
	}
}

func TestLogger_ExhaustionDropsRecordAndContinues(t *testing.T) {
	sink := newMemorySink(10)
	in, done := runLogger(t, sink, LoggerConfig{Retries: 1, RetryBackoff: time.Millisecond})

	in <- translated(1, "doomed", "")
	close(in)
	waitDone(t, done)

	if recs := sink.snapshot(); len(recs) != 0 {
		t.Errorf("expected record lost after exhaustion, got %d records", len(recs))
	}
}

func TestLogger_RecordsFallbackUtterances(t *testing.T) {
	sink := newMemorySink(0)
	in, done := runLogger(t, sink, DefaultLoggerConfig())

	tu := translated(1, "untranslated", "untranslated")
	tu.OK = false
	tu.FallbackUsed = true
	in <- tu
	close(in)
	waitDone(t, done)

	recs := sink.snapshot()
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].Translated {
		t.Error("fallback record must carry translated=false")
	}
	if recs[0].TargetText != "untranslated" {
		t.Errorf("expected passthrough text, got %q", recs[0].TargetText)
	}
}

func TestMultiSink_FanOut(t *testing.T) {
	a := newMemorySink(0)
	b := newMemorySink(0)
	ms := MultiSink{a, b}

	rec := model.HistoryRecord{SequenceNo: 1, SourceText: "x"}
	if err := ms.Append(context.Background(), rec); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(a.snapshot()) != 1 || len(b.snapshot()) != 1 {
		t.Error("expected the record in every sink")
	}

	if err := ms.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("expected every sink closed")
	}
}

func TestMultiSink_ReportsFirstError(t *testing.T) {
	failing := newMemorySink(10)
	healthy := newMemorySink(0)
	ms := MultiSink{failing, healthy}

	err := ms.Append(context.Background(), model.HistoryRecord{SequenceNo: 1})
	if !errors.Is(err, errSinkUnavailable) {
		t.Errorf("expected the failing sink's error, got %v", err)
	}
	// The healthy sink still received the record.
	if len(healthy.snapshot()) != 1 {
		t.Error("expected healthy sink to receive the record despite the failure")
	}
}
