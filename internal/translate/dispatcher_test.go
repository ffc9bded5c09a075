package translate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"live-subtitle-pipeline/internal/model"
)

func testDispatcherConfig() DispatcherConfig {
	cfg := DefaultDispatcherConfig("es")
	cfg.RetryBackoffMin = time.Millisecond
	cfg.RetryBackoffMax = 5 * time.Millisecond
	cfg.RequestTimeout = time.Second
	return cfg
}

func utterance(seq uint64, text string) model.Utterance {
	return model.Utterance{
		SequenceNo:  seq,
		UtteranceID: "utt-" + string(rune('0'+seq)),
		SourceText:  text,
	}
}

// countingTranslator tracks concurrent calls and blocks until released.
type countingTranslator struct {
	mu      sync.Mutex
	active  int
	peak    int
	release chan struct{}
}

func (c *countingTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	c.mu.Lock()
	c.active++
	if c.active > c.peak {
		c.peak = c.active
	}
	c.mu.Unlock()

	select {
	case <-c.release:
	case <-ctx.Done():
	}

	c.mu.Lock()
	c.active--
	c.mu.Unlock()
	return "[es] " + text, nil
}

func TestDispatcher_TranslatesAndEmitsBoth(t *testing.T) {
	in := make(chan model.Utterance, 4)
	d := NewDispatcher(NewStub(nil), in, testDispatcherConfig())
	go func() { _ = d.Run(context.Background()) }()

	in <- utterance(1, "Good morning everyone and welcome")
	close(in)

	hist := <-d.History()
	rend := <-d.Render()

	for _, tu := range []model.TranslatedUtterance{hist, rend} {
		if !tu.OK || tu.FallbackUsed {
			t.Errorf("expected clean translation, got ok=%v fallback=%v", tu.OK, tu.FallbackUsed)
		}
		if tu.TargetText != "Buenos días a todos y bienvenidos" {
			t.Errorf("unexpected translation %q", tu.TargetText)
		}
		if tu.TargetLang != "es" {
			t.Errorf("unexpected target lang %q", tu.TargetLang)
		}
	}

	if _, ok := <-d.Render(); ok {
		t.Error("expected render channel to close after input closes")
	}
	if _, ok := <-d.History(); ok {
		t.Error("expected history channel to close after input closes")
	}
}

func TestDispatcher_ConcurrencyCapped(t *testing.T) {
	ct := &countingTranslator{release: make(chan struct{})}
	cfg := testDispatcherConfig()
	cfg.MaxInflight = 4

	in := make(chan model.Utterance, 16)
	d := NewDispatcher(ct, in, cfg)
	go func() { _ = d.Run(context.Background()) }()

	for i := 1; i <= 9; i++ {
		in <- utterance(uint64(i), "text")
	}
	close(in)

	// Let the workers saturate the semaphore.
	time.Sleep(50 * time.Millisecond)
	ct.mu.Lock()
	saturated := ct.active
	ct.mu.Unlock()
	if saturated != 4 {
		t.Errorf("expected exactly 4 in-flight requests, got %d", saturated)
	}

	close(ct.release)
	for i := 0; i < 9; i++ {
		<-d.History()
		<-d.Render()
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()
	if ct.peak > 4 {
		t.Errorf("concurrency cap exceeded: peak %d", ct.peak)
	}
}

func TestDispatcher_RetriesThenSucceeds(t *testing.T) {
	stub := NewStub(&StubConfig{FailFirst: 2})
	in := make(chan model.Utterance, 1)
	d := NewDispatcher(stub, in, testDispatcherConfig())
	go func() { _ = d.Run(context.Background()) }()

	in <- utterance(1, "flaky")
	close(in)

	tu := <-d.Render()
	if !tu.OK {
		t.Errorf("expected success on third attempt, got %+v", tu)
	}
	if tu.TargetText != "[es] flaky" {
		t.Errorf("unexpected translation %q", tu.TargetText)
	}
}

func TestDispatcher_ExhaustionFallsBackToSource(t *testing.T) {
	stub := NewStub(&StubConfig{FailFirst: 10})
	in := make(chan model.Utterance, 1)
	d := NewDispatcher(stub, in, testDispatcherConfig())
	go func() { _ = d.Run(context.Background()) }()

	in <- utterance(5, "the economic outlook remains uncertain")
	close(in)

	tu := <-d.Render()
	if tu.OK {
		t.Error("expected ok=false after retry exhaustion")
	}
	if !tu.FallbackUsed {
		t.Error("expected fallbackUsed=true")
	}
	if tu.TargetText != "the economic outlook remains uncertain" {
		t.Errorf("fallback must pass the source text through, got %q", tu.TargetText)
	}
	if tu.Utterance.SequenceNo != 5 {
		t.Errorf("sequence number lost in fallback: %d", tu.Utterance.SequenceNo)
	}
}

func TestDispatcher_NonTransientFailsFast(t *testing.T) {
	calls := atomic.Int32{}
	tr := translatorFunc(func(ctx context.Context, text, src, dst string) (string, error) {
		calls.Add(1)
		return "", errors.New("malformed request")
	})

	in := make(chan model.Utterance, 1)
	d := NewDispatcher(tr, in, testDispatcherConfig())
	go func() { _ = d.Run(context.Background()) }()

	in <- utterance(1, "text")
	close(in)

	tu := <-d.Render()
	if !tu.FallbackUsed {
		t.Error("expected fallback on permanent failure")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("permanent failure must not retry, got %d attempts", n)
	}
}

func TestDispatcher_HistoryDeliveredUnderRenderStall(t *testing.T) {
	cfg := testDispatcherConfig()
	cfg.Buffer = 1 // render backs up immediately
	cfg.MaxInflight = 6

	in := make(chan model.Utterance, 8)
	d := NewDispatcher(NewStub(nil), in, cfg)
	go func() { _ = d.Run(context.Background()) }()

	const n = 6
	for i := 1; i <= n; i++ {
		in <- utterance(uint64(i), "line")
	}
	close(in)

	// Nobody reads Render; history must still receive every utterance.
	seen := make(map[uint64]bool)
	for i := 0; i < n; i++ {
		select {
		case tu := <-d.History():
			seen[tu.Utterance.SequenceNo] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("history starved by render backpressure after %d records", i)
		}
	}
	for i := uint64(1); i <= n; i++ {
		if !seen[i] {
			t.Errorf("history missing sequence %d", i)
		}
	}
}

func TestDispatcher_JitterWithinWindow(t *testing.T) {
	cfg := testDispatcherConfig()
	cfg.RetryBackoffMin = 100 * time.Millisecond
	cfg.RetryBackoffMax = 500 * time.Millisecond
	d := NewDispatcher(NewStub(nil), nil, cfg)

	for i := 0; i < 100; i++ {
		j := d.jitter()
		if j < cfg.RetryBackoffMin || j >= cfg.RetryBackoffMax {
			t.Fatalf("jitter %v outside [%v,%v)", j, cfg.RetryBackoffMin, cfg.RetryBackoffMax)
		}
	}
}

type translatorFunc func(ctx context.Context, text, sourceLang, targetLang string) (string, error)

func (f translatorFunc) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	return f(ctx, text, sourceLang, targetLang)
}
