package render

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"live-subtitle-pipeline/internal/model"
)

func completion(seq uint64, text string) model.TranslatedUtterance {
	return model.TranslatedUtterance{
		Utterance: model.Utterance{
			SequenceNo:  seq,
			UtteranceID: "utt",
			StartMs:     int64(seq) * 1000,
			EndMs:       int64(seq)*1000 + 2000,
		},
		TargetText: text,
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxHold = 100 * time.Millisecond
	return cfg
}

// waitShown polls the overlay until n subtitles are recorded.
func waitShown(t *testing.T, o *CaptureOverlay, n int, timeout time.Duration) []Subtitle {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		shown := o.Shown()
		if len(shown) >= n {
			return shown
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d subtitles, got %d", n, len(shown))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBuffer_InOrderPassthrough(t *testing.T) {
	in := make(chan model.TranslatedUtterance, 8)
	overlay := NewCaptureOverlay()
	b := New(in, overlay, testConfig())
	go func() { _ = b.Run(context.Background()) }()

	for seq := uint64(1); seq <= 4; seq++ {
		in <- completion(seq, "line")
	}
	close(in)

	shown := waitShown(t, overlay, 4, 2*time.Second)
	for i, sub := range shown {
		if sub.SequenceNo != uint64(i+1) {
			t.Errorf("position %d: sequenceNo = %d", i, sub.SequenceNo)
		}
		if sub.Placeholder {
			t.Errorf("position %d: unexpected placeholder", i)
		}
	}
}

func TestBuffer_HoldsUntilGapFills(t *testing.T) {
	in := make(chan model.TranslatedUtterance, 8)
	overlay := NewCaptureOverlay()
	cfg := testConfig()
	cfg.MaxHold = 5 * time.Second // never expires in this test
	b := New(in, overlay, cfg)
	go func() { _ = b.Run(context.Background()) }()

	in <- completion(1, "first")
	waitShown(t, overlay, 1, time.Second)

	// 3 completes before 2; it must wait.
	in <- completion(3, "third")
	time.Sleep(50 * time.Millisecond)
	if shown := overlay.Shown(); len(shown) != 1 {
		t.Fatalf("expected 3 to be held, overlay has %d subtitles", len(shown))
	}

	in <- completion(2, "second")
	close(in)

	shown := waitShown(t, overlay, 3, 2*time.Second)
	want := []string{"first", "second", "third"}
	for i, sub := range shown {
		if sub.TargetText != want[i] {
			t.Errorf("position %d: got %q, want %q", i, sub.TargetText, want[i])
		}
	}
}

func TestBuffer_PlaceholderAfterMaxHold(t *testing.T) {
	in := make(chan model.TranslatedUtterance, 8)
	overlay := NewCaptureOverlay()
	b := New(in, overlay, testConfig())
	go func() { _ = b.Run(context.Background()) }()

	// 2 never completes in time; 3 is ready.
	in <- completion(1, "first")
	in <- completion(3, "third")

	shown := waitShown(t, overlay, 3, 2*time.Second)

	if shown[1].SequenceNo != 2 || !shown[1].Placeholder || shown[1].TargetText != PlaceholderText {
		t.Errorf("expected placeholder for seq 2, got %+v", shown[1])
	}
	if shown[2].SequenceNo != 3 || shown[2].TargetText != "third" {
		t.Errorf("expected seq 3 after placeholder, got %+v", shown[2])
	}

	// The real result for 2 arrives late: logged, never re-displayed.
	in <- completion(2, "tardy")
	close(in)
	time.Sleep(50 * time.Millisecond)

	for _, sub := range overlay.Shown() {
		if sub.TargetText == "tardy" {
			t.Error("late arrival must not be re-displayed")
		}
	}
}

func TestBuffer_RandomInterleavingsStayOrdered(t *testing.T) {
	for trial := 0; trial < 50; trial++ {
		in := make(chan model.TranslatedUtterance, 32)
		overlay := NewCaptureOverlay()
		cfg := testConfig()
		cfg.MaxHold = 5 * time.Second
		b := New(in, overlay, cfg)
		go func() { _ = b.Run(context.Background()) }()

		const n = 12
		order := rand.Perm(n)
		for _, i := range order {
			in <- completion(uint64(i+1), "line")
		}
		close(in)

		shown := waitShown(t, overlay, n, 2*time.Second)
		for i, sub := range shown {
			if sub.SequenceNo != uint64(i+1) {
				t.Fatalf("trial %d: position %d has seq %d (arrival order %v)",
					trial, i, sub.SequenceNo, order)
			}
		}
	}
}

func TestBuffer_HoldTimeClamped(t *testing.T) {
	b := New(nil, NewCaptureOverlay(), DefaultConfig())

	tests := []struct {
		name     string
		duration int64 // ms
		want     time.Duration
	}{
		{"short utterance clamps up", 300, 1200 * time.Millisecond},
		{"long utterance clamps down", 20000, 8 * time.Second},
		{"mid-range passes through", 3500, 3500 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := model.Utterance{StartMs: 0, EndMs: tt.duration}
			if got := b.holdTime(u); got != tt.want {
				t.Errorf("holdTime(%dms) = %v, want %v", tt.duration, got, tt.want)
			}
		})
	}
}

func TestBuffer_FlushOnClose(t *testing.T) {
	in := make(chan model.TranslatedUtterance, 8)
	overlay := NewCaptureOverlay()
	cfg := testConfig()
	cfg.MaxHold = 5 * time.Second
	b := New(in, overlay, cfg)

	done := make(chan struct{})
	go func() {
		_ = b.Run(context.Background())
		close(done)
	}()

	// 1 and 2 ready, 4 stuck behind the missing 3.
	in <- completion(1, "one")
	in <- completion(2, "two")
	in <- completion(4, "four")
	close(in)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("buffer did not stop")
	}

	shown := overlay.Shown()
	if len(shown) != 2 {
		t.Fatalf("expected only the ordered prefix flushed, got %d subtitles", len(shown))
	}
	if shown[0].TargetText != "one" || shown[1].TargetText != "two" {
		t.Errorf("unexpected flush contents: %+v", shown)
	}
}
