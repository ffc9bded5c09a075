package model

import (
	"testing"
	"time"
)

func TestUtterance_DurationMs(t *testing.T) {
	tests := []struct {
		name    string
		startMs int64
		endMs   int64
		want    int64
	}{
		{"normal window", 1000, 3500, 2500},
		{"zero length", 1000, 1000, 0},
		{"inverted window clamps to zero", 2000, 1000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := Utterance{StartMs: tt.startMs, EndMs: tt.endMs}
			if got := u.DurationMs(); got != tt.want {
				t.Errorf("DurationMs() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNewHistoryRecord(t *testing.T) {
	now := time.Now()
	tu := TranslatedUtterance{
		Utterance: Utterance{
			SequenceNo:  7,
			UtteranceID: "utt-7",
			StartMs:     100,
			EndMs:       2100,
			SourceText:  "hello",
		},
		TargetText: "hola",
		TargetLang: "es",
		OK:         true,
	}

	rec := NewHistoryRecord(tu, now)
	if rec.SequenceNo != 7 || rec.SourceText != "hello" || rec.TargetText != "hola" {
		t.Errorf("unexpected record %+v", rec)
	}
	if !rec.Translated {
		t.Error("expected translated=true for a clean translation")
	}
	if !rec.LoggedAt.Equal(now) {
		t.Error("loggedAt not carried through")
	}
}
