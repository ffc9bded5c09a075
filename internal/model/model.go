// Package model defines the data structures that flow through the subtitle pipeline.
package model

import "time"

// AudioFrame is one fixed-duration chunk of captured audio.
// Frames are immutable; ownership passes to the transcription stream once fed.
type AudioFrame struct {
	CapturedAt time.Time `json:"capturedAt"`
	DurationMs int64     `json:"durationMs"`
	Samples    []byte    `json:"-"`
	// Discontinuity marks the first frame delivered after buffered audio was
	// dropped during a connection outage.
	Discontinuity bool `json:"discontinuity,omitempty"`
}

// SegmentEvent is one transcription update from the recognizer.
// UtteranceID is stable across partial revisions of the same utterance.
type SegmentEvent struct {
	UtteranceID string `json:"utteranceId"`
	StartMs     int64  `json:"startMs"`
	EndMs       int64  `json:"endMs"`
	Text        string `json:"text"`
	IsFinal     bool   `json:"isFinal"`
	// Discontinuity propagates a marked break in the audio stream; the
	// aggregator treats it as a forced finalization boundary.
	Discontinuity bool `json:"discontinuity,omitempty"`
}

// Utterance is one finalized unit of transcribed speech. Immutable once created.
// SequenceNo is assigned exclusively by the segment aggregator and is strictly
// increasing within a pipeline run.
type Utterance struct {
	SequenceNo  uint64 `json:"sequenceNo"`
	UtteranceID string `json:"utteranceId"`
	StartMs     int64  `json:"startMs"`
	EndMs       int64  `json:"endMs"`
	SourceText  string `json:"sourceText"`
}

// DurationMs returns the spoken duration of the utterance.
func (u Utterance) DurationMs() int64 {
	if u.EndMs < u.StartMs {
		return 0
	}
	return u.EndMs - u.StartMs
}

// TranslatedUtterance pairs an utterance with its translation result.
// OK is false when translation failed and TargetText carries the passthrough
// source text instead.
type TranslatedUtterance struct {
	Utterance    Utterance `json:"utterance"`
	TargetText   string    `json:"targetText"`
	TargetLang   string    `json:"targetLang"`
	TranslatedAt time.Time `json:"translatedAt"`
	OK           bool      `json:"ok"`
	FallbackUsed bool      `json:"fallbackUsed"`
}

// HistoryRecord is the durable, append-only form of a transcript/translation pair.
type HistoryRecord struct {
	SequenceNo uint64    `json:"sequenceNo"`
	StartMs    int64     `json:"startMs"`
	EndMs      int64     `json:"endMs"`
	SourceText string    `json:"sourceText"`
	TargetText string    `json:"targetText"`
	TargetLang string    `json:"targetLang"`
	Translated bool      `json:"translated"`
	LoggedAt   time.Time `json:"loggedAt"`
}

// NewHistoryRecord builds a HistoryRecord from a translated utterance.
func NewHistoryRecord(tu TranslatedUtterance, loggedAt time.Time) HistoryRecord {
	return HistoryRecord{
		SequenceNo: tu.Utterance.SequenceNo,
		StartMs:    tu.Utterance.StartMs,
		EndMs:      tu.Utterance.EndMs,
		SourceText: tu.Utterance.SourceText,
		TargetText: tu.TargetText,
		TargetLang: tu.TargetLang,
		Translated: tu.OK,
		LoggedAt:   loggedAt,
	}
}
