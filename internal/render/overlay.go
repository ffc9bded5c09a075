// Package render reconciles out-of-order translation completions into
// strictly ordered subtitle output.
package render

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"live-subtitle-pipeline/internal/observability/logging"
)

// Subtitle is one display unit handed to the overlay.
type Subtitle struct {
	SequenceNo uint64
	SourceText string
	TargetText string
	// Placeholder marks a stand-in shown because the real translation
	// missed its hold deadline.
	Placeholder bool
	// HoldFor is how long the overlay should keep the subtitle visible.
	HoldFor time.Duration
}

// Overlay is the display surface. Implementations queue overlapping shows
// rather than overwriting a subtitle mid-display.
type Overlay interface {
	Show(sub Subtitle)
	Clear()
}

// LogOverlay writes subtitles to the structured log. It stands in for a
// real on-screen overlay in headless runs.
type LogOverlay struct {
	logger zerolog.Logger
}

// NewLogOverlay creates an overlay that logs each subtitle.
func NewLogOverlay() *LogOverlay {
	return &LogOverlay{logger: logging.WithComponent("overlay")}
}

// Show logs the subtitle.
func (o *LogOverlay) Show(sub Subtitle) {
	o.logger.Info().
		Uint64("sequenceNo", sub.SequenceNo).
		Str("source", sub.SourceText).
		Str("subtitle", sub.TargetText).
		Dur("holdFor", sub.HoldFor).
		Bool("placeholder", sub.Placeholder).
		Msg("Subtitle")
}

// Clear is a no-op for the log overlay.
func (o *LogOverlay) Clear() {}

// CaptureOverlay records every show call. Test helper.
type CaptureOverlay struct {
	mu    sync.Mutex
	shown []Subtitle
}

// NewCaptureOverlay creates an overlay that records subtitles.
func NewCaptureOverlay() *CaptureOverlay {
	return &CaptureOverlay{}
}

// Show records the subtitle.
func (o *CaptureOverlay) Show(sub Subtitle) {
	o.mu.Lock()
	o.shown = append(o.shown, sub)
	o.mu.Unlock()
}

// Clear drops the recorded subtitles.
func (o *CaptureOverlay) Clear() {
	o.mu.Lock()
	o.shown = nil
	o.mu.Unlock()
}

// Shown returns a copy of the recorded subtitles.
func (o *CaptureOverlay) Shown() []Subtitle {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Subtitle, len(o.shown))
	copy(out, o.shown)
	return out
}
