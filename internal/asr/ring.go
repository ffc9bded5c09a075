package asr

import (
	"sync"

	"live-subtitle-pipeline/internal/model"
)

// frameRing is a bounded FIFO of audio frames. When full, Push overwrites the
// oldest frame and the next Pop result carries a discontinuity mark, so
// downstream knows audio was lost rather than delayed.
type frameRing struct {
	mu      sync.Mutex
	buf     []model.AudioFrame
	head    int // index of oldest frame
	size    int
	dropped uint64 // frames overwritten since the last delivered mark
}

func newFrameRing(capacity int) *frameRing {
	if capacity < 1 {
		capacity = 1
	}
	return &frameRing{buf: make([]model.AudioFrame, capacity)}
}

// Push appends a frame, overwriting the oldest one on overflow.
// Returns the number of frames dropped by this call (0 or 1).
func (r *frameRing) Push(f model.AudioFrame) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == len(r.buf) {
		// Overwrite oldest.
		r.buf[r.head] = f
		r.head = (r.head + 1) % len(r.buf)
		r.dropped++
		return 1
	}
	r.buf[(r.head+r.size)%len(r.buf)] = f
	r.size++
	return 0
}

// Pop removes the oldest frame. The first frame delivered after any drop is
// marked with Discontinuity.
func (r *frameRing) Pop() (model.AudioFrame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		return model.AudioFrame{}, false
	}
	f := r.buf[r.head]
	r.buf[r.head] = model.AudioFrame{}
	r.head = (r.head + 1) % len(r.buf)
	r.size--

	if r.dropped > 0 {
		f.Discontinuity = true
		r.dropped = 0
	}
	return f, true
}

// Unpop pushes a frame back to the front, used when a send fails and the
// frame must be retried on the next session.
func (r *frameRing) Unpop(f model.AudioFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == len(r.buf) {
		// Ring is full again; the frame is lost, mark the gap.
		r.dropped++
		return
	}
	r.head = (r.head - 1 + len(r.buf)) % len(r.buf)
	r.buf[r.head] = f
	r.size++
}

// Len returns the number of buffered frames.
func (r *frameRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Drain discards all buffered frames.
func (r *frameRing) Drain() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.buf {
		r.buf[i] = model.AudioFrame{}
	}
	r.head = 0
	r.size = 0
	r.dropped = 0
}
