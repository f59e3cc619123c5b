package strategy

import "time"

// DefaultWindowCapacity bounds per-instrument memory when no capacity is configured.
const DefaultWindowCapacity = 256

// Sample is one stored top-of-book observation. Samples are never mutated after Push.
type Sample struct {
	Ts     time.Time
	Bid    float64
	Ask    float64
	BidQty float64
	AskQty float64
	Mid    float64
}

// Window is a fixed-capacity ring of samples ordered by insertion; the oldest entry is evicted on overflow.
type Window struct {
	buf   []Sample
	head  int // index of the oldest sample
	count int
}

// NewWindow allocates a ring holding at most capacity samples.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = DefaultWindowCapacity
	}
	return &Window{buf: make([]Sample, capacity)}
}

// Push appends a sample at the tail, evicting the oldest when full.
func (w *Window) Push(s Sample) {
	tail := (w.head + w.count) % len(w.buf)
	w.buf[tail] = s
	if w.count < len(w.buf) {
		w.count++
		return
	}
	w.head = (w.head + 1) % len(w.buf)
}

// Len returns the number of stored samples.
func (w *Window) Len() int { return w.count }

// Cap returns the ring capacity.
func (w *Window) Cap() int { return len(w.buf) }

// At returns the i-th sample counting from the oldest.
func (w *Window) At(i int) Sample {
	return w.buf[(w.head+i)%len(w.buf)]
}

// Latest returns the newest sample, if any.
func (w *Window) Latest() (Sample, bool) {
	if w.count == 0 {
		return Sample{}, false
	}
	return w.At(w.count - 1), true
}

// Horizon walks the samples whose timestamp is not before cutoff, oldest first by insertion.
// Samples that arrived out of order are filtered by timestamp, not by position.
func (w *Window) Horizon(cutoff time.Time, fn func(Sample)) {
	for i := 0; i < w.count; i++ {
		s := w.At(i)
		if s.Ts.Before(cutoff) {
			continue
		}
		fn(s)
	}
}

// Snapshot copies the samples oldest first.
func (w *Window) Snapshot() []Sample {
	out := make([]Sample, w.count)
	for i := range out {
		out[i] = w.At(i)
	}
	return out
}
