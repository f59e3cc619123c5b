// Package journal keeps an audit trail of emitted signals.
package journal

import (
	"sync"

	"gapsniper-go/internal/signal"
)

// Recorder receives every signal the engine hands to the emitter.
type Recorder interface {
	Record(s signal.Signal)
}

// Ledger stores the most recent signals in memory for quick inspection.
type Ledger struct {
	mu      sync.Mutex
	limit   int
	signals []signal.Signal
}

// NewLedger creates an empty ledger keeping at most limit signals.
func NewLedger(limit int) *Ledger {
	if limit < 1 {
		limit = 1
	}
	return &Ledger{limit: limit, signals: make([]signal.Signal, 0, limit)}
}

// Record appends a signal, dropping the oldest once the limit is reached.
func (l *Ledger) Record(s signal.Signal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.signals) == l.limit {
		copy(l.signals, l.signals[1:])
		l.signals = l.signals[:l.limit-1]
	}
	l.signals = append(l.signals, s)
}

// Recent returns a copy of the retained signals, newest last.
func (l *Ledger) Recent() []signal.Signal {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]signal.Signal, len(l.signals))
	copy(out, l.signals)
	return out
}

// Reset clears all stored signals.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.signals = l.signals[:0]
	l.mu.Unlock()
}

// Multi fans one signal out to several recorders.
type Multi []Recorder

// Record forwards s to every non-nil recorder.
func (m Multi) Record(s signal.Signal) {
	for _, r := range m {
		if r != nil {
			r.Record(s)
		}
	}
}
