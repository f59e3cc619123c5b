// Package risk is the last gate before a signal leaves the process: per-instrument cooldown,
// a global per-minute cap and near-duplicate suppression.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// RateWindow is the trailing window of the global emission cap.
const RateWindow = 60 * time.Second

// Rejection reasons, in the order they are checked.
const (
	ReasonCooldown = "cooldown"
	ReasonRate     = "rate-limited"
	ReasonDup      = "duplicate"
)

// Limits holds the throttle configuration.
type Limits struct {
	Cooldown     time.Duration
	DedupWindow  time.Duration
	MaxPerMinute int
	// DedupBucket is the quantum used to coarsen the triggering metric into a dedup key.
	DedupBucket float64
}

// Decision is the throttle verdict for one candidate.
type Decision struct {
	OK     bool
	Reason string
	Key    string
}

// Throttle owns the cooldown, rate bucket and dedup state shared across all instruments.
type Throttle struct {
	limits Limits

	mu        sync.Mutex
	lastFired map[string]time.Time
	bucket    []time.Time
	dedup     map[string]time.Time
}

// NewThrottle constructs a throttle with empty state.
func NewThrottle(limits Limits) *Throttle {
	if limits.DedupBucket <= 0 {
		limits.DedupBucket = 0.01
	}
	return &Throttle{
		limits:    limits,
		lastFired: make(map[string]time.Time),
		dedup:     make(map[string]time.Time),
	}
}

// Limits returns the configured limits.
func (t *Throttle) Limits() Limits { return t.limits }

// DedupKey coarsens metric into a bucket so near-identical repeats collapse to one key.
func (t *Throttle) DedupKey(symbol string, metric float64) string {
	bucket := decimal.NewFromFloat(metric).
		Div(decimal.NewFromFloat(t.limits.DedupBucket)).
		Floor()
	return fmt.Sprintf("%s:%s", symbol, bucket.String())
}

// Allow checks cooldown, rate and dedup in that order and, when all pass, commits the emission
// to every structure before returning. The commit is final even if delivery later fails.
func (t *Throttle) Allow(symbol string, metric float64, now time.Time) Decision {
	key := t.DedupKey(symbol, metric)

	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.lastFired[symbol]; ok && now.Sub(last) < t.limits.Cooldown {
		return Decision{Reason: ReasonCooldown, Key: key}
	}

	t.evictLocked(now)
	if t.limits.MaxPerMinute > 0 && len(t.bucket) >= t.limits.MaxPerMinute {
		return Decision{Reason: ReasonRate, Key: key}
	}

	if last, ok := t.dedup[key]; ok && now.Sub(last) < t.limits.DedupWindow {
		return Decision{Reason: ReasonDup, Key: key}
	}

	t.bucket = append(t.bucket, now)
	t.lastFired[symbol] = now
	t.dedup[key] = now
	t.sweepDedupLocked(now)
	return Decision{OK: true, Key: key}
}

// InBucket reports how many emissions fall inside the trailing rate window at now.
func (t *Throttle) InBucket(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictLocked(now)
	return len(t.bucket)
}

// LastFired returns when symbol last passed the throttle.
func (t *Throttle) LastFired(symbol string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.lastFired[symbol]
	return ts, ok
}

// evictLocked drops stamps older than the rate window. Workers commit with their own quote
// timestamps, so the bucket is not guaranteed to be in time order.
func (t *Throttle) evictLocked(now time.Time) {
	cutoff := now.Add(-RateWindow)
	kept := t.bucket[:0]
	for _, ts := range t.bucket {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	t.bucket = kept
}

// sweepDedupLocked drops expired dedup keys once the map grows, keeping it bounded by recent activity.
func (t *Throttle) sweepDedupLocked(now time.Time) {
	if len(t.dedup) < 256 {
		return
	}
	for key, ts := range t.dedup {
		if now.Sub(ts) >= t.limits.DedupWindow {
			delete(t.dedup, key)
		}
	}
}
