package exchange

import (
	"sort"
	"strings"
	"sync/atomic"

	"gapsniper-go/internal/metrics"
)

type targetSnapshot struct {
	version uint64
	symbols []string
	index   map[string]struct{}
}

// TargetSet is the live instrument universe. Readers never block; Replace swaps a new snapshot in.
type TargetSet struct {
	cur atomic.Pointer[targetSnapshot]
}

// NewTargetSet seeds the set with symbols (version 1 when non-empty).
func NewTargetSet(symbols []string) *TargetSet {
	t := &TargetSet{}
	t.cur.Store(&targetSnapshot{index: map[string]struct{}{}})
	t.Replace(symbols)
	return t
}

// Contains reports whether symbol is currently targeted.
func (t *TargetSet) Contains(symbol string) bool {
	_, ok := t.cur.Load().index[symbol]
	return ok
}

// Symbols returns a sorted copy of the current universe.
func (t *TargetSet) Symbols() []string {
	snap := t.cur.Load()
	out := make([]string, len(snap.symbols))
	copy(out, snap.symbols)
	return out
}

// Len is the size of the current universe.
func (t *TargetSet) Len() int { return len(t.cur.Load().symbols) }

// Version increments every time the universe actually changes.
func (t *TargetSet) Version() uint64 { return t.cur.Load().version }

// Replace installs a new universe. It returns false when the normalized set is unchanged.
func (t *TargetSet) Replace(symbols []string) bool {
	next := normalizeSymbols(symbols)
	for {
		prev := t.cur.Load()
		if slicesEqual(prev.symbols, next) {
			return false
		}
		index := make(map[string]struct{}, len(next))
		for _, sym := range next {
			index[sym] = struct{}{}
		}
		snap := &targetSnapshot{version: prev.version + 1, symbols: next, index: index}
		if t.cur.CompareAndSwap(prev, snap) {
			metrics.Targets.Set(float64(len(next)))
			return true
		}
	}
}

func normalizeSymbols(symbols []string) []string {
	set := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		if sym = strings.ToUpper(strings.TrimSpace(sym)); sym != "" {
			set[sym] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for sym := range set {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func slicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
