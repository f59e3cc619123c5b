package strategy

import (
	"fmt"
	"strings"
	"time"
)

// Predicate names accepted in Params.Predicates.
const (
	PredicatePressure  = "pressure"
	PredicateTrend     = "trend"
	PredicateSpreadGap = "spread_gap"
)

// Predicate is one boolean condition of the qualifying test.
type Predicate struct {
	Name string
	// Metric extracts the value reported as the triggering metric when this predicate leads the set.
	Metric func(Metrics) float64
	Holds  func(Metrics, Params) bool
}

var predicates = map[string]Predicate{
	PredicatePressure: {
		Name:   PredicatePressure,
		Metric: func(m Metrics) float64 { return m.PressureEWMA },
		Holds:  func(m Metrics, p Params) bool { return m.PressureEWMA >= p.PressureTrigger },
	},
	PredicateTrend: {
		Name:   PredicateTrend,
		Metric: func(m Metrics) float64 { return m.MidSlopeBp },
		Holds: func(m Metrics, p Params) bool {
			return m.MidSlopeBp >= p.MinSlopeBp && m.Upticks >= p.MinUpticks
		},
	},
	PredicateSpreadGap: {
		Name:   PredicateSpreadGap,
		Metric: func(m Metrics) float64 { return m.SpreadBp },
		Holds:  func(m Metrics, p Params) bool { return m.SpreadBp >= p.GapSpreadBp },
	},
}

// LookupPredicates resolves a list of predicate names.
func LookupPredicates(names []string) ([]Predicate, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("empty predicate set")
	}
	out := make([]Predicate, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		pred, ok := predicates[name]
		if !ok {
			return nil, fmt.Errorf("unknown predicate %q", raw)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, pred)
	}
	return out, nil
}

// GateState names the sustain gate phases.
type GateState int

const (
	GateIdle GateState = iota
	GateAccumulating
	GateSustained
)

func (s GateState) String() string {
	switch s {
	case GateIdle:
		return "idle"
	case GateAccumulating:
		return "accumulating"
	case GateSustained:
		return "sustained"
	default:
		return "unknown"
	}
}

// Gate is the hysteresis state machine deciding whether the AND of its predicates held long enough.
// Its only state is InstrumentState.sustainStart, so one Gate serves every instrument.
type Gate struct {
	preds    []Predicate
	params   Params
	duration time.Duration
}

// NewGate builds a gate over the given predicates.
func NewGate(preds []Predicate, p Params) *Gate {
	return &Gate{preds: preds, params: p, duration: p.SustainDuration}
}

// Qualifies evaluates Q, the AND of every predicate.
func (g *Gate) Qualifies(m Metrics) bool {
	for _, pred := range g.preds {
		if !pred.Holds(m, g.params) {
			return false
		}
	}
	return true
}

// TriggerMetric is the leading predicate's metric, used for dedup bucketing.
func (g *Gate) TriggerMetric(m Metrics) float64 {
	if len(g.preds) == 0 {
		return 0
	}
	return g.preds[0].Metric(m)
}

// Names lists the active predicate names.
func (g *Gate) Names() []string {
	out := make([]string, len(g.preds))
	for i, pred := range g.preds {
		out[i] = pred.Name
	}
	return out
}

// Step advances the gate for one observation at now. It returns the resulting phase and, when
// Sustained, how long Q held. Reaching Sustained resets the instrument to Idle immediately.
func (g *Gate) Step(st *InstrumentState, q bool, now time.Time) (GateState, time.Duration) {
	if !q {
		st.sustainStart = time.Time{}
		return GateIdle, 0
	}
	if st.sustainStart.IsZero() {
		st.sustainStart = now
	}
	held := now.Sub(st.sustainStart)
	if held >= g.duration {
		st.sustainStart = time.Time{}
		return GateSustained, held
	}
	return GateAccumulating, held
}
