// Package strategy turns top-of-book quotes into sustained microstructure signal candidates.
package strategy

import (
	"fmt"
	"strings"
	"time"

	"gapsniper-go/internal/signal"
)

// Verdict classifies what happened to one quote inside the detector.
type Verdict string

const (
	VerdictMalformed    Verdict = "malformed"
	VerdictGuardrail    Verdict = "guardrail"
	VerdictIdle         Verdict = "idle"
	VerdictAccumulating Verdict = "accumulating"
	VerdictCandidate    Verdict = "candidate"
)

// Evaluation is the detector's answer for one quote. Signal is set only for VerdictCandidate.
type Evaluation struct {
	Symbol  string
	Verdict Verdict
	Reason  string
	Metrics Metrics
	Held    time.Duration
	Signal  *signal.Signal
}

var _ Strategy = (*Detector)(nil)

// Detector runs metric computation, guardrails and the sustain gate per instrument.
type Detector struct {
	params Params
	guard  Guardrails
	gate   *Gate
	store  *Store
}

// NewDetector wires a detector over an explicit predicate set; most callers want Build.
func NewDetector(params Params, preds []Predicate) *Detector {
	return &Detector{
		params: params,
		guard:  params.Guardrails(),
		gate:   NewGate(preds, params),
		store:  NewStore(params.WindowCapacity),
	}
}

// Name returns the identifier for logging.
func (d *Detector) Name() string { return "Sustain[" + strings.Join(d.gate.Names(), "+") + "]" }

// Store exposes the per-instrument state store.
func (d *Detector) Store() *Store { return d.store }

// Params returns the configured parameter bundle.
func (d *Detector) Params() Params { return d.params }

// OnQuote evaluates one quote. Malformed quotes leave the instrument state untouched. A guardrail
// rejection still feeds the metrics but never reaches the sustain gate, so accumulated hold time survives it.
func (d *Detector) OnQuote(q signal.Quote) Evaluation {
	ev := Evaluation{Symbol: q.Symbol}
	if !q.Valid() {
		ev.Verdict = VerdictMalformed
		return ev
	}

	d.store.With(q.Symbol, func(st *InstrumentState) {
		ev.Metrics = Compute(q, st, d.params)

		if reason, ok := d.guard.Check(ev.Metrics); !ok {
			ev.Verdict, ev.Reason = VerdictGuardrail, reason
			return
		}

		phase, held := d.gate.Step(st, d.gate.Qualifies(ev.Metrics), q.ObservedAt)
		ev.Held = held
		switch phase {
		case GateIdle:
			ev.Verdict = VerdictIdle
		case GateAccumulating:
			ev.Verdict = VerdictAccumulating
		case GateSustained:
			ev.Verdict = VerdictCandidate
			ev.Signal = d.candidate(q, ev.Metrics, held)
		}
	})
	return ev
}

func (d *Detector) candidate(q signal.Quote, m Metrics, held time.Duration) *signal.Signal {
	reason := fmt.Sprintf("pressure=%.2f slope=%.1fbp upticks=%d spread=%.1fbp held=%s",
		m.PressureEWMA, m.MidSlopeBp, m.Upticks, m.SpreadBp, held.Round(time.Millisecond))
	return &signal.Signal{
		Symbol:      q.Symbol,
		Metric:      d.gate.TriggerMetric(m),
		SpreadBp:    m.SpreadBp,
		Pressure:    m.PressureEWMA,
		MidSlopeBp:  m.MidSlopeBp,
		Upticks:     m.Upticks,
		Reason:      reason,
		SustainedMs: held.Milliseconds(),
		Ts:          q.ObservedAt,
	}
}
