package strategy

import (
	"fmt"
	"strings"
	"time"

	sig "gapsniper-go/internal/signal"
)

// Strategy defines behaviour shared by quote-driven detectors used by the engine.
type Strategy interface {
	OnQuote(q sig.Quote) Evaluation
	Name() string
}

// Detection modes accepted by Build.
const (
	ModePressureTrend = "pressure_trend"
	ModeSpreadGap     = "spread_gap"
	ModeCustom        = "custom"
)

// Params expresses every tunable knob of the detector. Values are fixed for the process lifetime.
type Params struct {
	Mode       string
	Predicates []string

	WindowCapacity  int
	LookbackHorizon time.Duration

	PressureAlpha   float64
	PressureTrigger float64
	// PressureClear is the lower hysteresis threshold; the gate currently resets only when Q is false.
	PressureClear float64
	GapSpreadBp   float64

	MaxSpreadBp    float64
	MinBidNotional float64
	MinAskNotional float64
	MinImbalance   float64
	TwoSided       bool

	MinSlopeBp      float64
	MinUpticks      int
	SustainDuration time.Duration
}

// Guardrails extracts the hard pre-filters from the parameter bundle.
func (p Params) Guardrails() Guardrails {
	return Guardrails{
		MinBidNotional: p.MinBidNotional,
		MinAskNotional: p.MinAskNotional,
		MaxSpreadBp:    p.MaxSpreadBp,
		MinImbalance:   p.MinImbalance,
		TwoSided:       p.TwoSided,
	}
}

// PredicateNames resolves the predicate list implied by the mode.
func (p Params) PredicateNames() ([]string, error) {
	switch strings.ToLower(strings.TrimSpace(p.Mode)) {
	case "", ModePressureTrend:
		return []string{PredicatePressure, PredicateTrend}, nil
	case ModeSpreadGap, "gap":
		return []string{PredicateSpreadGap}, nil
	case ModeCustom:
		if len(p.Predicates) == 0 {
			return nil, fmt.Errorf("mode %q requires predicates", ModeCustom)
		}
		return p.Predicates, nil
	default:
		return nil, fmt.Errorf("unknown detector mode %q", p.Mode)
	}
}

// Build returns a detector matching the configured mode.
func Build(params Params) (*Detector, error) {
	names, err := params.PredicateNames()
	if err != nil {
		return nil, err
	}
	preds, err := LookupPredicates(names)
	if err != nil {
		return nil, err
	}
	if params.PressureAlpha <= 0 || params.PressureAlpha > 1 {
		return nil, fmt.Errorf("pressure alpha %.4f outside (0,1]", params.PressureAlpha)
	}
	return NewDetector(params, preds), nil
}
