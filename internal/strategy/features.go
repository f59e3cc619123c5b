package strategy

import (
	"math"
	"time"

	"gapsniper-go/internal/signal"
)

const epsilon = 1e-9

// Rejection reasons reported by Guardrails.Check.
const (
	RejectThinBid     = "thin-bid"
	RejectThinAsk     = "thin-ask"
	RejectWideSpread  = "wide-spread"
	RejectNoImbalance = "no-imbalance"
)

// Metrics is the microstructure snapshot derived from one quote and the instrument history.
type Metrics struct {
	Mid         float64
	SpreadBp    float64
	BidNotional float64
	AskNotional float64
	// Imbalance is bid notional over ask notional; +Inf when the ask side is empty.
	Imbalance float64
	// SkewRatio is the larger notional over the smaller one, regardless of side.
	SkewRatio    float64
	RawPressure  float64
	PressureEWMA float64
	Upticks      int
	MidSlopeBp   float64
}

// Compute appends q to the instrument window, updates the pressure EWMA and last bid, and
// returns the derived metrics. q must already satisfy Quote.Valid and the caller must hold
// the instrument through Store.With.
func Compute(q signal.Quote, st *InstrumentState, p Params) Metrics {
	mid := q.Mid()
	m := Metrics{
		Mid:         mid,
		SpreadBp:    (q.Ask - q.Bid) / mid * 10000,
		BidNotional: q.BidQty * q.Bid,
		AskNotional: q.AskQty * q.Ask,
	}

	if m.AskNotional == 0 {
		m.Imbalance = math.Inf(1)
	} else {
		m.Imbalance = m.BidNotional / math.Max(epsilon, m.AskNotional)
	}
	big, small := math.Max(m.BidNotional, m.AskNotional), math.Min(m.BidNotional, m.AskNotional)
	if small == 0 && big > 0 {
		m.SkewRatio = math.Inf(1)
	} else {
		m.SkewRatio = big / math.Max(epsilon, small)
	}

	m.RawPressure = (m.BidNotional - m.AskNotional) / math.Max(epsilon, m.BidNotional+m.AskNotional)
	st.pressureEWMA = (1-p.PressureAlpha)*st.pressureEWMA + p.PressureAlpha*m.RawPressure
	m.PressureEWMA = st.pressureEWMA

	st.window.Push(Sample{
		Ts:     q.ObservedAt,
		Bid:    q.Bid,
		Ask:    q.Ask,
		BidQty: q.BidQty,
		AskQty: q.AskQty,
		Mid:    mid,
	})
	st.lastBid = q.Bid
	st.hasLastBid = true

	m.Upticks, m.MidSlopeBp = trendFeatures(st.window, q.ObservedAt, mid, p.LookbackHorizon)
	return m
}

// trendFeatures counts strict bid upticks between consecutive samples inside the horizon and the
// mid slope against the earliest-stamped sample still inside it.
func trendFeatures(w *Window, now time.Time, midNow float64, horizon time.Duration) (int, float64) {
	cutoff := time.Time{}
	if horizon > 0 {
		cutoff = now.Add(-horizon)
	}

	var (
		upticks  int
		prev     Sample
		havePrev bool
		oldest   Sample
		haveOld  bool
	)
	w.Horizon(cutoff, func(s Sample) {
		if havePrev && s.Bid > prev.Bid {
			upticks++
		}
		prev, havePrev = s, true
		if !haveOld || s.Ts.Before(oldest.Ts) {
			oldest, haveOld = s, true
		}
	})

	if !haveOld {
		return upticks, 0
	}
	denom := (midNow + oldest.Mid) / 2
	if denom <= 0 {
		return upticks, 0
	}
	return upticks, (midNow - oldest.Mid) / denom * 10000
}

// Guardrails are cheap hard filters against thin or pathological books.
type Guardrails struct {
	MinBidNotional float64
	MinAskNotional float64
	// MaxSpreadBp of zero disables the spread ceiling.
	MaxSpreadBp  float64
	MinImbalance float64
	// TwoSided measures imbalance as larger/smaller notional instead of bid/ask.
	TwoSided bool
}

// Check returns the rejection reason, or ok when the metrics pass every guardrail.
func (g Guardrails) Check(m Metrics) (string, bool) {
	if m.BidNotional < g.MinBidNotional {
		return RejectThinBid, false
	}
	if m.AskNotional < g.MinAskNotional {
		return RejectThinAsk, false
	}
	if g.MaxSpreadBp > 0 && m.SpreadBp > g.MaxSpreadBp {
		return RejectWideSpread, false
	}
	imbalance := m.Imbalance
	if g.TwoSided {
		imbalance = m.SkewRatio
	}
	if g.MinImbalance > 0 && imbalance < g.MinImbalance {
		return RejectNoImbalance, false
	}
	return "", true
}
