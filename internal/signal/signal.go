// Package signal standardizes payloads shared between the quote transport, the detector and the emitter.
package signal

import (
	"math"
	"time"
)

// Quote models a decoded top-of-book update for one instrument.
type Quote struct {
	Symbol     string
	Bid        float64
	BidQty     float64
	Ask        float64
	AskQty     float64
	ObservedAt time.Time
}

// Valid reports whether the quote can be fed to the detector: a symbol, finite values,
// non-negative sizes and an uncrossed book with ask > bid > 0.
func (q Quote) Valid() bool {
	if q.Symbol == "" {
		return false
	}
	for _, v := range []float64{q.Bid, q.Ask, q.BidQty, q.AskQty} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	if q.BidQty < 0 || q.AskQty < 0 {
		return false
	}
	return q.Bid > 0 && q.Ask > q.Bid
}

// Mid returns the midpoint of the best bid and ask.
func (q Quote) Mid() float64 { return (q.Bid + q.Ask) / 2 }

// Signal is a sustained candidate that cleared the throttle and is handed to the emitter.
type Signal struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Base   string `json:"base"`
	// Metric is the triggering value used for dedup bucketing (pressure EWMA or spread bp).
	Metric      float64   `json:"metric"`
	SpreadBp    float64   `json:"spread_bp"`
	Pressure    float64   `json:"pressure"`
	MidSlopeBp  float64   `json:"mid_slope_bp"`
	Upticks     int       `json:"upticks"`
	Reason      string    `json:"reason"`
	SustainedMs int64     `json:"sustained_ms"`
	Ts          time.Time `json:"ts"`
}

// Outcome is what the downstream agent answered for one emission.
type Outcome struct {
	Accepted bool
	Detail   string
}
