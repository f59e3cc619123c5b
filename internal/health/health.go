// Package health serves a JSON status page for the running sniper.
package health

import (
	"encoding/json"
	"net/http"
	"time"

	"gapsniper-go/internal/risk"
	"gapsniper-go/internal/signal"
	"gapsniper-go/internal/strategy"
)

// Sources are read on every request; any of them may be nil.
type Sources struct {
	Targets  func() []string
	Tracked  func() int
	Recent   func() []signal.Signal
	Params   strategy.Params
	Limits   risk.Limits
	Provider string
	Detector string
	Emitter  string
	Started  time.Time
}

type status struct {
	OK       bool            `json:"ok"`
	Provider string          `json:"provider"`
	Detector string          `json:"detector"`
	Emitter  string          `json:"emitter"`
	Uptime   string          `json:"uptime"`
	Targets  []string        `json:"targets"`
	Tracked  int             `json:"tracked_instruments"`
	Params   map[string]any  `json:"params"`
	Recent   []signal.Signal `json:"recent_signals"`
}

// Handler renders Sources as JSON.
type Handler struct {
	src Sources
	now func() time.Time
}

// NewHandler builds the status handler.
func NewHandler(src Sources) *Handler {
	if src.Started.IsZero() {
		src.Started = time.Now()
	}
	return &Handler{src: src, now: time.Now}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st := status{
		OK:       true,
		Provider: h.src.Provider,
		Detector: h.src.Detector,
		Emitter:  h.src.Emitter,
		Uptime:   h.now().Sub(h.src.Started).Round(time.Second).String(),
		Targets:  []string{},
		Recent:   []signal.Signal{},
		Params:   h.params(),
	}
	if h.src.Targets != nil {
		st.Targets = h.src.Targets()
	}
	if h.src.Tracked != nil {
		st.Tracked = h.src.Tracked()
	}
	if h.src.Recent != nil {
		st.Recent = h.src.Recent()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

func (h *Handler) params() map[string]any {
	p, l := h.src.Params, h.src.Limits
	return map[string]any{
		"mode":                   p.Mode,
		"pressure_alpha":         p.PressureAlpha,
		"pressure_trigger":       p.PressureTrigger,
		"gap_spread_bp":          p.GapSpreadBp,
		"max_spread_bp":          p.MaxSpreadBp,
		"min_bid_notional":       p.MinBidNotional,
		"min_ask_notional":       p.MinAskNotional,
		"min_imbalance":          p.MinImbalance,
		"sustain_sec":            p.SustainDuration.Seconds(),
		"cooldown_sec":           l.Cooldown.Seconds(),
		"dedup_window_sec":       l.DedupWindow.Seconds(),
		"max_signals_per_minute": l.MaxPerMinute,
	}
}
