package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gapsniper-go/internal/exchange"
	"gapsniper-go/internal/risk"
	"gapsniper-go/internal/signal"
	"gapsniper-go/internal/strategy"
)

func TestHandlerReportsStatus(t *testing.T) {
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	det, err := strategy.Build(strategy.Params{Mode: strategy.ModeSpreadGap, WindowCapacity: 64, PressureAlpha: 0.35, GapSpreadBp: 30})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	throttle := risk.NewThrottle(risk.Limits{Cooldown: 45 * time.Second, MaxPerMinute: 12})
	feed := exchange.NewFeed(exchange.ProviderStub, exchange.NewTargetSet(nil), zerolog.Nop())

	h := NewHandler(Sources{
		Targets:  func() []string { return []string{"ADAUSDT", "OGNUSDT"} },
		Tracked:  func() int { return 2 },
		Recent:   func() []signal.Signal { return []signal.Signal{{ID: "sig-1", Symbol: "ADAUSDT", Base: "ADA"}} },
		Params:   det.Params(),
		Limits:   throttle.Limits(),
		Provider: feed.Provider(),
		Detector: det.Name(),
		Emitter:  "webhook",
		Started:  started,
	})
	h.now = func() time.Time { return started.Add(90 * time.Second) }

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %s", ct)
	}

	var body struct {
		OK       bool            `json:"ok"`
		Provider string          `json:"provider"`
		Detector string          `json:"detector"`
		Uptime   string          `json:"uptime"`
		Targets  []string        `json:"targets"`
		Tracked  int             `json:"tracked_instruments"`
		Params   map[string]any  `json:"params"`
		Recent   []signal.Signal `json:"recent_signals"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.OK || body.Uptime != "1m30s" || len(body.Targets) != 2 || body.Tracked != 2 {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.Provider != exchange.ProviderStub || body.Detector != "Sustain[spread_gap]" {
		t.Fatalf("unexpected provider/detector %q %q", body.Provider, body.Detector)
	}
	if body.Params["gap_spread_bp"] != 30.0 || body.Params["cooldown_sec"] != 45.0 {
		t.Fatalf("unexpected params %+v", body.Params)
	}
	if len(body.Recent) != 1 || body.Recent[0].Base != "ADA" {
		t.Fatalf("unexpected recent %+v", body.Recent)
	}
}

func TestHandlerEmptySources(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandler(Sources{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if targets, ok := body["targets"].([]any); !ok || len(targets) != 0 {
		t.Fatalf("targets should be an empty list, got %v", body["targets"])
	}
}

func TestHandlerRejectsPost(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandler(Sources{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
