package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"gapsniper-go/internal/journal"
	"gapsniper-go/internal/metrics"
	"gapsniper-go/internal/risk"
	"gapsniper-go/internal/signal"
	"gapsniper-go/internal/strategy"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type staticTargets map[string]bool

func (s staticTargets) Contains(symbol string) bool { return s[symbol] }

type allTargets struct{}

func (allTargets) Contains(string) bool { return true }

type recordingDispatcher struct {
	mu      sync.Mutex
	signals []signal.Signal
	refuse  bool
}

func (r *recordingDispatcher) Dispatch(_ context.Context, s signal.Signal) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refuse {
		return false
	}
	r.signals = append(r.signals, s)
	return true
}

func (r *recordingDispatcher) Signals() []signal.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]signal.Signal(nil), r.signals...)
}

func detectorParams() strategy.Params {
	return strategy.Params{
		Mode:            strategy.ModePressureTrend,
		WindowCapacity:  256,
		LookbackHorizon: 2 * time.Second,
		PressureAlpha:   0.35,
		PressureTrigger: 0.55,
		PressureClear:   0.40,
		MaxSpreadBp:     25,
		MinBidNotional:  500,
		MinAskNotional:  500,
		MinImbalance:    1.5,
		MinSlopeBp:      0.5,
		MinUpticks:      3,
		SustainDuration: 1500 * time.Millisecond,
	}
}

func bidHeavy(symbol string, i int) signal.Quote {
	bid := 100 + 0.01*float64(i)
	ask := bid + 0.05
	return signal.Quote{
		Symbol:     symbol,
		Bid:        bid,
		BidQty:     5000 / bid,
		Ask:        ask,
		AskQty:     1000 / ask,
		ObservedAt: t0.Add(time.Duration(i) * 100 * time.Millisecond),
	}
}

func newTestEngine(t *testing.T, targets Targets, limits risk.Limits, disp Dispatcher, rec journal.Recorder) *Engine {
	t.Helper()
	det, err := strategy.Build(detectorParams())
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	seq := 0
	return New(zerolog.Nop(), targets, det, risk.NewThrottle(limits), disp, Options{
		QuoteAsset: "USDT",
		Journal:    rec,
		NewID: func() string {
			seq++
			return fmt.Sprintf("sig-%d", seq)
		},
	})
}

func TestProcessRejectsUntargetedInstrument(t *testing.T) {
	disp := &recordingDispatcher{}
	eng := newTestEngine(t, staticTargets{"ADAUSDT": true}, risk.Limits{MaxPerMinute: 10}, disp, nil)

	before := testutil.ToFloat64(metrics.RejectionsTotal.WithLabelValues(VerdictNotTargeted))
	out := eng.Process(context.Background(), bidHeavy("XRPUSDT", 0))
	if out.Verdict != VerdictNotTargeted {
		t.Fatalf("expected not-targeted, got %s", out.Verdict)
	}
	if got := testutil.ToFloat64(metrics.RejectionsTotal.WithLabelValues(VerdictNotTargeted)); got != before+1 {
		t.Fatalf("expected rejection counter to advance")
	}
}

func TestSustainedPressureEmitsOnceThenCoolsDown(t *testing.T) {
	disp := &recordingDispatcher{}
	ledger := journal.NewLedger(10)
	eng := newTestEngine(t, allTargets{}, risk.Limits{Cooldown: 45 * time.Second, DedupWindow: 4 * time.Second, MaxPerMinute: 12}, disp, ledger)

	throttled := 0
	for i := 0; i < 80; i++ {
		out := eng.Process(context.Background(), bidHeavy("ADAUSDT", i))
		if out.Verdict == VerdictThrottled {
			if out.Reason != risk.ReasonCooldown {
				t.Fatalf("expected cooldown throttle, got %s", out.Reason)
			}
			throttled++
		}
		if out.Verdict == VerdictEmitted && i != 19 {
			t.Fatalf("unexpected emission at tick %d", i)
		}
	}

	sigs := disp.Signals()
	if len(sigs) != 1 {
		t.Fatalf("expected exactly one signal, got %d", len(sigs))
	}
	if sigs[0].Base != "ADA" || sigs[0].ID != "sig-1" || !sigs[0].Ts.Equal(bidHeavy("ADAUSDT", 19).ObservedAt) {
		t.Fatalf("unexpected signal %+v", sigs[0])
	}
	if throttled == 0 {
		t.Fatalf("expected re-qualifying candidates to be throttled by cooldown")
	}
	if got := ledger.Recent(); len(got) != 1 || got[0].ID != "sig-1" {
		t.Fatalf("journal should hold the emitted signal, got %+v", got)
	}
}

func TestGlobalRateCapAcrossInstruments(t *testing.T) {
	disp := &recordingDispatcher{}
	eng := newTestEngine(t, allTargets{}, risk.Limits{MaxPerMinute: 3, DedupWindow: 4 * time.Second}, disp, nil)

	rateLimited := 0
	for i := 0; i < 20; i++ {
		for s := 0; s < 10; s++ {
			out := eng.Process(context.Background(), bidHeavy(fmt.Sprintf("S%dUSDT", s), i))
			if out.Verdict == VerdictThrottled && out.Reason == risk.ReasonRate {
				rateLimited++
			}
		}
	}
	if got := len(disp.Signals()); got != 3 {
		t.Fatalf("expected rate cap of 3 emissions, got %d", got)
	}
	if rateLimited != 7 {
		t.Fatalf("expected 7 rate-limited candidates, got %d", rateLimited)
	}
}

func TestDroppedDeliveryStillConsumesThrottle(t *testing.T) {
	disp := &recordingDispatcher{refuse: true}
	eng := newTestEngine(t, allTargets{}, risk.Limits{Cooldown: 45 * time.Second, MaxPerMinute: 12}, disp, nil)

	var verdicts []string
	for i := 0; i < 40; i++ {
		out := eng.Process(context.Background(), bidHeavy("ADAUSDT", i))
		if out.Verdict == VerdictDropped || out.Verdict == VerdictThrottled {
			verdicts = append(verdicts, out.Verdict)
		}
	}
	if len(verdicts) < 2 || verdicts[0] != VerdictDropped || verdicts[1] != VerdictThrottled {
		t.Fatalf("a dropped delivery must still start the cooldown, got %v", verdicts)
	}
}

func TestEngineDeterminism(t *testing.T) {
	run := func() []string {
		eng := newTestEngine(t, allTargets{}, risk.Limits{Cooldown: 500 * time.Millisecond, DedupWindow: time.Second, MaxPerMinute: 12}, &recordingDispatcher{}, nil)
		var out []string
		for i := 0; i < 60; i++ {
			for _, sym := range []string{"AUSDT", "BUSDT"} {
				o := eng.Process(context.Background(), bidHeavy(sym, i))
				out = append(out, o.Symbol+":"+o.Verdict+":"+o.Reason)
			}
		}
		return out
	}
	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("length mismatch")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("outcome %d differs: %s vs %s", i, a[i], b[i])
		}
	}
}

type panickyStrategy struct{ inner strategy.Strategy }

func (p panickyStrategy) Name() string { return "panicky" }

func (p panickyStrategy) OnQuote(q signal.Quote) strategy.Evaluation {
	if q.Symbol == "BOOMUSDT" {
		panic("corrupt book")
	}
	return p.inner.OnQuote(q)
}

func TestProcessContainsFaults(t *testing.T) {
	det, err := strategy.Build(detectorParams())
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	disp := &recordingDispatcher{}
	eng := New(zerolog.Nop(), allTargets{}, panickyStrategy{inner: det}, risk.NewThrottle(risk.Limits{MaxPerMinute: 12}), disp, Options{})

	before := testutil.ToFloat64(metrics.FaultsTotal.WithLabelValues("BOOMUSDT"))
	out := eng.Process(context.Background(), bidHeavy("BOOMUSDT", 0))
	if out.Verdict != VerdictFault {
		t.Fatalf("expected fault verdict, got %s", out.Verdict)
	}
	if got := testutil.ToFloat64(metrics.FaultsTotal.WithLabelValues("BOOMUSDT")); got != before+1 {
		t.Fatalf("fault counter did not advance")
	}

	emitted := 0
	for i := 0; i < 20; i++ {
		if eng.Process(context.Background(), bidHeavy("ADAUSDT", i)).Verdict == VerdictEmitted {
			emitted++
		}
	}
	if emitted != 1 {
		t.Fatalf("healthy instrument should keep working after a fault, emitted=%d", emitted)
	}
	if id := disp.Signals()[0].ID; id == "" {
		t.Fatalf("default id generator should assign an id")
	}
}

type orderingStrategy struct {
	mu   sync.Mutex
	seen map[string][]float64
}

func (o *orderingStrategy) Name() string { return "ordering" }

func (o *orderingStrategy) OnQuote(q signal.Quote) strategy.Evaluation {
	o.mu.Lock()
	o.seen[q.Symbol] = append(o.seen[q.Symbol], q.Bid)
	o.mu.Unlock()
	return strategy.Evaluation{Symbol: q.Symbol, Verdict: strategy.VerdictIdle}
}

func TestRunPreservesPerInstrumentOrder(t *testing.T) {
	strat := &orderingStrategy{seen: map[string][]float64{}}
	eng := New(zerolog.Nop(), allTargets{}, strat, risk.NewThrottle(risk.Limits{}), &recordingDispatcher{}, Options{})

	in := make(chan signal.Quote)
	done := make(chan error, 1)
	go func() { done <- eng.Run(context.Background(), in, 4) }()

	symbols := []string{"AUSDT", "BUSDT", "CUSDT", "DUSDT", "EUSDT"}
	for i := 0; i < 200; i++ {
		for _, sym := range symbols {
			in <- signal.Quote{Symbol: sym, Bid: float64(i)}
		}
	}
	close(in)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after input closed")
	}

	for _, sym := range symbols {
		seq := strat.seen[sym]
		if len(seq) != 200 {
			t.Fatalf("%s: expected 200 quotes, got %d", sym, len(seq))
		}
		for i := range seq {
			if seq[i] != float64(i) {
				t.Fatalf("%s: out of order at %d: %v", sym, i, seq[i])
			}
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	eng := New(zerolog.Nop(), allTargets{}, &orderingStrategy{seen: map[string][]float64{}}, risk.NewThrottle(risk.Limits{}), &recordingDispatcher{}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx, make(chan signal.Quote), 2) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop")
	}
}

func TestShardForIsStable(t *testing.T) {
	for _, sym := range []string{"ADAUSDT", "OGNUSDT", "BTCUSDT"} {
		a, b := shardFor(sym, 7), shardFor(sym, 7)
		if a != b || a < 0 || a >= 7 {
			t.Fatalf("unstable shard for %s: %d %d", sym, a, b)
		}
	}
}
