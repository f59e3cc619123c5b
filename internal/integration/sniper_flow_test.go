package integration

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gapsniper-go/internal/engine"
	"gapsniper-go/internal/exchange"
	"gapsniper-go/internal/execution"
	"gapsniper-go/internal/journal"
	"gapsniper-go/internal/risk"
	sig "gapsniper-go/internal/signal"
	"gapsniper-go/internal/strategy"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestStubFeedProducesSignal(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	targets := exchange.NewTargetSet([]string{"ADAUSDT"})
	feed := exchange.NewFeed(exchange.ProviderStub, targets, zerolog.Nop(), exchange.WithStubInterval(20*time.Millisecond))

	detector, err := strategy.Build(strategy.Params{
		Mode:            strategy.ModePressureTrend,
		WindowCapacity:  256,
		LookbackHorizon: 2 * time.Second,
		PressureAlpha:   0.35,
		PressureTrigger: 0.55,
		MaxSpreadBp:     25,
		MinBidNotional:  500,
		MinAskNotional:  500,
		MinImbalance:    1.5,
		MinSlopeBp:      0.5,
		MinUpticks:      3,
		SustainDuration: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	var logs syncBuffer
	logger := zerolog.New(&logs)
	dispatcher := execution.NewDispatcher(execution.NewLogEmitter(logger), zerolog.Nop(), time.Second, 2)
	delivered := make(chan sig.Signal, 4)
	dispatcher.OnOutcome = func(s sig.Signal, out sig.Outcome, err error) {
		if err == nil && out.Accepted {
			delivered <- s
		}
	}

	ledger := journal.NewLedger(8)
	eng := engine.New(zerolog.Nop(), targets, detector, risk.NewThrottle(risk.Limits{
		Cooldown:     time.Minute,
		DedupWindow:  4 * time.Second,
		MaxPerMinute: 12,
	}), dispatcher, engine.Options{QuoteAsset: "USDT", Journal: ledger})

	quotes := make(chan sig.Quote, 16)
	go func() { _ = feed.Run(ctx, quotes) }()
	go func() { _ = eng.Run(ctx, quotes, 2) }()

	select {
	case s := <-delivered:
		if s.Symbol != "ADAUSDT" || s.Base != "ADA" || s.ID == "" {
			t.Fatalf("unexpected signal %+v", s)
		}
		if s.SustainedMs < 200 {
			t.Fatalf("signal fired before the sustain window: %dms", s.SustainedMs)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for a signal")
	}
	cancel()
	dispatcher.Wait()

	if !strings.Contains(logs.String(), `"base":"ADA"`) {
		t.Fatalf("expected emitter log to include the base asset, got %s", logs.String())
	}
	if got := ledger.Recent(); len(got) != 1 || got[0].Symbol != "ADAUSDT" {
		t.Fatalf("expected one journaled signal, got %+v", got)
	}
}
