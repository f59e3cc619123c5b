// Package exchange hosts the quote transport and the instrument universe.
package exchange

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gapsniper-go/internal/metrics"
	"gapsniper-go/internal/signal"
)

const (
	// ProviderStub emits deterministic synthetic bid-heavy quotes (tests/offline work).
	ProviderStub = "stub"
	// ProviderBinance streams top-of-book from the Binance combined bookTicker websocket.
	ProviderBinance = "binance"
)

const (
	defaultBinanceStreamURL = "wss://stream.binance.com:9443/stream"
	defaultStubInterval     = 500 * time.Millisecond
	defaultReconnectCheck   = time.Second
)

// Feed is a pluggable quote stream over the current target set.
type Feed struct {
	provider       string
	targets        *TargetSet
	log            zerolog.Logger
	streamURL      string
	stubInterval   time.Duration
	reconnectCheck time.Duration
}

// Option configures Feed construction parameters.
type Option func(*Feed)

// WithStreamURL overrides the websocket endpoint (tests point it at httptest).
func WithStreamURL(u string) Option {
	return func(f *Feed) {
		if u != "" {
			f.streamURL = strings.TrimSuffix(u, "/")
		}
	}
}

// WithStubInterval overrides the synthetic quote cadence.
func WithStubInterval(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.stubInterval = d
		}
	}
}

// WithReconnectCheck sets how often the live stream polls the target-set version.
func WithReconnectCheck(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.reconnectCheck = d
		}
	}
}

// NewFeed constructs a feed backed by the requested provider.
func NewFeed(provider string, targets *TargetSet, log zerolog.Logger, opts ...Option) *Feed {
	if provider == "" {
		provider = ProviderStub
	}
	if targets == nil {
		targets = NewTargetSet(nil)
	}
	f := &Feed{
		provider:       strings.ToLower(provider),
		targets:        targets,
		log:            log,
		streamURL:      defaultBinanceStreamURL,
		stubInterval:   defaultStubInterval,
		reconnectCheck: defaultReconnectCheck,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Provider returns the normalized provider name.
func (f *Feed) Provider() string { return f.provider }

// Run pushes quotes onto out until the context is canceled.
func (f *Feed) Run(ctx context.Context, out chan<- signal.Quote) error {
	switch f.provider {
	case ProviderBinance:
		return f.runBinance(ctx, out)
	default:
		return f.runStub(ctx, out)
	}
}

// runStub walks every target up a slow bid-led trend with a 5:1 bid/ask notional skew.
func (f *Feed) runStub(ctx context.Context, out chan<- signal.Quote) error {
	ticker := time.NewTicker(f.stubInterval)
	defer ticker.Stop()

	step := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ts := <-ticker.C:
			step++
			for _, sym := range f.targets.Symbols() {
				q := stubQuote(sym, step, ts)
				select {
				case out <- q:
					metrics.QuotesTotal.WithLabelValues(sym).Inc()
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

func stubQuote(symbol string, step int, ts time.Time) signal.Quote {
	bid := 100 + 0.01*float64(step)
	ask := bid + 0.05
	return signal.Quote{
		Symbol:     symbol,
		Bid:        bid,
		BidQty:     5000 / bid,
		Ask:        ask,
		AskQty:     1000 / ask,
		ObservedAt: ts,
	}
}
