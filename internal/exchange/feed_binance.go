package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"gapsniper-go/internal/metrics"
	"gapsniper-go/internal/signal"
)

var errUniverseChanged = errors.New("target universe changed")

type binanceEnvelope struct {
	Stream string            `json:"stream"`
	Data   binanceBookTicker `json:"data"`
}

type binanceBookTicker struct {
	UpdateID int64  `json:"u"`
	Symbol   string `json:"s"`
	Bid      string `json:"b"`
	BidQty   string `json:"B"`
	Ask      string `json:"a"`
	AskQty   string `json:"A"`
}

func (f *Feed) runBinance(ctx context.Context, out chan<- signal.Quote) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		version := f.targets.Version()
		symbols := f.targets.Symbols()
		if len(symbols) == 0 {
			f.log.Warn().Msg("no target instruments, waiting for discovery")
			if err := f.waitForChange(ctx, version); err != nil {
				return err
			}
			continue
		}

		err := f.consumeBinanceStream(ctx, f.binanceURL(symbols), version, symbols, out, func() { backoff = time.Second })
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, errUniverseChanged):
			metrics.FeedReconnects.Inc()
			f.log.Info().Int("targets", f.targets.Len()).Msg("target universe changed, reconnecting")
			continue
		case err == nil:
			return nil
		}

		metrics.FeedReconnects.Inc()
		f.log.Warn().Err(err).Dur("backoff", backoff).Msg("binance feed disconnected, retrying")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
	}
}

func (f *Feed) binanceURL(symbols []string) string {
	streams := make([]string, len(symbols))
	for i, sym := range symbols {
		streams[i] = strings.ToLower(sym) + "@bookTicker"
	}
	return fmt.Sprintf("%s?streams=%s", f.streamURL, strings.Join(streams, "/"))
}

func (f *Feed) waitForChange(ctx context.Context, version uint64) error {
	ticker := time.NewTicker(f.reconnectCheck)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if f.targets.Version() != version {
				return nil
			}
		}
	}
}

func (f *Feed) consumeBinanceStream(ctx context.Context, url string, version uint64, symbols []string, out chan<- signal.Quote, onConnect func()) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	onConnect()

	f.log.Info().Str("provider", ProviderBinance).Int("symbols", len(symbols)).Msg("connected quote stream")

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	})

	var changed atomic.Bool
	stale := make(chan struct{})
	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	go func() {
		ping := time.NewTicker(15 * time.Second)
		defer ping.Stop()
		check := time.NewTicker(f.reconnectCheck)
		defer check.Stop()
		for {
			select {
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					f.log.Warn().Err(err).Msg("binance ping failed")
					return
				}
			case <-check.C:
				if f.targets.Version() != version {
					changed.Store(true)
					close(stale)
					_ = conn.Close()
					return
				}
			case <-watchCtx.Done():
				_ = conn.Close()
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if changed.Load() {
				return errUniverseChanged
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		q, err := parseBookTicker(message, time.Now())
		if err != nil {
			f.log.Debug().Err(err).Msg("skipping binance message")
			continue
		}
		select {
		case out <- q:
			metrics.QuotesTotal.WithLabelValues(q.Symbol).Inc()
		case <-stale:
			return errUniverseChanged
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// parseBookTicker decodes one combined-stream bookTicker frame. Numeric validity is left to the
// detector, which counts malformed quotes.
func parseBookTicker(message []byte, observed time.Time) (signal.Quote, error) {
	var env binanceEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		return signal.Quote{}, fmt.Errorf("decode envelope: %w", err)
	}
	symbol := strings.ToUpper(env.Data.Symbol)
	if symbol == "" {
		symbol = parseBinanceSymbol(env.Stream)
	}
	if symbol == "" {
		return signal.Quote{}, errors.New("missing symbol")
	}
	fields := [4]string{env.Data.Bid, env.Data.BidQty, env.Data.Ask, env.Data.AskQty}
	var vals [4]float64
	for i, raw := range fields {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return signal.Quote{}, fmt.Errorf("parse %s field %d: %w", symbol, i, err)
		}
		vals[i] = v
	}
	return signal.Quote{
		Symbol:     symbol,
		Bid:        vals[0],
		BidQty:     vals[1],
		Ask:        vals[2],
		AskQty:     vals[3],
		ObservedAt: observed,
	}, nil
}

func parseBinanceSymbol(stream string) string {
	parts := strings.Split(stream, "@")
	if len(parts) == 0 || parts[0] == "" {
		return strings.ToUpper(stream)
	}
	return strings.ToUpper(parts[0])
}
