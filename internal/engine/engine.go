// Package engine wires target filtering, detection, throttling and delivery into one quote path.
package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"runtime/debug"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"gapsniper-go/internal/execution"
	"gapsniper-go/internal/journal"
	"gapsniper-go/internal/metrics"
	"gapsniper-go/internal/risk"
	"gapsniper-go/internal/signal"
	"gapsniper-go/internal/strategy"
)

// Outcome verdicts added on top of the detector's own.
const (
	VerdictNotTargeted = "not-targeted"
	VerdictThrottled   = "throttled"
	VerdictEmitted     = "emitted"
	VerdictDropped     = "dropped"
	VerdictFault       = "fault"
)

// Targets reports whether an instrument is in the current universe.
type Targets interface {
	Contains(symbol string) bool
}

// Dispatcher hands a signal to the emitter without blocking; false means it was dropped.
type Dispatcher interface {
	Dispatch(ctx context.Context, s signal.Signal) bool
}

// Outcome summarizes what happened to one quote.
type Outcome struct {
	Symbol  string
	Verdict string
	Reason  string
	Signal  *signal.Signal
}

// Options carries the optional collaborators.
type Options struct {
	QuoteAsset string
	Journal    journal.Recorder
	NewID      func() string
}

// Engine processes quotes. Process is safe for concurrent use across instruments; Run guarantees
// that quotes for one instrument are processed in arrival order by a single worker.
type Engine struct {
	log        zerolog.Logger
	targets    Targets
	detector   strategy.Strategy
	throttle   *risk.Throttle
	dispatcher Dispatcher
	journal    journal.Recorder
	quoteAsset string
	newID      func() string
}

// New builds an engine.
func New(log zerolog.Logger, targets Targets, detector strategy.Strategy, throttle *risk.Throttle, dispatcher Dispatcher, opts Options) *Engine {
	if opts.QuoteAsset == "" {
		opts.QuoteAsset = "USDT"
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}
	if opts.Journal == nil {
		opts.Journal = journal.Multi(nil)
	}
	return &Engine{
		log:        log,
		targets:    targets,
		detector:   detector,
		throttle:   throttle,
		dispatcher: dispatcher,
		journal:    opts.Journal,
		quoteAsset: opts.QuoteAsset,
		newID:      opts.NewID,
	}
}

// Process runs one quote through the pipeline. A panic anywhere below is contained to this quote.
func (e *Engine) Process(ctx context.Context, q signal.Quote) (out Outcome) {
	out.Symbol = q.Symbol
	defer func() {
		if r := recover(); r != nil {
			metrics.FaultsTotal.WithLabelValues(q.Symbol).Inc()
			e.log.Error().
				Str("sym", q.Symbol).
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("quote processing fault")
			out = Outcome{Symbol: q.Symbol, Verdict: VerdictFault, Reason: fmt.Sprint(r)}
		}
	}()

	if !e.targets.Contains(q.Symbol) {
		metrics.RejectionsTotal.WithLabelValues(VerdictNotTargeted).Inc()
		return Outcome{Symbol: q.Symbol, Verdict: VerdictNotTargeted}
	}

	ev := e.detector.OnQuote(q)
	switch ev.Verdict {
	case strategy.VerdictMalformed:
		metrics.RejectionsTotal.WithLabelValues(string(strategy.VerdictMalformed)).Inc()
		e.log.Debug().Str("sym", q.Symbol).Msg("reject malformed quote")
		return Outcome{Symbol: q.Symbol, Verdict: string(ev.Verdict)}
	case strategy.VerdictGuardrail:
		metrics.RejectionsTotal.WithLabelValues(ev.Reason).Inc()
		e.log.Debug().
			Str("sym", q.Symbol).
			Str("reason", ev.Reason).
			Float64("spread_bp", ev.Metrics.SpreadBp).
			Float64("bid_notional", ev.Metrics.BidNotional).
			Float64("ask_notional", ev.Metrics.AskNotional).
			Msg("reject quote")
		return Outcome{Symbol: q.Symbol, Verdict: string(ev.Verdict), Reason: ev.Reason}
	case strategy.VerdictCandidate:
	default:
		return Outcome{Symbol: q.Symbol, Verdict: string(ev.Verdict)}
	}

	metrics.CandidatesTotal.WithLabelValues(q.Symbol).Inc()
	s := *ev.Signal
	decision := e.throttle.Allow(s.Symbol, s.Metric, q.ObservedAt)
	if !decision.OK {
		metrics.ThrottledTotal.WithLabelValues(decision.Reason).Inc()
		e.log.Debug().Str("sym", s.Symbol).Str("reason", decision.Reason).Str("key", decision.Key).Msg("candidate throttled")
		return Outcome{Symbol: q.Symbol, Verdict: VerdictThrottled, Reason: decision.Reason}
	}

	s.ID = e.newID()
	s.Base = execution.BaseAsset(s.Symbol, e.quoteAsset)
	metrics.SignalsTotal.WithLabelValues(s.Symbol).Inc()
	e.journal.Record(s)
	e.log.Info().
		Str("sym", s.Symbol).
		Str("base", s.Base).
		Str("signal_id", s.ID).
		Float64("pressure", s.Pressure).
		Float64("slope_bp", s.MidSlopeBp).
		Float64("spread_bp", s.SpreadBp).
		Int("upticks", s.Upticks).
		Int64("sustained_ms", s.SustainedMs).
		Msg("signal")

	verdict := VerdictEmitted
	if !e.dispatcher.Dispatch(ctx, s) {
		verdict = VerdictDropped
	}
	return Outcome{Symbol: q.Symbol, Verdict: verdict, Reason: s.Reason, Signal: &s}
}

// Run consumes quotes until ctx is done or in is closed. Each instrument hashes to one of workers
// goroutines; hand-off is unbuffered so a slow worker backs up into in.
func (e *Engine) Run(ctx context.Context, in <-chan signal.Quote, workers int) error {
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	shards := make([]chan signal.Quote, workers)
	for i := range shards {
		ch := make(chan signal.Quote)
		shards[i] = ch
		g.Go(func() error {
			for q := range ch {
				e.Process(gctx, q)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			for _, ch := range shards {
				close(ch)
			}
		}()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case q, ok := <-in:
				if !ok {
					return nil
				}
				select {
				case shards[shardFor(q.Symbol, workers)] <- q:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		}
	})

	e.log.Info().Int("workers", workers).Str("detector", e.detector.Name()).Msg("engine started")
	err := g.Wait()
	e.log.Info().Msg("engine stopped")
	return err
}

func shardFor(symbol string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return int(h.Sum32() % uint32(n))
}
