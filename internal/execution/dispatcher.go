package execution

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gapsniper-go/internal/metrics"
	"gapsniper-go/internal/signal"
)

// Delivery outcome labels.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
	OutcomeDropped  = "dropped"
)

// Dispatcher delivers signals off the hot path: one goroutine per delivery, a bounded number in
// flight, a per-call timeout and no retries. When saturated the delivery is dropped.
type Dispatcher struct {
	emitter Emitter
	log     zerolog.Logger
	timeout time.Duration
	slots   chan struct{}
	wg      sync.WaitGroup

	// OnOutcome, when set, observes every finished delivery.
	OnOutcome func(signal.Signal, signal.Outcome, error)
}

// NewDispatcher wraps an emitter.
func NewDispatcher(emitter Emitter, log zerolog.Logger, timeout time.Duration, maxInFlight int) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxInFlight < 1 {
		maxInFlight = 8
	}
	return &Dispatcher{
		emitter: emitter,
		log:     log,
		timeout: timeout,
		slots:   make(chan struct{}, maxInFlight),
	}
}

// Dispatch starts delivering s and returns immediately; false means it was dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, s signal.Signal) bool {
	select {
	case d.slots <- struct{}{}:
	default:
		metrics.DeliveriesTotal.WithLabelValues(OutcomeDropped).Inc()
		d.log.Warn().Str("sym", s.Symbol).Str("emitter", d.emitter.Name()).Msg("delivery dropped, emitter saturated")
		return false
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() { <-d.slots }()
		d.deliver(ctx, s)
	}()
	return true
}

func (d *Dispatcher) deliver(ctx context.Context, s signal.Signal) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	started := time.Now()
	out, err := d.emitter.Emit(ctx, s.Base)
	logEv := d.log.Info()
	label := OutcomeAccepted
	switch {
	case err != nil:
		label = OutcomeError
		logEv = d.log.Warn().Err(err)
	case !out.Accepted:
		label = OutcomeRejected
		logEv = d.log.Warn()
	}
	metrics.DeliveriesTotal.WithLabelValues(label).Inc()
	logEv.
		Str("sym", s.Symbol).
		Str("base", s.Base).
		Str("signal_id", s.ID).
		Str("emitter", d.emitter.Name()).
		Str("outcome", label).
		Str("detail", out.Detail).
		Dur("took", time.Since(started)).
		Msg("signal delivery")

	if d.OnOutcome != nil {
		d.OnOutcome(s, out, err)
	}
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() { d.wg.Wait() }
