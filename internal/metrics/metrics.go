package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QuotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "quotes_total", Help: "Count of top-of-book quotes ingested"},
		[]string{"symbol"},
	)
	RejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "quote_rejections_total", Help: "Quotes dropped before the sustain gate"},
		[]string{"reason"},
	)
	CandidatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sustain_candidates_total", Help: "Sustained candidates produced by the detector"},
		[]string{"symbol"},
	)
	ThrottledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "throttled_total", Help: "Candidates rejected by cooldown, rate or dedup"},
		[]string{"reason"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Signals handed to the emitter"},
		[]string{"symbol"},
	)
	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "deliveries_total", Help: "Emitter outcomes"},
		[]string{"outcome"},
	)
	FaultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "processing_faults_total", Help: "Recovered panics while processing a quote"},
		[]string{"symbol"},
	)
	Targets = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "target_instruments", Help: "Size of the current target set"},
	)
	FeedReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "feed_reconnects_total", Help: "Quote stream reconnects, including universe changes"},
	)
)

func init() {
	prometheus.MustRegister(
		QuotesTotal,
		RejectionsTotal,
		CandidatesTotal,
		ThrottledTotal,
		SignalsTotal,
		DeliveriesTotal,
		FaultsTotal,
		Targets,
		FeedReconnects,
	)
}

// Serve exposes /metrics and, when provided, the health handler at / and /healthz.
func Serve(addr string, health http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if health != nil {
		mux.Handle("/healthz", health)
		mux.Handle("/", health)
	}
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
