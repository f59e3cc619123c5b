package config

import (
	"time"

	"gapsniper-go/internal/risk"
	"gapsniper-go/internal/strategy"
)

// Default values applied to keys absent from the config file.
const (
	DefaultMetricsAddr     = ":9100"
	DefaultLogLevel        = "info"
	DefaultProvider        = "binance"
	DefaultQuoteAsset      = "USDT"
	DefaultReconnectCheck  = 1000
	DefaultQuoteCurrency   = "EUR"
	DefaultTopN            = 10
	DefaultRefreshInterval = 180_000

	DefaultWindowCapacity     = 256
	DefaultLookbackHorizonSec = 2.0
	DefaultPressureAlpha      = 0.35
	DefaultPressureTrigger    = 0.55
	DefaultPressureClear      = 0.40
	DefaultGapSpreadBp        = 30.0
	DefaultMaxSpreadBp        = 25.0
	DefaultMinNotional        = 1200.0
	DefaultMinImbalance       = 1.6
	DefaultImbalanceMode      = ImbalanceBid
	DefaultMinSlopeBp         = 0.5
	DefaultMinUpticks         = 3
	DefaultSustainDurationSec = 1.2

	DefaultCooldownSec         = 45.0
	DefaultDedupWindowSec      = 4.0
	DefaultDedupBucket         = 0.01
	DefaultMaxSignalsPerMinute = 12

	DefaultEmitterMode  = EmitterLog
	DefaultTimeoutMs    = 10_000
	DefaultMaxInFlight  = 8
	DefaultKafkaTopic   = "gapsniper.signals"
	DefaultWorkers      = 4
	DefaultJournalLimit = 50
)

// Imbalance modes.
const (
	ImbalanceBid    = "bid"
	ImbalanceEither = "either"
)

// Emitter modes.
const (
	EmitterLog     = "log"
	EmitterWebhook = "webhook"
	EmitterKafka   = "kafka"
)

// Default returns a config carrying every default for the given detector mode. Tunables where zero
// is a meaningful setting are only defaulted here, so Load seeds them before decoding.
func Default(mode string) *Config {
	cfg := &Config{
		Detector: Detector{
			Mode:               mode,
			PressureTrigger:    DefaultPressureTrigger,
			PressureClear:      DefaultPressureClear,
			GapSpreadBp:        DefaultGapSpreadBp,
			MinBidNotional:     DefaultMinNotional,
			MinAskNotional:     DefaultMinNotional,
			MinImbalance:       DefaultMinImbalance,
			MinSlopeBp:         DefaultMinSlopeBp,
			MinUpticks:         DefaultMinUpticks,
			SustainDurationSec: DefaultSustainDurationSec,
		},
		Throttle: Throttle{
			CooldownSec:    DefaultCooldownSec,
			DedupWindowSec: DefaultDedupWindowSec,
		},
	}
	// The spread ceiling stays off in gap mode, where a wide spread is the signal.
	if mode != strategy.ModeSpreadGap {
		cfg.Detector.MaxSpreadBp = DefaultMaxSpreadBp
	}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills fields whose zero value is never valid.
func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "gapsniper"
	}
	if c.App.MetricsAddr == "" {
		c.App.MetricsAddr = DefaultMetricsAddr
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = DefaultLogLevel
	}

	ex := &c.Exchange
	if ex.Provider == "" {
		ex.Provider = DefaultProvider
	}
	if ex.QuoteAsset == "" {
		ex.QuoteAsset = DefaultQuoteAsset
	}
	if ex.ReconnectCheckMs == 0 {
		ex.ReconnectCheckMs = DefaultReconnectCheck
	}
	if ex.Discovery.QuoteCurrency == "" {
		ex.Discovery.QuoteCurrency = DefaultQuoteCurrency
	}
	if ex.Discovery.TopN == 0 {
		ex.Discovery.TopN = DefaultTopN
	}
	if ex.Discovery.RefreshInterval == 0 {
		ex.Discovery.RefreshInterval = DefaultRefreshInterval
	}

	d := &c.Detector
	if d.Mode == "" {
		d.Mode = strategy.ModePressureTrend
	}
	if d.WindowCapacity == 0 {
		d.WindowCapacity = DefaultWindowCapacity
	}
	if d.LookbackHorizonSec == 0 {
		d.LookbackHorizonSec = DefaultLookbackHorizonSec
	}
	if d.PressureAlpha == 0 {
		d.PressureAlpha = DefaultPressureAlpha
	}
	if d.ImbalanceMode == "" {
		d.ImbalanceMode = DefaultImbalanceMode
	}

	th := &c.Throttle
	if th.DedupBucket == 0 {
		th.DedupBucket = DefaultDedupBucket
	}
	if th.MaxSignalsPerMinute == 0 {
		th.MaxSignalsPerMinute = DefaultMaxSignalsPerMinute
	}

	em := &c.Emitter
	if em.Mode == "" {
		em.Mode = DefaultEmitterMode
	}
	if em.TimeoutMs == 0 {
		em.TimeoutMs = DefaultTimeoutMs
	}
	if em.MaxInFlight == 0 {
		em.MaxInFlight = DefaultMaxInFlight
	}
	if em.Kafka.Topic == "" {
		em.Kafka.Topic = DefaultKafkaTopic
	}

	if c.Engine.Workers == 0 {
		c.Engine.Workers = DefaultWorkers
	}
	if c.Journal.Recent == 0 {
		c.Journal.Recent = DefaultJournalLimit
	}
}

// StrategyParams converts the detector section into detector parameters.
func (c *Config) StrategyParams() strategy.Params {
	d := c.Detector
	return strategy.Params{
		Mode:            d.Mode,
		Predicates:      append([]string(nil), d.Predicates...),
		WindowCapacity:  d.WindowCapacity,
		LookbackHorizon: seconds(d.LookbackHorizonSec),
		PressureAlpha:   d.PressureAlpha,
		PressureTrigger: d.PressureTrigger,
		PressureClear:   d.PressureClear,
		GapSpreadBp:     d.GapSpreadBp,
		MaxSpreadBp:     d.MaxSpreadBp,
		MinBidNotional:  d.MinBidNotional,
		MinAskNotional:  d.MinAskNotional,
		MinImbalance:    d.MinImbalance,
		TwoSided:        d.ImbalanceMode == ImbalanceEither,
		MinSlopeBp:      d.MinSlopeBp,
		MinUpticks:      d.MinUpticks,
		SustainDuration: seconds(d.SustainDurationSec),
	}
}

// Limits converts the throttle section into throttle limits.
func (c *Config) Limits() risk.Limits {
	return risk.Limits{
		Cooldown:     seconds(c.Throttle.CooldownSec),
		DedupWindow:  seconds(c.Throttle.DedupWindowSec),
		MaxPerMinute: c.Throttle.MaxSignalsPerMinute,
		DedupBucket:  c.Throttle.DedupBucket,
	}
}

// EmitTimeout is the per-delivery deadline.
func (c *Config) EmitTimeout() time.Duration {
	return time.Duration(c.Emitter.TimeoutMs) * time.Millisecond
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
