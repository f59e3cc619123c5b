package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Exchange.Provider) {
	case "stub", "binance":
	default:
		return fmt.Errorf("exchange.provider %q is not supported", c.Exchange.Provider)
	}
	if len(c.Exchange.Symbols) == 0 && !c.Exchange.Discovery.Enabled {
		return errors.New("exchange.symbols is required when discovery is disabled")
	}

	d := c.Detector
	if d.WindowCapacity < 2 {
		return errors.New("detector.window_capacity must be >= 2")
	}
	if d.LookbackHorizonSec <= 0 {
		return errors.New("detector.lookback_horizon_sec must be > 0")
	}
	if d.PressureAlpha <= 0 || d.PressureAlpha > 1 {
		return fmt.Errorf("detector.pressure_alpha must be in (0,1], got %v", d.PressureAlpha)
	}
	if d.PressureTrigger <= -1 || d.PressureTrigger >= 1 {
		return fmt.Errorf("detector.pressure_trigger must be in (-1,1), got %v", d.PressureTrigger)
	}
	if d.PressureClear > d.PressureTrigger {
		return fmt.Errorf("detector.pressure_clear (%v) cannot exceed pressure_trigger (%v)", d.PressureClear, d.PressureTrigger)
	}
	if d.MaxSpreadBp < 0 || d.MinBidNotional < 0 || d.MinAskNotional < 0 || d.MinImbalance < 0 {
		return errors.New("detector guardrails must be >= 0")
	}
	if d.ImbalanceMode != ImbalanceBid && d.ImbalanceMode != ImbalanceEither {
		return fmt.Errorf("detector.imbalance_mode %q must be %q or %q", d.ImbalanceMode, ImbalanceBid, ImbalanceEither)
	}
	if d.MinUpticks < 0 {
		return errors.New("detector.min_upticks must be >= 0")
	}
	if d.SustainDurationSec < 0 {
		return errors.New("detector.sustain_duration_sec must be >= 0")
	}
	if _, err := c.StrategyParams().PredicateNames(); err != nil {
		return fmt.Errorf("detector.mode: %w", err)
	}

	th := c.Throttle
	if th.CooldownSec < 0 || th.DedupWindowSec < 0 {
		return errors.New("throttle windows must be >= 0")
	}
	if th.DedupBucket <= 0 {
		return errors.New("throttle.dedup_bucket must be > 0")
	}
	if th.MaxSignalsPerMinute < 1 {
		return errors.New("throttle.max_signals_per_minute must be >= 1")
	}

	em := c.Emitter
	switch em.Mode {
	case EmitterLog:
	case EmitterWebhook:
		if em.WebhookURL == "" {
			return errors.New("emitter.webhook_url is required in webhook mode")
		}
	case EmitterKafka:
		if len(em.Kafka.Brokers) == 0 {
			return errors.New("emitter.kafka.brokers is required in kafka mode")
		}
	default:
		return fmt.Errorf("emitter.mode %q is not supported", em.Mode)
	}
	if em.MaxInFlight < 1 {
		return errors.New("emitter.max_in_flight must be >= 1")
	}

	if c.Engine.Workers < 1 {
		return errors.New("engine.workers must be >= 1")
	}
	return nil
}
