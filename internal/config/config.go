// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogPretty   bool   `yaml:"log_pretty"`
}

// Exchange describes where quotes come from and which instruments are targeted.
type Exchange struct {
	Provider         string    `yaml:"provider"`
	StreamURL        string    `yaml:"stream_url"`
	QuoteAsset       string    `yaml:"quote_asset"`
	Symbols          []string  `yaml:"symbols"`
	ReconnectCheckMs int       `yaml:"reconnect_check_ms"`
	Discovery        Discovery `yaml:"discovery"`
}

// Discovery configures the periodic Bitvavo/Binance target refresh.
type Discovery struct {
	Enabled         bool   `yaml:"enabled"`
	BitvavoURL      string `yaml:"bitvavo_url"`
	BinanceURL      string `yaml:"binance_url"`
	QuoteCurrency   string `yaml:"quote_currency"`
	TopN            int    `yaml:"top_n"`
	RefreshInterval int    `yaml:"refresh_interval_ms"`
}

// Detector groups the metric, guardrail and sustain knobs.
type Detector struct {
	Mode               string   `yaml:"mode"`
	Predicates         []string `yaml:"predicates"`
	WindowCapacity     int      `yaml:"window_capacity"`
	LookbackHorizonSec float64  `yaml:"lookback_horizon_sec"`
	PressureAlpha      float64  `yaml:"pressure_alpha"`
	PressureTrigger    float64  `yaml:"pressure_trigger"`
	PressureClear      float64  `yaml:"pressure_clear"`
	GapSpreadBp        float64  `yaml:"gap_spread_bp"`
	MaxSpreadBp        float64  `yaml:"max_spread_bp"`
	MinBidNotional     float64  `yaml:"min_bid_notional"`
	MinAskNotional     float64  `yaml:"min_ask_notional"`
	MinImbalance       float64  `yaml:"min_imbalance"`
	ImbalanceMode      string   `yaml:"imbalance_mode"`
	MinSlopeBp         float64  `yaml:"min_slope_bp"`
	MinUpticks         int      `yaml:"min_upticks"`
	SustainDurationSec float64  `yaml:"sustain_duration_sec"`
}

// Throttle encodes the cooldown, dedup and global rate guard-rails.
type Throttle struct {
	CooldownSec         float64 `yaml:"cooldown_sec"`
	DedupWindowSec      float64 `yaml:"dedup_window_sec"`
	DedupBucket         float64 `yaml:"dedup_bucket"`
	MaxSignalsPerMinute int     `yaml:"max_signals_per_minute"`
}

// Kafka holds the broker list and topic used by the kafka emitter.
type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Emitter selects and tunes the downstream delivery channel.
type Emitter struct {
	Mode         string `yaml:"mode"`
	WebhookURL   string `yaml:"webhook_url"`
	TextTemplate string `yaml:"text_template"`
	TimeoutMs    int    `yaml:"timeout_ms"`
	MaxInFlight  int    `yaml:"max_in_flight"`
	Kafka        Kafka  `yaml:"kafka"`
}

// Engine sizes the processing worker pool.
type Engine struct {
	Workers int `yaml:"workers"`
}

// Journal configures the signal audit trail.
type Journal struct {
	Path   string `yaml:"path"`
	Recent int    `yaml:"recent"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Exchange Exchange `yaml:"exchange"`
	Detector Detector `yaml:"detector"`
	Throttle Throttle `yaml:"throttle"`
	Emitter  Emitter  `yaml:"emitter"`
	Engine   Engine   `yaml:"engine"`
	Journal  Journal  `yaml:"journal"`
}

// Load reads a YAML file from disk on top of Default, so only keys absent from the file keep their
// default value and explicit zeros survive.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}

	var head struct {
		Detector struct {
			Mode string `yaml:"mode"`
		} `yaml:"detector"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config := Default(head.Detector.Mode)
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return config, nil
}

// LoadWithDefaults loads the file, fills unset fields and validates the result.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize fills unset required fields and validates. Call it after any overrides are applied.
func (c *Config) Finalize() error {
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
