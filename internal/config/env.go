package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment overrides recognized by ApplyEnv.
const (
	EnvWebhookURL   = "SNIPER_WEBHOOK_URL"
	EnvKafkaBrokers = "SNIPER_KAFKA_BROKERS"
	EnvLogLevel     = "SNIPER_LOG_LEVEL"
	EnvMetricsAddr  = "SNIPER_METRICS_ADDR"
	EnvEmitterMode  = "SNIPER_EMITTER_MODE"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process environment.
// Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		_ = godotenv.Load(p)
	}
}

// ApplyEnv overlays secrets and deployment knobs from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvWebhookURL); v != "" {
		c.Emitter.WebhookURL = v
	}
	if v := os.Getenv(EnvKafkaBrokers); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		c.Emitter.Kafka.Brokers = brokers
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.App.LogLevel = v
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		c.App.MetricsAddr = v
	}
	if v := os.Getenv(EnvEmitterMode); v != "" {
		c.Emitter.Mode = strings.ToLower(v)
	}
}
