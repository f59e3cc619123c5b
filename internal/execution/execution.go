// Package execution hands signals to the downstream trading agent.
package execution

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"gapsniper-go/internal/signal"
)

// Emitter notifies the trading agent that base should be acted on.
type Emitter interface {
	Emit(ctx context.Context, base string) (signal.Outcome, error)
	Name() string
}

// LogEmitter only logs; it is the paper-mode emitter.
type LogEmitter struct{ log zerolog.Logger }

// NewLogEmitter wraps a zerolog logger.
func NewLogEmitter(log zerolog.Logger) *LogEmitter { return &LogEmitter{log: log} }

// Name identifies the emitter in logs.
func (e *LogEmitter) Name() string { return "log" }

// Emit logs the signal and always reports acceptance.
func (e *LogEmitter) Emit(_ context.Context, base string) (signal.Outcome, error) {
	e.log.Info().Str("base", base).Msg("emit signal (stub)")
	return signal.Outcome{Accepted: true, Detail: "logged"}, nil
}

// BaseAsset strips the quote asset suffix from an exchange symbol (ADAUSDT -> ADA).
func BaseAsset(symbol, quoteAsset string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	quoteAsset = strings.ToUpper(strings.TrimSpace(quoteAsset))
	if quoteAsset == "" || symbol == quoteAsset {
		return symbol
	}
	return strings.TrimSuffix(symbol, quoteAsset)
}
