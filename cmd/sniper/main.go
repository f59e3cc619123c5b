package main

import (
	"context"
	"errors"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"gapsniper-go/internal/config"
	"gapsniper-go/internal/engine"
	"gapsniper-go/internal/exchange"
	"gapsniper-go/internal/execution"
	"gapsniper-go/internal/health"
	"gapsniper-go/internal/journal"
	"gapsniper-go/internal/metrics"
	"gapsniper-go/internal/risk"
	sig "gapsniper-go/internal/signal"
	"gapsniper-go/internal/strategy"
	"gapsniper-go/internal/util"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the YAML config")
	flag.Parse()

	config.LoadDotEnv()
	boot := util.NewLogger("info", false)

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot.Fatal().Err(err).Msg("load config")
	}
	cfg.ApplyEnv()
	if err := cfg.Finalize(); err != nil {
		boot.Fatal().Err(err).Msg("invalid config")
	}
	log := util.NewLogger(cfg.App.LogLevel, cfg.App.LogPretty).With().Str("app", cfg.App.Name).Logger()

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("sniper stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("shutting down")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	detector, err := strategy.Build(cfg.StrategyParams())
	if err != nil {
		return err
	}
	throttle := risk.NewThrottle(cfg.Limits())

	targets := exchange.NewTargetSet(cfg.Exchange.Symbols)
	discovery := exchange.NewDiscovery(log.With().Str("component", "discovery").Logger(),
		targets, cfg.Exchange.Symbols, cfg.Exchange.QuoteAsset, cfg.Exchange.Discovery)
	feed := exchange.NewFeed(cfg.Exchange.Provider, targets, log.With().Str("component", "feed").Logger(),
		exchange.WithStreamURL(cfg.Exchange.StreamURL),
		exchange.WithReconnectCheck(time.Duration(cfg.Exchange.ReconnectCheckMs)*time.Millisecond),
	)

	emitter, closeEmitter, err := buildEmitter(cfg, log)
	if err != nil {
		return err
	}
	defer closeEmitter()
	dispatcher := execution.NewDispatcher(emitter, log.With().Str("component", "emitter").Logger(),
		cfg.EmitTimeout(), cfg.Emitter.MaxInFlight)
	defer dispatcher.Wait()

	ledger := journal.NewLedger(cfg.Journal.Recent)
	recorders := journal.Multi{ledger}
	if cfg.Journal.Path != "" {
		jsonl, err := journal.NewJSONLRecorder(cfg.Journal.Path, log)
		if err != nil {
			return err
		}
		defer jsonl.Close()
		recorders = append(recorders, jsonl)
	}

	eng := engine.New(log.With().Str("component", "engine").Logger(), targets, detector, throttle, dispatcher, engine.Options{
		QuoteAsset: cfg.Exchange.QuoteAsset,
		Journal:    recorders,
	})

	srv := metrics.Serve(cfg.App.MetricsAddr, health.NewHandler(health.Sources{
		Targets:  targets.Symbols,
		Tracked:  detector.Store().Len,
		Recent:   ledger.Recent,
		Params:   detector.Params(),
		Limits:   throttle.Limits(),
		Provider: feed.Provider(),
		Detector: detector.Name(),
		Emitter:  emitter.Name(),
	}))
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().
		Str("addr", cfg.App.MetricsAddr).
		Str("detector", detector.Name()).
		Str("emitter", emitter.Name()).
		Strs("targets", targets.Symbols()).
		Msg("sniper started")

	quotes := make(chan sig.Quote, 1024)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return feed.Run(gctx, quotes) })
	g.Go(func() error { return discovery.Run(gctx) })
	g.Go(func() error { return eng.Run(gctx, quotes, cfg.Engine.Workers) })
	return g.Wait()
}

func buildEmitter(cfg *config.Config, log zerolog.Logger) (execution.Emitter, func(), error) {
	em := cfg.Emitter
	switch em.Mode {
	case config.EmitterWebhook:
		return execution.NewWebhookEmitter(em.WebhookURL, em.TextTemplate, cfg.EmitTimeout()), func() {}, nil
	case config.EmitterKafka:
		k := execution.NewKafkaEmitter(em.Kafka.Brokers, em.Kafka.Topic, em.TextTemplate)
		return k, func() {
			if err := k.Close(); err != nil {
				log.Warn().Err(err).Msg("close kafka writer")
			}
		}, nil
	default:
		return execution.NewLogEmitter(log.With().Str("component", "emitter").Logger()), func() {}, nil
	}
}
