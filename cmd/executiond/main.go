// Command executiond wires configuration, the signed Kalshi client, the
// execution engine, the command/event buses, the portfolio manager, and the
// observability recorder into a running process.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"executiond/internal/config"
	"executiond/internal/exchange"
	"executiond/internal/execution"
	"executiond/internal/observability"
	"executiond/internal/portfolio"
	"executiond/pkg/model"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("loading configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("executiond exited with error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	signer, err := exchange.NewSigner(cfg.APIKey, cfg.PrivateKey)
	if err != nil {
		return err
	}

	limiter, err := exchange.NewRateLimiter(cfg.RateLimit)
	if err != nil {
		return err
	}

	client := exchange.NewClient(cfg.BaseURL(), signer, limiter, exchange.RetryConfig{
		MaxAttempt:        cfg.MaxAttempt,
		BaseDelay:         time.Duration(cfg.BaseDelaySeconds * float64(time.Second)),
		BackoffMultiplier: cfg.BackoffMultiplier,
		MaxDelay:          time.Duration(cfg.MaxDelaySeconds * float64(time.Second)),
	}, logger)

	adapter := exchange.NewKalshiAdapter(client, logger)

	sink, err := observability.NewDBSink(cfg.ObservabilityDBPath)
	if err != nil {
		return err
	}
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	recorder := observability.NewRecorder(sink, 0, logger, metrics)
	defer recorder.Close()

	commandBus := execution.NewCommandBus(0, recorder)
	eventBus := execution.NewEventBus(0, recorder)

	engine := execution.NewEngine(model.VenueKalshi, adapter, commandBus, eventBus, 0, 0, logger)
	engine.Start(ctx)

	manager := portfolio.NewManager(commandBus, eventBus, logger)
	manager.Start(ctx)

	logger.Info("executiond started", "base_url", cfg.BaseURL(), "rate_limit", cfg.RateLimit)

	<-ctx.Done()
	logger.Info("shutting down")

	engine.Stop()
	manager.Stop()
	return nil
}
