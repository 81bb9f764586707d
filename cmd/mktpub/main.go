// Command mktpub polls the external quote provider and publishes each
// quote onto the raw-quotes fan-out exchange.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/saifu/pricing-pipeline/internal/adapter/observability"
	"github.com/saifu/pricing-pipeline/internal/adapter/provider"
	"github.com/saifu/pricing-pipeline/internal/adapter/queue/rabbit"
	"github.com/saifu/pricing-pipeline/internal/app"
	"github.com/saifu/pricing-pipeline/internal/config"
	"github.com/saifu/pricing-pipeline/internal/domain"
	"github.com/saifu/pricing-pipeline/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		slog.Error("mktpub stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: mktpub <config.yaml> SOURCE_TARGET [SOURCE_TARGET...]")
	}
	cfg, err := config.LoadMktpub(os.Args[1])
	if err != nil {
		return err
	}
	pairs := make([]domain.Pair, 0, len(os.Args)-2)
	for _, raw := range os.Args[2:] {
		p, err := domain.ParsePair(raw)
		if err != nil {
			return err
		}
		pairs = append(pairs, p)
	}

	logger, err := observability.SetupLogger(cfg.Logging)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	observability.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.SetupTracing(ctx, "mktpub")
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	app.StartMetrics(ctx, cfg.App.MetricsAddr)

	svc := usecase.NewMarketDataService(provider.New(cfg.App.Res), pairs, cfg.App.Delay(), cfg.App.Exchange)
	agent := rabbit.NewAgent(
		rabbit.NewPublisher(cfg.App.Exchange, svc.Run),
		rabbit.NewConnector(cfg.App.MQ),
		true,
	)

	slog.Info("starting mktpub",
		slog.String("exchange", cfg.App.Exchange),
		slog.Int("pairs", len(pairs)),
		slog.Duration("pull_delay", cfg.App.Delay()))
	return app.NewSupervisor(agent).Run(ctx)
}
