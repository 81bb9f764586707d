// Command mktagg folds raw quotes into tumbling windows and republishes
// each closed window as one aggregated batch.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/saifu/pricing-pipeline/internal/adapter/observability"
	"github.com/saifu/pricing-pipeline/internal/adapter/queue/rabbit"
	"github.com/saifu/pricing-pipeline/internal/app"
	"github.com/saifu/pricing-pipeline/internal/config"
	"github.com/saifu/pricing-pipeline/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		slog.Error("mktagg stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		return fmt.Errorf("usage: mktagg <config.yaml>")
	}
	cfg, err := config.LoadMktagg(os.Args[1])
	if err != nil {
		return err
	}

	logger, err := observability.SetupLogger(cfg.Logging)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	observability.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.SetupTracing(ctx, "mktagg")
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	app.StartMetrics(ctx, cfg.App.MetricsAddr)

	// One window shared by both agents: the subscriber folds quotes in,
	// the publisher drains closed batches out.
	window := usecase.NewWindow(cfg.App.Window(), cfg.App.StartImmediateEnabled(), nil)
	svc := usecase.NewAggregatorService(window)

	connector := rabbit.NewConnector(cfg.App.MQ)
	subscriber := rabbit.NewAgent(rabbit.NewSubscriber(cfg.App.SubExchange, svc.Received), connector, true)
	publisher := rabbit.NewAgent(rabbit.NewPublisher(cfg.App.PubExchange, svc.Pump), connector, true)

	slog.Info("starting mktagg",
		slog.String("sub_exchange", cfg.App.SubExchange),
		slog.String("pub_exchange", cfg.App.PubExchange),
		slog.Duration("window", cfg.App.Window()),
		slog.Bool("start_immediate", cfg.App.StartImmediateEnabled()))
	return app.NewSupervisor(subscriber, publisher).Run(ctx)
}
