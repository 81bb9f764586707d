// Command schedprice scans for stale portfolios on a timer and dispatches
// one pricing job per due (portfolio, target currency) setting.
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
	"github.com/saifu/pricing-pipeline/internal/adapter/repo/postgres"
	"github.com/saifu/pricing-pipeline/internal/app"
	"github.com/saifu/pricing-pipeline/internal/config"
	"github.com/saifu/pricing-pipeline/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		slog.Error("schedprice stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		return fmt.Errorf("usage: schedprice <config.yaml>")
	}
	cfg, err := config.LoadSchedprice(os.Args[1])
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

	shutdownTracer, err := observability.SetupTracing(ctx, "schedprice")
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	app.StartMetrics(ctx, cfg.App.MetricsAddr)

	pool, err := postgres.NewPool(ctx, cfg.App.Database.DSN())
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := usecase.NewSchedulerService(
		postgres.NewScheduleRepo(pool),
		postgres.NewJobsRepo(pool),
		cfg.App.Delay(),
	)
	agent := rabbit.NewAgent(
		rabbit.NewDispatcher(cfg.App.WorkQueue, svc.Run),
		rabbit.NewConnector(cfg.App.MQ),
		true,
	)

	slog.Info("starting schedprice",
		slog.String("work_queue", cfg.App.WorkQueue),
		slog.Duration("pull_delay", cfg.App.Delay()))
	return app.NewSupervisor(agent).Run(ctx)
}
