package usecase

import (
	"errors"
	"time"

	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/saifu/pricing-pipeline/internal/adapter/observability"
	"github.com/saifu/pricing-pipeline/internal/domain"
)

// PricerService computes and persists one portfolio valuation per job.
type PricerService struct {
	Balances domain.BalanceRepository
	Jobs     domain.JobRepository
	Now      func() time.Time
}

// NewPricerService constructs the portprice job handler.
func NewPricerService(balances domain.BalanceRepository, jobs domain.JobRepository) PricerService {
	return PricerService{Balances: balances, Jobs: jobs, Now: time.Now}
}

// Handle prices one job: sum price × size over the portfolio's positions
// as of the snapshot, persist the balance row, then stamp the job done.
// Positions with no price by the snapshot never reach the sum; a portfolio
// with none prices to zero. Malformed bodies are dropped with a warning;
// a job missing required fields aborts the agent; store failures propagate;
// a failed completion stamp is warned, not retried.
func (s PricerService) Handle(ctx domain.Context, body []byte) error {
	job, err := domain.DecodeJob(body)
	if err != nil {
		if errors.Is(err, domain.ErrInvariant) {
			return err
		}
		slog.Warn("dropping malformed pricing job", slog.Any("error", err))
		return nil
	}
	start := time.Now()
	slog.Debug("received pricing job",
		slog.String("job_id", job.ID),
		slog.String("portfolio_id", job.PortfolioID))

	positions, err := s.Balances.PositionPrices(ctx, job.PortfolioID, job.SnapshotTime, job.TargetCcy)
	if err != nil {
		observability.JobPriced("error", time.Since(start))
		return err
	}
	balance := decimal.Zero
	for _, p := range positions {
		balance = balance.Add(p.Price.Mul(p.Size))
	}
	slog.Debug("calculated balance",
		slog.String("job_id", job.ID),
		slog.String("balance", balance.String()),
		slog.String("currency", job.TargetCcy))

	if err := s.Balances.Insert(ctx, domain.PortfolioBalance{
		PortfolioID: job.PortfolioID,
		Balance:     balance,
		Currency:    job.TargetCcy,
		QuoteTime:   job.SnapshotTime,
	}); err != nil {
		observability.JobPriced("error", time.Since(start))
		return err
	}

	if err := s.Jobs.Complete(ctx, job.ID, s.Now().UTC()); err != nil {
		slog.Warn("failed to stamp job completion",
			slog.String("job_id", job.ID), slog.Any("error", err))
	}
	observability.JobPriced("ok", time.Since(start))
	return nil
}
