package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/saifu/pricing-pipeline/internal/domain"
)

// JobsRepo persists pricing jobs using a minimal pgx pool.
type JobsRepo struct{ Pool PgxPool }

// NewJobsRepo constructs a JobsRepo with the given pool.
func NewJobsRepo(p PgxPool) *JobsRepo { return &JobsRepo{Pool: p} }

// PersistNew stores the jobs in one transaction, assigning each a fresh
// identifier, and returns the identified jobs in input order. A job that
// arrives already identified is a programmer error.
func (r *JobsRepo) PersistNew(ctx domain.Context, jobs []domain.PricingJob) ([]domain.PricingJob, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.PersistNew")
	defer span.End()
	if len(jobs) == 0 {
		return nil, nil
	}
	for _, j := range jobs {
		if j.ID != "" {
			return nil, fmt.Errorf("op=jobs.persist_new: job %s already identified: %w", j.ID, domain.ErrInvariant)
		}
		if err := j.Validate(); err != nil {
			return nil, fmt.Errorf("op=jobs.persist_new: %w", err)
		}
	}
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("op=jobs.persist_new: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const q = `INSERT INTO saifu_portfolio_pricing_jobs (identifier, portfolio_id, snapshot_time, target_ccy, started_by, status, start_time, end_time) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	out := make([]domain.PricingJob, len(jobs))
	for i, j := range jobs {
		j.ID = uuid.New().String()
		if _, err := tx.Exec(ctx, q, j.ID, j.PortfolioID, j.SnapshotTime, j.TargetCcy, j.StartedBy, string(j.Status), j.StartTime, j.EndTime); err != nil {
			return nil, fmt.Errorf("op=jobs.persist_new: insert: %w", err)
		}
		out[i] = j
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("op=jobs.persist_new: commit: %w", err)
	}
	return out, nil
}

// Complete stamps a finished job with its end time.
func (r *JobsRepo) Complete(ctx domain.Context, id string, at time.Time) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Complete")
	defer span.End()
	const q = `UPDATE saifu_portfolio_pricing_jobs SET status=$2, end_time=$3 WHERE identifier=$1`
	if _, err := r.Pool.Exec(ctx, q, id, string(domain.JobDone), at); err != nil {
		return fmt.Errorf("op=jobs.complete: %w", err)
	}
	return nil
}
