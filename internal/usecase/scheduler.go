package usecase

import (
	"time"

	"log/slog"

	"github.com/saifu/pricing-pipeline/internal/adapter/observability"
	"github.com/saifu/pricing-pipeline/internal/domain"
)

// SchedulerService scans for stale portfolios each cycle, persists one new
// pricing job per due (portfolio, target currency) pairing and dispatches
// each persisted job onto the work queue.
type SchedulerService struct {
	Schedule domain.ScheduleRepository
	Jobs     domain.JobRepository
	Delay    time.Duration
	Now      func() time.Time
}

// NewSchedulerService constructs the schedprice work loop.
func NewSchedulerService(schedule domain.ScheduleRepository, jobs domain.JobRepository, delay time.Duration) SchedulerService {
	return SchedulerService{Schedule: schedule, Jobs: jobs, Delay: delay, Now: time.Now}
}

// Run drives scheduling cycles until the context ends. Store and dispatch
// failures propagate so the agent redials with backoff; an invariant
// violation aborts the agent.
func (s SchedulerService) Run(ctx domain.Context, disp domain.Dispatcher) error {
	for {
		if err := s.Cycle(ctx, disp); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.Delay):
		}
	}
}

// Cycle runs one scheduling pass. The clock is read once; every job in
// the pass shares that instant as snapshot and start time.
func (s SchedulerService) Cycle(ctx domain.Context, disp domain.Dispatcher) error {
	snapshot := s.Now().UTC()
	slog.Debug("scanning for stale portfolios")

	due, err := s.Schedule.DuePortfolios(ctx)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		slog.Debug("no portfolio due for pricing")
		return nil
	}

	jobs := make([]domain.PricingJob, 0, len(due))
	for _, d := range due {
		jobs = append(jobs, domain.PricingJob{
			PortfolioID:  d.PortfolioID,
			SnapshotTime: snapshot,
			TargetCcy:    d.TargetCcy,
			StartedBy:    domain.StartedBySystem,
			Status:       domain.JobNew,
			StartTime:    snapshot,
		})
	}
	persisted, err := s.Jobs.PersistNew(ctx, jobs)
	if err != nil {
		return err
	}
	observability.JobsScheduled(len(persisted))
	slog.Info("scheduled pricing jobs", slog.Int("jobs", len(persisted)))

	for _, job := range persisted {
		body, err := domain.EncodeJob(job)
		if err != nil {
			slog.Warn("dropping unencodable job",
				slog.String("job_id", job.ID), slog.Any("error", err))
			continue
		}
		if err := disp.Dispatch(ctx, body); err != nil {
			return err
		}
		observability.JobDispatched()
	}
	return nil
}
