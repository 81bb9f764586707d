package postgres

import (
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/saifu/pricing-pipeline/internal/domain"
)

// ScheduleRepo answers the staleness query driving the pricing scheduler.
type ScheduleRepo struct{ Pool PgxPool }

// NewScheduleRepo constructs a ScheduleRepo with the given pool.
func NewScheduleRepo(p PgxPool) *ScheduleRepo { return &ScheduleRepo{Pool: p} }

// A portfolio/target pairing is due when it has no job yet (its last start
// collapses to the epoch) or the newest job start is older than the
// configured pricing interval.
const duePortfoliosQuery = `
SELECT p.id, s.target_ccy
FROM saifu_portfolios p
JOIN saifu_portfolio_pricing_settings s ON s.portfolio_id = p.id
LEFT JOIN (
    SELECT portfolio_id, MAX(start_time) AS last_start_time
    FROM saifu_portfolio_pricing_jobs
    GROUP BY portfolio_id
) j ON j.portfolio_id = p.id
WHERE EXTRACT(EPOCH FROM (now() - COALESCE(j.last_start_time, to_timestamp(0)))) > s.pricing_interval`

// DuePortfolios returns every (portfolio, target currency) pairing whose
// pricing is stale.
func (r *ScheduleRepo) DuePortfolios(ctx domain.Context) ([]domain.DuePortfolio, error) {
	tracer := otel.Tracer("repo.schedule")
	ctx, span := tracer.Start(ctx, "schedule.DuePortfolios")
	defer span.End()
	rows, err := r.Pool.Query(ctx, duePortfoliosQuery)
	if err != nil {
		return nil, fmt.Errorf("op=schedule.due_portfolios: %w", err)
	}
	defer rows.Close()
	var due []domain.DuePortfolio
	for rows.Next() {
		var d domain.DuePortfolio
		if err := rows.Scan(&d.PortfolioID, &d.TargetCcy); err != nil {
			return nil, fmt.Errorf("op=schedule.due_scan: %w", err)
		}
		due = append(due, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=schedule.due_rows: %w", err)
	}
	return due, nil
}
