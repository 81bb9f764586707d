package postgres

import (
	"go.opentelemetry.io/otel"

	"github.com/saifu/pricing-pipeline/internal/domain"
)

// TicksRepo appends instrument quotes to the historical price table.
type TicksRepo struct{ Pool PgxPool }

// NewTicksRepo constructs a TicksRepo with the given pool.
func NewTicksRepo(p PgxPool) *TicksRepo { return &TicksRepo{Pool: p} }

// InsertQuote appends one historical price row. Statement-level rejections
// come back as domain.ErrBadData so the ingester can warn and keep the
// rest of its batch; connection-level failures as domain.ErrUnavailable.
func (r *TicksRepo) InsertQuote(ctx domain.Context, q domain.Quote) error {
	tracer := otel.Tracer("repo.ticks")
	ctx, span := tracer.Start(ctx, "ticks.InsertQuote")
	defer span.End()
	const stmt = `INSERT INTO saifu_ccy_historical_prices (ticker, price, quote_time) VALUES ($1,$2,$3)`
	if _, err := r.Pool.Exec(ctx, stmt, q.Ticker, q.Price.String(), q.Timestamp); err != nil {
		return classify("ticks.insert_quote", err)
	}
	return nil
}
