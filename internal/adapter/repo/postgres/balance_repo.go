package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"

	"github.com/saifu/pricing-pipeline/internal/domain"
)

// BalanceRepo reads priced positions and persists portfolio valuations.
type BalanceRepo struct{ Pool PgxPool }

// NewBalanceRepo constructs a BalanceRepo with the given pool.
func NewBalanceRepo(p PgxPool) *BalanceRepo { return &BalanceRepo{Pool: p} }

// Each position is joined to the newest price at or before the snapshot
// for the instrument ticker formed as ticker_base || target currency.
// Positions without such a price drop out of the join.
const positionPricesQuery = `
SELECT pos.ticker_base || $3 AS ticker,
       prc.price::text,
       pos.size::text
  FROM saifu_portfolio_positions pos
  JOIN LATERAL (
           SELECT price
             FROM saifu_ccy_historical_prices
            WHERE ticker = pos.ticker_base || $3
              AND quote_time <= $2
         ORDER BY quote_time DESC
            LIMIT 1
       ) prc ON TRUE
 WHERE pos.portfolio_id = $1`

// PositionPrices returns the portfolio's positions priced as of the
// snapshot in the target currency.
func (r *BalanceRepo) PositionPrices(ctx domain.Context, portfolioID string, snapshot time.Time, targetCcy string) ([]domain.PositionPrice, error) {
	tracer := otel.Tracer("repo.balance")
	ctx, span := tracer.Start(ctx, "balance.PositionPrices")
	defer span.End()
	rows, err := r.Pool.Query(ctx, positionPricesQuery, portfolioID, snapshot, targetCcy)
	if err != nil {
		return nil, fmt.Errorf("op=balance.position_prices: %w", err)
	}
	defer rows.Close()
	var out []domain.PositionPrice
	for rows.Next() {
		var (
			pp          domain.PositionPrice
			price, size string
		)
		if err := rows.Scan(&pp.Ticker, &price, &size); err != nil {
			return nil, fmt.Errorf("op=balance.position_scan: %w", err)
		}
		if pp.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("op=balance.position_price %s: %w", pp.Ticker, err)
		}
		if pp.Size, err = decimal.NewFromString(size); err != nil {
			return nil, fmt.Errorf("op=balance.position_size %s: %w", pp.Ticker, err)
		}
		out = append(out, pp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=balance.position_rows: %w", err)
	}
	return out, nil
}

// Insert appends one computed valuation row.
func (r *BalanceRepo) Insert(ctx domain.Context, b domain.PortfolioBalance) error {
	tracer := otel.Tracer("repo.balance")
	ctx, span := tracer.Start(ctx, "balance.Insert")
	defer span.End()
	const stmt = `INSERT INTO saifu_portfolio_historical_prices (portfolio_id, balance, currency, quote_time) VALUES ($1,$2,$3,$4)`
	if _, err := r.Pool.Exec(ctx, stmt, b.PortfolioID, b.Balance.String(), b.Currency, b.QuoteTime); err != nil {
		return fmt.Errorf("op=balance.insert: %w", err)
	}
	return nil
}

// Latest returns the newest valuation for the portfolio in the currency;
// domain.ErrNotFound when it has never been priced, domain.ErrUnavailable
// when the store cannot be reached.
func (r *BalanceRepo) Latest(ctx domain.Context, portfolioID, currency string) (domain.PortfolioBalance, error) {
	tracer := otel.Tracer("repo.balance")
	ctx, span := tracer.Start(ctx, "balance.Latest")
	defer span.End()
	const stmt = `SELECT balance::text, quote_time FROM saifu_portfolio_historical_prices WHERE portfolio_id=$1 AND currency=$2 ORDER BY quote_time DESC LIMIT 1`
	row := r.Pool.QueryRow(ctx, stmt, portfolioID, currency)
	b := domain.PortfolioBalance{PortfolioID: portfolioID, Currency: currency}
	var balance string
	if err := row.Scan(&balance, &b.QuoteTime); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PortfolioBalance{}, fmt.Errorf("op=balance.latest %s: %w", portfolioID, domain.ErrNotFound)
		}
		return domain.PortfolioBalance{}, classify("balance.latest", err)
	}
	var err error
	if b.Balance, err = decimal.NewFromString(balance); err != nil {
		return domain.PortfolioBalance{}, fmt.Errorf("op=balance.latest_decode: %w", err)
	}
	return b, nil
}
