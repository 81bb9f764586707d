// Package postgres implements the repository ports over PostgreSQL.
//
// Numeric money columns travel as text on both sides of the driver so
// decimal values never pass through a float.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/saifu/pricing-pipeline/internal/domain"
)

// PgxPool is a minimal subset of pgxpool used by the repos for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// classify separates statement-level rejections (bad row, constraint) from
// connection-level failures so callers can warn-and-continue on the former
// and reconnect on the latter.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("op=%s: %s: %w", op, pgErr.Message, domain.ErrBadData)
	}
	return fmt.Errorf("op=%s: %v: %w", op, err, domain.ErrUnavailable)
}
