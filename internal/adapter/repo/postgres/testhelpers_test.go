package postgres_test

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Hand-rolled, scripted stubs for the minimal PgxPool surface the repos
// use. Each test wires only the behavior it needs.

type rowStub struct{ scan func(dest ...any) error }

func (r rowStub) Scan(dest ...any) error { return r.scan(dest...) }

// rowsStub walks a fixed grid of row values; each cell must match the
// corresponding scan destination (*string or *time.Time).
type rowsStub struct {
	grid    [][]any
	idx     int
	scanErr error
	rowsErr error
	closed  bool
}

func (r *rowsStub) Next() bool {
	if r.idx >= len(r.grid) {
		return false
	}
	r.idx++
	return true
}

func (r *rowsStub) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.grid[r.idx-1]
	for i, d := range dest {
		switch v := d.(type) {
		case *string:
			*v = row[i].(string)
		case *time.Time:
			*v = row[i].(time.Time)
		default:
			return errors.New("rowsStub: unsupported scan destination")
		}
	}
	return nil
}

func (r *rowsStub) Close()                                       { r.closed = true }
func (r *rowsStub) Err() error                                   { return r.rowsErr }
func (r *rowsStub) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *rowsStub) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *rowsStub) Values() ([]any, error)                       { return nil, nil }
func (r *rowsStub) RawValues() [][]byte                          { return nil }
func (r *rowsStub) Conn() *pgx.Conn                              { return nil }

// execCall records one executed statement.
type execCall struct {
	sql  string
	args []any
}

type txStub struct {
	execs      []execCall
	execErr    error
	commitErr  error
	committed  bool
	rolledBack bool
}

func (t *txStub) Begin(_ context.Context) (pgx.Tx, error) { return t, nil }

func (t *txStub) Commit(_ context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *txStub) Rollback(_ context.Context) error {
	t.rolledBack = true
	return nil
}

func (t *txStub) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, _ pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("txStub: CopyFrom not scripted")
}

func (t *txStub) SendBatch(_ context.Context, _ *pgx.Batch) pgx.BatchResults { return nil }

func (t *txStub) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (t *txStub) Prepare(_ context.Context, _, _ string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("txStub: Prepare not scripted")
}

func (t *txStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if t.execErr != nil {
		return pgconn.CommandTag{}, t.execErr
	}
	t.execs = append(t.execs, execCall{sql: sql, args: args})
	return pgconn.CommandTag{}, nil
}

func (t *txStub) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, errors.New("txStub: Query not scripted")
}

func (t *txStub) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return rowStub{scan: func(...any) error { return errors.New("txStub: QueryRow not scripted") }}
}

func (t *txStub) Conn() *pgx.Conn { return nil }

// poolStub implements postgres.PgxPool.
type poolStub struct {
	execs    []execCall
	execErr  error
	row      rowStub
	rows     *rowsStub
	queryErr error
	tx       *txStub
	beginErr error
}

func (p *poolStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if p.execErr != nil {
		return pgconn.CommandTag{}, p.execErr
	}
	p.execs = append(p.execs, execCall{sql: sql, args: args})
	return pgconn.CommandTag{}, nil
}

func (p *poolStub) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	if p.row.scan == nil {
		return rowStub{scan: func(...any) error { return errors.New("poolStub: no row scripted") }}
	}
	return p.row
}

func (p *poolStub) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	if p.rows == nil {
		return nil, errors.New("poolStub: no rows scripted")
	}
	return p.rows, nil
}

func (p *poolStub) BeginTx(_ context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	if p.tx == nil {
		p.tx = &txStub{}
	}
	return p.tx, nil
}
