package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrBadData         = errors.New("bad data")
	ErrUnavailable     = errors.New("unavailable")
	ErrInvariant       = errors.New("invariant violation")
	ErrInternal        = errors.New("internal error")
)

// Quote is one observed price for a currency pair. The ticker is the
// concatenation of the source and target currency codes (e.g. "BTCUSD").
// Immutable once produced.
type Quote struct {
	Ticker    string
	Price     decimal.Decimal
	Timestamp time.Time
}

// Batch is the snapshot of one closed aggregation window: at most one
// quote per ticker, order unspecified.
type Batch []Quote

// Pair is a (source, target) currency pair requested from the provider.
type Pair struct {
	Source string
	Target string
}

// ParsePair parses the CLI form "SOURCE_TARGET".
func ParsePair(s string) (Pair, error) {
	src, dst, ok := strings.Cut(s, "_")
	if !ok || src == "" || dst == "" {
		return Pair{}, fmt.Errorf("op=domain.ParsePair: %q: %w", s, ErrInvalidArgument)
	}
	return Pair{Source: src, Target: dst}, nil
}

func (p Pair) Ticker() string { return p.Source + p.Target }

type JobStatus string

const (
	JobNew  JobStatus = "N"
	JobDone JobStatus = "D"
)

// StartedBySystem tags jobs originated by the scheduler.
const StartedBySystem = "SYSTEM"

// PricingJob is one request to price a portfolio as of SnapshotTime in
// TargetCcy. ID is empty until persistence assigns it; persisting a job
// whose ID is already set is a programmer error.
type PricingJob struct {
	ID           string
	PortfolioID  string
	SnapshotTime time.Time
	TargetCcy    string
	StartedBy    string
	Status       JobStatus
	StartTime    time.Time
	EndTime      *time.Time
}

// Validate checks the fields every persisted or consumed job must carry.
func (j PricingJob) Validate() error {
	if j.PortfolioID == "" || j.SnapshotTime.IsZero() {
		return fmt.Errorf("op=domain.PricingJob.Validate: portfolio_id/snapshot_time required: %w", ErrInvariant)
	}
	return nil
}

// DuePortfolio is one (portfolio, target currency) pairing the scheduler
// must price this cycle.
type DuePortfolio struct {
	PortfolioID string
	TargetCcy   string
}

// PositionPrice is one portfolio position joined to the newest instrument
// price at or before the pricing snapshot.
type PositionPrice struct {
	Ticker string
	Price  decimal.Decimal
	Size   decimal.Decimal
}

// PortfolioBalance is one computed portfolio valuation row.
type PortfolioBalance struct {
	PortfolioID string
	Balance     decimal.Decimal
	Currency    string
	QuoteTime   time.Time
}

// Repositories (ports)

type JobRepository interface {
	// PersistNew stores the jobs in one transaction, assigning each a fresh
	// identifier. Returns the identified jobs in input order.
	PersistNew(ctx Context, jobs []PricingJob) ([]PricingJob, error)
	// Complete stamps status and end_time on a finished job.
	Complete(ctx Context, id string, at time.Time) error
}

type ScheduleRepository interface {
	// DuePortfolios returns every (portfolio, target_ccy) whose newest job
	// is older than its pricing interval, or that has no job at all.
	DuePortfolios(ctx Context) ([]DuePortfolio, error)
}

type TickRepository interface {
	InsertQuote(ctx Context, q Quote) error
}

type BalanceRepository interface {
	PositionPrices(ctx Context, portfolioID string, snapshot time.Time, targetCcy string) ([]PositionPrice, error)
	Insert(ctx Context, b PortfolioBalance) error
	Latest(ctx Context, portfolioID, currency string) (PortfolioBalance, error)
}

// Broker (ports)

type Publisher interface {
	Publish(ctx Context, body []byte) error
}

type Dispatcher interface {
	Dispatch(ctx Context, body []byte) error
}

// QuoteSource (port)

type QuoteSource interface {
	// FetchQuotes requests the pairs from the external provider in one call
	// and returns the quotes it reported.
	FetchQuotes(ctx Context, pairs []Pair) ([]Quote, error)
}

// Context aliases context.Context so domain signatures stay decoupled from
// the stdlib import at call sites.
type Context = context.Context
