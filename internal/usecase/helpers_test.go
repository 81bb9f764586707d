package usecase_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/saifu/pricing-pipeline/internal/domain"
)

// Hand-rolled port fakes; each records calls and returns scripted results.

var (
	_ domain.QuoteSource        = (*fakeSource)(nil)
	_ domain.Publisher          = (*fakePublisher)(nil)
	_ domain.Publisher          = (*chanPublisher)(nil)
	_ domain.Dispatcher         = (*fakeDispatcher)(nil)
	_ domain.TickRepository     = (*fakeTickRepo)(nil)
	_ domain.ScheduleRepository = (*fakeScheduleRepo)(nil)
	_ domain.JobRepository      = (*fakeJobRepo)(nil)
	_ domain.BalanceRepository  = (*fakeBalanceRepo)(nil)
)

type fakeSource struct {
	quotes []domain.Quote
	err    error
	calls  int
	pairs  [][]domain.Pair
}

func (f *fakeSource) FetchQuotes(_ domain.Context, pairs []domain.Pair) ([]domain.Quote, error) {
	f.calls++
	f.pairs = append(f.pairs, pairs)
	if f.err != nil {
		return nil, f.err
	}
	return f.quotes, nil
}

type fakePublisher struct {
	bodies    [][]byte
	err       error
	onPublish func(n int)
}

func (f *fakePublisher) Publish(_ domain.Context, body []byte) error {
	if f.err != nil {
		return f.err
	}
	f.bodies = append(f.bodies, body)
	if f.onPublish != nil {
		f.onPublish(len(f.bodies))
	}
	return nil
}

// chanPublisher hands each published body to the test goroutine.
type chanPublisher struct {
	ch  chan []byte
	err error
}

func newChanPublisher() *chanPublisher {
	return &chanPublisher{ch: make(chan []byte, 8)}
}

func (p *chanPublisher) Publish(_ domain.Context, body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.ch <- body
	return nil
}

type fakeDispatcher struct {
	bodies [][]byte
	err    error
}

func (f *fakeDispatcher) Dispatch(_ domain.Context, body []byte) error {
	if f.err != nil {
		return f.err
	}
	f.bodies = append(f.bodies, body)
	return nil
}

type fakeTickRepo struct {
	inserted []domain.Quote
	failWith map[string]error
}

func (f *fakeTickRepo) InsertQuote(_ domain.Context, q domain.Quote) error {
	if err := f.failWith[q.Ticker]; err != nil {
		return err
	}
	f.inserted = append(f.inserted, q)
	return nil
}

type fakeScheduleRepo struct {
	due []domain.DuePortfolio
	err error
}

func (f *fakeScheduleRepo) DuePortfolios(_ domain.Context) ([]domain.DuePortfolio, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.due, nil
}

type fakeJobRepo struct {
	seq          int
	persistCalls int
	persisted    [][]domain.PricingJob
	persistErr   error
	completed    []string
	completedAt  []time.Time
	completeErr  error
}

func (f *fakeJobRepo) PersistNew(_ domain.Context, jobs []domain.PricingJob) ([]domain.PricingJob, error) {
	f.persistCalls++
	if f.persistErr != nil {
		return nil, f.persistErr
	}
	out := make([]domain.PricingJob, len(jobs))
	for i, j := range jobs {
		f.seq++
		j.ID = fmt.Sprintf("job-%d", f.seq)
		out[i] = j
	}
	f.persisted = append(f.persisted, out)
	return out, nil
}

func (f *fakeJobRepo) Complete(_ domain.Context, id string, at time.Time) error {
	if f.completeErr != nil {
		return f.completeErr
	}
	f.completed = append(f.completed, id)
	f.completedAt = append(f.completedAt, at)
	return nil
}

type balanceQuery struct {
	portfolioID string
	snapshot    time.Time
	targetCcy   string
}

type fakeBalanceRepo struct {
	positions    []domain.PositionPrice
	positionsErr error
	queries      []balanceQuery
	inserted     []domain.PortfolioBalance
	insertErr    error
	latest       domain.PortfolioBalance
	latestErr    error
}

func (f *fakeBalanceRepo) PositionPrices(_ domain.Context, portfolioID string, snapshot time.Time, targetCcy string) ([]domain.PositionPrice, error) {
	f.queries = append(f.queries, balanceQuery{portfolioID: portfolioID, snapshot: snapshot, targetCcy: targetCcy})
	if f.positionsErr != nil {
		return nil, f.positionsErr
	}
	return f.positions, nil
}

func (f *fakeBalanceRepo) Insert(_ domain.Context, b domain.PortfolioBalance) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, b)
	return nil
}

func (f *fakeBalanceRepo) Latest(_ domain.Context, _, _ string) (domain.PortfolioBalance, error) {
	if f.latestErr != nil {
		return domain.PortfolioBalance{}, f.latestErr
	}
	return f.latest, nil
}

// stepClock is a manually advanced clock for window and scheduler tests.
type stepClock struct {
	now time.Time
}

func newStepClock(at time.Time) *stepClock { return &stepClock{now: at} }

func (c *stepClock) Now() time.Time { return c.now }

func (c *stepClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func quoteAt(ticker, price string, ts time.Time) domain.Quote {
	return domain.Quote{Ticker: ticker, Price: decimal.RequireFromString(price), Timestamp: ts}
}

func pairList(t *testing.T, raw ...string) []domain.Pair {
	t.Helper()
	out := make([]domain.Pair, 0, len(raw))
	for _, r := range raw {
		p, err := domain.ParsePair(r)
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

func encodeQuote(t *testing.T, q domain.Quote) []byte {
	t.Helper()
	body, err := domain.EncodeQuote(q)
	require.NoError(t, err)
	return body
}

func encodeBatch(t *testing.T, batch domain.Batch) []byte {
	t.Helper()
	body, err := domain.EncodeBatch(batch)
	require.NoError(t, err)
	return body
}

func encodeJob(t *testing.T, j domain.PricingJob) []byte {
	t.Helper()
	body, err := domain.EncodeJob(j)
	require.NoError(t, err)
	return body
}
