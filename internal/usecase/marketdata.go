// Package usecase contains the pipeline service loops: quote publishing,
// window aggregation, tick ingestion, job scheduling and job pricing.
package usecase

import (
	"time"

	"log/slog"

	"github.com/saifu/pricing-pipeline/internal/adapter/observability"
	"github.com/saifu/pricing-pipeline/internal/domain"
)

// MarketDataService polls the quote provider and fans each quote out to
// the raw-quotes exchange.
type MarketDataService struct {
	Source   domain.QuoteSource
	Pairs    []domain.Pair
	Delay    time.Duration
	Exchange string
}

// NewMarketDataService constructs the mktpub work loop.
func NewMarketDataService(source domain.QuoteSource, pairs []domain.Pair, delay time.Duration, exchange string) MarketDataService {
	return MarketDataService{Source: source, Pairs: pairs, Delay: delay, Exchange: exchange}
}

// Run drives poll-publish cycles until the context ends. Provider
// failures are logged and retried after the configured delay; publish
// failures propagate so the agent redials.
func (s MarketDataService) Run(ctx domain.Context, pub domain.Publisher) error {
	for {
		if err := s.cycle(ctx, pub); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.Delay):
		}
	}
}

func (s MarketDataService) cycle(ctx domain.Context, pub domain.Publisher) error {
	quotes, err := s.Source.FetchQuotes(ctx, s.Pairs)
	if err != nil {
		slog.Warn("failed to get quotes", slog.Any("error", err))
		return nil
	}
	for _, q := range quotes {
		body, err := domain.EncodeQuote(q)
		if err != nil {
			slog.Warn("dropping unencodable quote", slog.String("ticker", q.Ticker), slog.Any("error", err))
			continue
		}
		slog.Debug("publishing quote",
			slog.String("ticker", q.Ticker),
			slog.String("price", q.Price.String()))
		if err := pub.Publish(ctx, body); err != nil {
			return err
		}
		observability.QuotePublished(s.Exchange)
	}
	return nil
}
