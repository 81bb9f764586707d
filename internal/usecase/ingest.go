package usecase

import (
	"errors"

	"log/slog"

	"github.com/saifu/pricing-pipeline/internal/adapter/observability"
	"github.com/saifu/pricing-pipeline/internal/domain"
)

// IngestService persists aggregated quote batches as historical price rows.
type IngestService struct {
	Ticks domain.TickRepository
}

// NewIngestService constructs the ingesticks message handler.
func NewIngestService(ticks domain.TickRepository) IngestService {
	return IngestService{Ticks: ticks}
}

// Received handles one aggregated-quotes message: one insert per quote.
// Malformed bodies and per-row rejections are warned and skipped; a
// connection-level store failure aborts the batch and propagates so the
// agent surfaces it.
func (s IngestService) Received(ctx domain.Context, body []byte) error {
	batch, err := domain.DecodeBatch(body)
	if err != nil {
		slog.Warn("dropping malformed batch", slog.Any("error", err))
		return nil
	}
	slog.Debug("ingesting batch", slog.Int("quotes", len(batch)))
	for _, q := range batch {
		if err := s.Ticks.InsertQuote(ctx, q); err != nil {
			if errors.Is(err, domain.ErrBadData) {
				slog.Warn("failed to persist ticker",
					slog.String("ticker", q.Ticker),
					slog.Any("error", err))
				observability.TickIngested("rejected")
				continue
			}
			return err
		}
		observability.TickIngested("ok")
	}
	return nil
}
