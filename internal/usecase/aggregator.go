package usecase

import (
	"time"

	"log/slog"

	"github.com/saifu/pricing-pipeline/internal/adapter/observability"
	"github.com/saifu/pricing-pipeline/internal/domain"
)

// batchBuffer bounds the subscriber-to-publisher hand-off; a full channel
// blocks the consume side, back-pressuring the broker.
const batchBuffer = 64

// drainWait paces the publisher side while no window closes. The timeout
// is not a semantic event.
const drainWait = 5 * time.Second

// Window is the tumbling-window accumulator: at most one quote per ticker,
// last write wins, closed by the first arrival at or past the deadline.
// Not safe for concurrent use; only the subscriber goroutine touches it.
type Window struct {
	Length time.Duration
	Now    func() time.Time

	end    time.Time
	quotes map[string]domain.Quote
}

// NewWindow constructs a window of the given length. With startImmediate
// the initial deadline is now, so the first quote closes the initial
// (partial) window; otherwise the first full window runs from now.
func NewWindow(length time.Duration, startImmediate bool, now func() time.Time) *Window {
	if now == nil {
		now = time.Now
	}
	end := now().UTC()
	if !startImmediate {
		end = end.Add(length)
	}
	return &Window{Length: length, Now: now, end: end, quotes: make(map[string]domain.Quote)}
}

// Add folds one quote into the window. When this arrival lands at or past
// the deadline it closes the window: the snapshot (including this quote)
// is returned, the accumulator resets and the deadline moves to now+Length.
// A still-open window returns nil.
func (w *Window) Add(q domain.Quote) domain.Batch {
	w.quotes[q.Ticker] = q
	now := w.Now().UTC()
	if now.Before(w.end) {
		return nil
	}
	batch := make(domain.Batch, 0, len(w.quotes))
	for _, quote := range w.quotes {
		batch = append(batch, quote)
	}
	w.quotes = make(map[string]domain.Quote)
	w.end = now.Add(w.Length)
	return batch
}

// AggregatorService folds raw quotes into tumbling windows on the
// subscriber side and ships each closed window as one batch message on
// the publisher side. The bounded channel between Received and Pump is
// the only hand-off between the two agent goroutines.
type AggregatorService struct {
	window  *Window
	batches chan domain.Batch
}

// NewAggregatorService constructs the mktagg service around a window.
func NewAggregatorService(w *Window) *AggregatorService {
	return &AggregatorService{window: w, batches: make(chan domain.Batch, batchBuffer)}
}

// Received handles one raw quote message. Malformed bodies are dropped
// with a warning; a closed window is handed to the publisher side.
func (s *AggregatorService) Received(ctx domain.Context, body []byte) error {
	q, err := domain.DecodeQuote(body)
	if err != nil {
		slog.Warn("dropping malformed quote", slog.Any("error", err))
		return nil
	}
	slog.Debug("received quote update",
		slog.String("ticker", q.Ticker),
		slog.String("price", q.Price.String()))
	observability.QuoteAggregated()

	batch := s.window.Add(q)
	if batch == nil {
		return nil
	}
	slog.Debug("aggregation window closed", slog.Int("tickers", len(batch)))
	select {
	case s.batches <- batch:
	case <-ctx.Done():
	}
	return nil
}

// Pump drains closed windows and publishes each as one broker message,
// until the context ends. Publish failures propagate so the agent redials;
// the in-flight batch is lost, which the design accepts.
func (s *AggregatorService) Pump(ctx domain.Context, pub domain.Publisher) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch := <-s.batches:
			body, err := domain.EncodeBatch(batch)
			if err != nil {
				slog.Warn("dropping unencodable batch", slog.Any("error", err))
				continue
			}
			slog.Debug("publishing aggregated batch", slog.Int("tickers", len(batch)))
			if err := pub.Publish(ctx, body); err != nil {
				return err
			}
			observability.BatchPublished(len(batch))
		case <-time.After(drainWait):
			slog.Debug("no window closed", slog.Duration("wait", drainWait))
		}
	}
}
