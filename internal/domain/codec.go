package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Wire shapes. Prices travel as bare JSON numbers, instants as numeric
// POSIX seconds, absent instants as null.

type quoteWire struct {
	Ticker    string      `json:"ticker"`
	Price     json.Number `json:"price"`
	Timestamp json.Number `json:"timestamp"`
}

type jobWire struct {
	ID           string       `json:"identifier"`
	PortfolioID  string       `json:"portfolio_id"`
	SnapshotTime *json.Number `json:"snapshot_time"`
	TargetCcy    string       `json:"target_ccy"`
	StartedBy    string       `json:"started_by"`
	Status       string       `json:"status"`
	StartTime    *json.Number `json:"start_time"`
	EndTime      *json.Number `json:"end_time"`
}

// EncodeQuote serializes one quote for the quotes exchanges.
func EncodeQuote(q Quote) ([]byte, error) {
	b, err := json.Marshal(quoteToWire(q))
	if err != nil {
		return nil, fmt.Errorf("op=domain.EncodeQuote: %w", err)
	}
	return b, nil
}

// DecodeQuote parses a quote message. Malformed bodies are data-level
// errors (ErrBadData).
func DecodeQuote(b []byte) (Quote, error) {
	var w quoteWire
	if err := json.Unmarshal(b, &w); err != nil {
		return Quote{}, fmt.Errorf("op=domain.DecodeQuote: %v: %w", err, ErrBadData)
	}
	return quoteFromWire(w)
}

// EncodeBatch serializes a closed window as a JSON array of quotes.
func EncodeBatch(batch Batch) ([]byte, error) {
	ws := make([]quoteWire, 0, len(batch))
	for _, q := range batch {
		ws = append(ws, quoteToWire(q))
	}
	b, err := json.Marshal(ws)
	if err != nil {
		return nil, fmt.Errorf("op=domain.EncodeBatch: %w", err)
	}
	return b, nil
}

// DecodeBatch parses an aggregated-quotes message.
func DecodeBatch(b []byte) (Batch, error) {
	var ws []quoteWire
	if err := json.Unmarshal(b, &ws); err != nil {
		return nil, fmt.Errorf("op=domain.DecodeBatch: %v: %w", err, ErrBadData)
	}
	batch := make(Batch, 0, len(ws))
	for _, w := range ws {
		q, err := quoteFromWire(w)
		if err != nil {
			return nil, fmt.Errorf("op=domain.DecodeBatch: %w", err)
		}
		batch = append(batch, q)
	}
	return batch, nil
}

// EncodeJob serializes a pricing job for the work queue.
func EncodeJob(j PricingJob) ([]byte, error) {
	w := jobWire{
		ID:           j.ID,
		PortfolioID:  j.PortfolioID,
		SnapshotTime: wireInstantPtr(&j.SnapshotTime),
		TargetCcy:    j.TargetCcy,
		StartedBy:    j.StartedBy,
		Status:       string(j.Status),
		StartTime:    wireInstantPtr(&j.StartTime),
		EndTime:      wireInstantPtr(j.EndTime),
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("op=domain.EncodeJob: %w", err)
	}
	return b, nil
}

// DecodeJob parses a pricing job. Malformed JSON is ErrBadData; a decoded
// job missing its identifier, portfolio or snapshot time is ErrInvariant,
// since only persisted jobs reach the work queue.
func DecodeJob(b []byte) (PricingJob, error) {
	var w jobWire
	if err := json.Unmarshal(b, &w); err != nil {
		return PricingJob{}, fmt.Errorf("op=domain.DecodeJob: %v: %w", err, ErrBadData)
	}
	j := PricingJob{
		ID:          w.ID,
		PortfolioID: w.PortfolioID,
		TargetCcy:   w.TargetCcy,
		StartedBy:   w.StartedBy,
		Status:      JobStatus(w.Status),
	}
	var err error
	if j.SnapshotTime, err = instantFromWire(w.SnapshotTime); err != nil {
		return PricingJob{}, fmt.Errorf("op=domain.DecodeJob: snapshot_time: %v: %w", err, ErrBadData)
	}
	if j.StartTime, err = instantFromWire(w.StartTime); err != nil {
		return PricingJob{}, fmt.Errorf("op=domain.DecodeJob: start_time: %v: %w", err, ErrBadData)
	}
	if w.EndTime != nil {
		end, err := instantFromWire(w.EndTime)
		if err != nil {
			return PricingJob{}, fmt.Errorf("op=domain.DecodeJob: end_time: %v: %w", err, ErrBadData)
		}
		j.EndTime = &end
	}
	if j.ID == "" {
		return PricingJob{}, fmt.Errorf("op=domain.DecodeJob: identifier required: %w", ErrInvariant)
	}
	if err := j.Validate(); err != nil {
		return PricingJob{}, err
	}
	return j, nil
}

func quoteToWire(q Quote) quoteWire {
	return quoteWire{
		Ticker:    q.Ticker,
		Price:     json.Number(q.Price.String()),
		Timestamp: wireInstant(q.Timestamp),
	}
}

func quoteFromWire(w quoteWire) (Quote, error) {
	if w.Ticker == "" {
		return Quote{}, fmt.Errorf("op=domain.DecodeQuote: empty ticker: %w", ErrBadData)
	}
	price, err := decimal.NewFromString(w.Price.String())
	if err != nil {
		return Quote{}, fmt.Errorf("op=domain.DecodeQuote: price: %v: %w", err, ErrBadData)
	}
	ts, err := posixSeconds(w.Timestamp)
	if err != nil {
		return Quote{}, fmt.Errorf("op=domain.DecodeQuote: timestamp: %v: %w", err, ErrBadData)
	}
	return Quote{Ticker: w.Ticker, Price: price, Timestamp: ts}, nil
}

func wireInstant(t time.Time) json.Number {
	return json.Number(strconv.FormatInt(t.Unix(), 10))
}

func wireInstantPtr(t *time.Time) *json.Number {
	if t == nil || t.IsZero() {
		return nil
	}
	n := wireInstant(*t)
	return &n
}

func instantFromWire(n *json.Number) (time.Time, error) {
	if n == nil {
		return time.Time{}, nil
	}
	return posixSeconds(*n)
}

// posixSeconds accepts integral or fractional second counts; sub-second
// precision is not carried on the wire.
func posixSeconds(n json.Number) (time.Time, error) {
	if i, err := n.Int64(); err == nil {
		return time.Unix(i, 0).UTC(), nil
	}
	f, err := n.Float64()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(f), 0).UTC(), nil
}
