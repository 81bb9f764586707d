package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal %q: %v", s, err)
	}
	return d
}

func TestQuoteRoundTrip(t *testing.T) {
	in := Quote{
		Ticker:    "BTCUSD",
		Price:     mustDecimal(t, "42317.55"),
		Timestamp: time.Unix(1700000000, 0).UTC(),
	}

	b, err := EncodeQuote(in)
	if err != nil {
		t.Fatalf("EncodeQuote: %v", err)
	}
	out, err := DecodeQuote(b)
	if err != nil {
		t.Fatalf("DecodeQuote: %v", err)
	}

	if out.Ticker != in.Ticker {
		t.Errorf("Ticker = %q, want %q", out.Ticker, in.Ticker)
	}
	if !out.Price.Equal(in.Price) {
		t.Errorf("Price = %s, want %s", out.Price, in.Price)
	}
	if !out.Timestamp.Equal(in.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", out.Timestamp, in.Timestamp)
	}
}

func TestQuoteWireShape(t *testing.T) {
	q := Quote{Ticker: "ETHEUR", Price: mustDecimal(t, "1900.1"), Timestamp: time.Unix(1700000123, 0).UTC()}
	b, err := EncodeQuote(q)
	if err != nil {
		t.Fatalf("EncodeQuote: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal wire: %v", err)
	}
	if string(raw["ticker"]) != `"ETHEUR"` {
		t.Errorf("ticker wire = %s", raw["ticker"])
	}
	// price and timestamp must be bare JSON numbers, not strings
	if string(raw["price"]) != "1900.1" {
		t.Errorf("price wire = %s, want 1900.1", raw["price"])
	}
	if string(raw["timestamp"]) != "1700000123" {
		t.Errorf("timestamp wire = %s, want 1700000123", raw["timestamp"])
	}
}

func TestDecodeQuoteFractionalSeconds(t *testing.T) {
	q, err := DecodeQuote([]byte(`{"ticker":"BTCUSD","price":100,"timestamp":1700000000.75}`))
	if err != nil {
		t.Fatalf("DecodeQuote: %v", err)
	}
	want := time.Unix(1700000000, 0).UTC()
	if !q.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", q.Timestamp, want)
	}
}

func TestDecodeQuoteBadData(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"empty ticker", `{"ticker":"","price":1,"timestamp":1}`},
		{"missing ticker", `{"price":1,"timestamp":1}`},
		{"bad price", `{"ticker":"BTCUSD","price":"abc","timestamp":1}`},
		{"missing timestamp", `{"ticker":"BTCUSD","price":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeQuote([]byte(tt.body))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrBadData) {
				t.Errorf("expected ErrBadData, got %v", err)
			}
		})
	}
}

func TestBatchRoundTrip(t *testing.T) {
	ts := time.Unix(1700000200, 0).UTC()
	in := Batch{
		{Ticker: "BTCUSD", Price: mustDecimal(t, "101"), Timestamp: ts},
		{Ticker: "ETHUSD", Price: mustDecimal(t, "5.25"), Timestamp: ts},
	}

	b, err := EncodeBatch(in)
	if err != nil {
		t.Fatalf("EncodeBatch: %v", err)
	}
	if b[0] != '[' {
		t.Errorf("batch wire must be a JSON array, got %s", b)
	}
	out, err := DecodeBatch(b)
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i].Ticker != in[i].Ticker || !out[i].Price.Equal(in[i].Price) || !out[i].Timestamp.Equal(in[i].Timestamp) {
			t.Errorf("quote %d = %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestDecodeBatchBadElement(t *testing.T) {
	_, err := DecodeBatch([]byte(`[{"ticker":"BTCUSD","price":1,"timestamp":1},{"ticker":"","price":1,"timestamp":1}]`))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, ErrBadData) {
		t.Errorf("expected ErrBadData, got %v", err)
	}
}

func TestJobRoundTripNullEnd(t *testing.T) {
	in := PricingJob{
		ID:           "7f9c24e8b4a04f6d8e1c0a5b9d3f2e71",
		PortfolioID:  "pf-42",
		SnapshotTime: time.Unix(1700000300, 0).UTC(),
		TargetCcy:    "USD",
		StartedBy:    StartedBySystem,
		Status:       JobNew,
		StartTime:    time.Unix(1700000301, 0).UTC(),
		EndTime:      nil,
	}

	b, err := EncodeJob(in)
	if err != nil {
		t.Fatalf("EncodeJob: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal wire: %v", err)
	}
	if string(raw["end_time"]) != "null" {
		t.Errorf("end_time wire = %s, want null", raw["end_time"])
	}
	if string(raw["snapshot_time"]) != "1700000300" {
		t.Errorf("snapshot_time wire = %s, want 1700000300", raw["snapshot_time"])
	}

	out, err := DecodeJob(b)
	if err != nil {
		t.Fatalf("DecodeJob: %v", err)
	}
	if out.ID != in.ID || out.PortfolioID != in.PortfolioID || out.TargetCcy != in.TargetCcy {
		t.Errorf("decoded = %+v, want %+v", out, in)
	}
	if out.Status != JobNew || out.StartedBy != StartedBySystem {
		t.Errorf("status/started_by = %q/%q", out.Status, out.StartedBy)
	}
	if !out.SnapshotTime.Equal(in.SnapshotTime) || !out.StartTime.Equal(in.StartTime) {
		t.Errorf("times = %v/%v", out.SnapshotTime, out.StartTime)
	}
	if out.EndTime != nil {
		t.Errorf("EndTime = %v, want nil", out.EndTime)
	}
}

func TestJobRoundTripWithEnd(t *testing.T) {
	end := time.Unix(1700000400, 0).UTC()
	in := PricingJob{
		ID:           "a1",
		PortfolioID:  "pf-7",
		SnapshotTime: time.Unix(1700000300, 0).UTC(),
		TargetCcy:    "EUR",
		StartedBy:    StartedBySystem,
		Status:       JobNew,
		StartTime:    time.Unix(1700000301, 0).UTC(),
		EndTime:      &end,
	}

	b, err := EncodeJob(in)
	if err != nil {
		t.Fatalf("EncodeJob: %v", err)
	}
	out, err := DecodeJob(b)
	if err != nil {
		t.Fatalf("DecodeJob: %v", err)
	}
	if out.EndTime == nil || !out.EndTime.Equal(end) {
		t.Errorf("EndTime = %v, want %v", out.EndTime, end)
	}
}

func TestDecodeJobErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"not json", "{", ErrBadData},
		{
			"missing identifier",
			`{"portfolio_id":"pf-1","snapshot_time":1700000300,"target_ccy":"USD","started_by":"SYSTEM","status":"N","start_time":1700000301,"end_time":null}`,
			ErrInvariant,
		},
		{
			"missing portfolio",
			`{"identifier":"a1","snapshot_time":1700000300,"target_ccy":"USD","started_by":"SYSTEM","status":"N","start_time":1700000301,"end_time":null}`,
			ErrInvariant,
		},
		{
			"null snapshot",
			`{"identifier":"a1","portfolio_id":"pf-1","snapshot_time":null,"target_ccy":"USD","started_by":"SYSTEM","status":"N","start_time":1700000301,"end_time":null}`,
			ErrInvariant,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeJob([]byte(tt.body))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
