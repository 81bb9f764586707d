// Package provider implements the external quote provider client.
//
// The provider is queried with an HTTP POST against a templated URL whose
// {sources} and {targets} placeholders are substituted with comma-joined
// currency codes. Success is HTTP 200 with a JSON object mapping each
// source code to an object of target code to price; the provider signals
// failure in-band with a top-level "Response": "Error" envelope.
package provider

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/saifu/pricing-pipeline/internal/adapter/observability"
	"github.com/saifu/pricing-pipeline/internal/domain"
)

const requestTimeout = 10 * time.Second

// RequestError is the single failure class for provider calls: transport
// errors, non-200 statuses, error envelopes and undecodable bodies all
// collapse into it. It unwraps to domain.ErrUnavailable so callers treat
// every provider failure as transient.
type RequestError struct {
	Reason string
}

func (e *RequestError) Error() string { return "op=provider.FetchQuotes: " + e.Reason }

func (e *RequestError) Unwrap() error { return domain.ErrUnavailable }

func requestErrorf(format string, args ...any) *RequestError {
	return &RequestError{Reason: fmt.Sprintf(format, args...)}
}

// Client implements domain.QuoteSource against the provider HTTP API.
type Client struct {
	resource string
	hc       *http.Client
}

// New constructs a client for the templated resource URL.
func New(resource string) *Client {
	return &Client{
		resource: resource,
		hc:       &http.Client{Timeout: requestTimeout},
	}
}

// FetchQuotes requests every pair in one provider call and returns the
// cross-product of pairs the response carries. Quote timestamps are the
// wall-clock instant the response was received. Every failure comes back
// as *RequestError so the caller can log and retry next cycle.
func (c *Client) FetchQuotes(ctx domain.Context, pairs []domain.Pair) ([]domain.Quote, error) {
	resource := buildResource(c.resource, pairs)
	slog.Debug("fetching quotes", slog.String("resource", resource))

	start := time.Now()
	quotes, outcome, err := c.fetch(ctx, resource)
	observability.ProviderRequest(outcome, time.Since(start))
	return quotes, err
}

func (c *Client) fetch(ctx domain.Context, resource string) ([]domain.Quote, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, resource, nil)
	if err != nil {
		return nil, "transport", requestErrorf("build request: %v", err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, "transport", requestErrorf("send: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "status", requestErrorf("unexpected http status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "transport", requestErrorf("read body: %v", err)
	}
	receivedAt := time.Now().UTC()

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, "bad_body", requestErrorf("decode: %v", err)
	}
	if msg, isErr := errorEnvelope(envelope); isErr {
		return nil, "provider_error", requestErrorf("provider reported %q", msg)
	}

	quotes, err := extractQuotes(envelope, receivedAt)
	if err != nil {
		return nil, "bad_body", err
	}
	return quotes, "ok", nil
}

// buildResource substitutes the deduplicated, sorted source and target
// unions into the URL template. The provider is asked once for the whole
// cross-product rather than once per pair.
func buildResource(template string, pairs []domain.Pair) string {
	sources := make(map[string]struct{}, len(pairs))
	targets := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		sources[p.Source] = struct{}{}
		targets[p.Target] = struct{}{}
	}
	return strings.NewReplacer(
		"{sources}", strings.Join(sortedKeys(sources), ","),
		"{targets}", strings.Join(sortedKeys(targets), ","),
	).Replace(template)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// errorEnvelope reports whether the body carries the provider's in-band
// error marker, and the accompanying message when it does.
func errorEnvelope(envelope map[string]json.RawMessage) (string, bool) {
	raw, ok := envelope["Response"]
	if !ok {
		return "", false
	}
	var response string
	if err := json.Unmarshal(raw, &response); err != nil || response != "Error" {
		return "", false
	}
	msg := "unknown"
	if rawMsg, ok := envelope["Message"]; ok {
		var s string
		if err := json.Unmarshal(rawMsg, &s); err == nil {
			msg = s
		}
	}
	return msg, true
}

func extractQuotes(envelope map[string]json.RawMessage, receivedAt time.Time) ([]domain.Quote, error) {
	quotes := make([]domain.Quote, 0, len(envelope))
	for _, source := range sortedRawKeys(envelope) {
		var byTarget map[string]json.Number
		if err := json.Unmarshal(envelope[source], &byTarget); err != nil {
			return nil, requestErrorf("decode %s: %v", source, err)
		}
		targets := make([]string, 0, len(byTarget))
		for t := range byTarget {
			targets = append(targets, t)
		}
		sort.Strings(targets)
		for _, target := range targets {
			price, err := decimal.NewFromString(byTarget[target].String())
			if err != nil {
				return nil, requestErrorf("price %s%s: %v", source, target, err)
			}
			quotes = append(quotes, domain.Quote{
				Ticker:    source + target,
				Price:     price,
				Timestamp: receivedAt,
			})
		}
	}
	return quotes, nil
}

func sortedRawKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
