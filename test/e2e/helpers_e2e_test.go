//go:build e2e
// +build e2e

// Package e2e_test drives a running pricing stack through the websrv HTTP
// surface. Point E2E_BASE_URL at websrv (default http://localhost:8080);
// the pipeline services behind it must share the same database and broker.
package e2e_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// getenv returns the value of the environment variable k or def if empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func baseURL() string { return getenv("E2E_BASE_URL", "http://localhost:8080") }

// portfolioID is the portfolio the suite reads. It must exist in the
// stack's database with at least one position so the pipeline prices it;
// override with E2E_PORTFOLIO_ID.
func portfolioID() string { return getenv("E2E_PORTFOLIO_ID", "p-e2e-1") }

// waitForAppReady polls /readyz until websrv reports its backends up.
func waitForAppReady(t *testing.T, client *http.Client, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		resp, err := client.Get(baseURL() + "/readyz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("websrv not ready after %v", timeout)
		}
		time.Sleep(time.Second)
	}
}

// getJSON fetches url and decodes the body with UseNumber so bare JSON
// numbers survive as json.Number instead of collapsing to float64.
func getJSON(t *testing.T, client *http.Client, url string) (int, map[string]any) {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("GET %s: read body: %v", url, err)
	}
	out := map[string]any{}
	if len(body) > 0 {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&out); err != nil {
			t.Fatalf("GET %s: decode %q: %v", url, body, err)
		}
	}
	return resp.StatusCode, out
}
