package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/saifu/pricing-pipeline/internal/config"
	"github.com/saifu/pricing-pipeline/internal/domain"
)

// balanceCurrency is the currency the read side serves. Balances are
// persisted per target currency; the front-end reads the USD series.
const balanceCurrency = "USD"

// Server aggregates the read-side handler dependencies.
type Server struct {
	Cfg      config.WebsrvApp
	Balances domain.BalanceRepository
	DBCheck  func(ctx context.Context) error
}

// NewServer constructs the websrv HTTP server with its checks wired.
func NewServer(cfg config.WebsrvApp, balances domain.BalanceRepository, dbCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Balances: balances, DBCheck: dbCheck}
}

type portfolioBalance struct {
	PortfolioID string      `json:"portfolio_id"`
	Balance     json.Number `json:"balance"`
	Currency    string      `json:"currency"`
	QuoteTime   int64       `json:"quote_time"`
}

// PortfolioHandler returns the newest persisted balance for a portfolio.
func (s *Server) PortfolioHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			writeError(w, r, fmt.Errorf("%w: portfolio id missing", domain.ErrInvalidArgument))
			return
		}
		b, err := s.Balances.Latest(r.Context(), id, balanceCurrency)
		if err != nil {
			LoggerFrom(r).Warn("portfolio balance lookup failed",
				slog.String("portfolio_id", id), slog.Any("error", err))
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, portfolioBalance{
			PortfolioID: b.PortfolioID,
			Balance:     json.Number(b.Balance.String()),
			Currency:    b.Currency,
			QuoteTime:   b.QuoteTime.Unix(),
		})
	}
}

// ReadyzHandler probes the database.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 1)
		ok := true
		if s.DBCheck != nil {
			if err := s.DBCheck(ctx); err != nil {
				checks = append(checks, check{Name: "db", OK: false, Details: err.Error()})
				ok = false
			} else {
				checks = append(checks, check{Name: "db", OK: true})
			}
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
