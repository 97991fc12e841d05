// Package dashboard serves a read-only JSON API over the per-strategy
// paper-trading ledgers.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/mholloway/rtx-paperbot/internal/ledger"
)

// Config holds the dashboard server settings.
type Config struct {
	Port      int
	AuthToken string
}

// Server exposes strategy summaries, open positions, and trade history.
// All endpoints are reads; trading is never driven through HTTP.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	traders   map[string]*ledger.PaperTrader
	logger    *logrus.Logger
	port      int
	authToken string
}

// NewServer builds the router over the per-strategy traders.
func NewServer(cfg Config, traders map[string]*ledger.PaperTrader, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		traders:   traders,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/strategies", s.handleStrategies)
	s.router.Get("/api/strategies/{id}/summary", s.handleSummary)
	s.router.Get("/api/strategies/{id}/positions", s.handlePositions)
	s.router.Get("/api/strategies/{id}/history", s.handleHistory)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start blocks serving HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.WithField("port", s.port).Info("starting dashboard server")
	return s.server.ListenAndServe()
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler returns the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleStrategies(w http.ResponseWriter, _ *http.Request) {
	type strategyView struct {
		ID            string  `json:"id"`
		Balance       float64 `json:"balance"`
		OpenPositions int     `json:"open_positions"`
	}

	ids := make([]string, 0, len(s.traders))
	for id := range s.traders {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	views := make([]strategyView, 0, len(ids))
	for _, id := range ids {
		t := s.traders[id]
		views = append(views, strategyView{
			ID:            id,
			Balance:       t.Balance(),
			OpenPositions: len(t.OpenPositions()),
		})
	}
	s.writeJSON(w, views)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	trader, ok := s.trader(w, r)
	if !ok {
		return
	}

	summary, err := trader.PerformanceSummary(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("summary query failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, summary)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	trader, ok := s.trader(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, trader.OpenPositionsSummary(r.Context()))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	trader, ok := s.trader(w, r)
	if !ok {
		return
	}

	outcomes, err := trader.History(r.Context(), 50)
	if err != nil {
		s.logger.WithError(err).Error("history query failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, outcomes)
}

func (s *Server) trader(w http.ResponseWriter, r *http.Request) (*ledger.PaperTrader, bool) {
	id := chi.URLParam(r, "id")
	trader, ok := s.traders[id]
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return nil, false
	}
	return trader, true
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("encoding response failed")
	}
}
