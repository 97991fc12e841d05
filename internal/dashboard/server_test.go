package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mholloway/rtx-paperbot/internal/ledger"
	"github.com/mholloway/rtx-paperbot/internal/models"
)

type fixedQuotes struct {
	bid, ask float64
}

var _ ledger.QuoteSource = (*fixedQuotes)(nil)

func (f *fixedQuotes) GetOptionQuote(_ context.Context, symbol string) (*models.Quote, error) {
	return &models.Quote{Symbol: symbol, Bid: f.bid, Ask: f.ask}, nil
}

func newTestServer(t *testing.T, authToken string) (*Server, *ledger.PaperTrader) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	trader, err := ledger.NewPaperTrader(ledger.Config{
		Strategy:       "moderate",
		Path:           filepath.Join(t.TempDir(), "ledger.db"),
		InitialBalance: 5000,
		Commission:     ledger.CommissionSchedule{PerContract: 0.65, PerTrade: 0.50, Minimum: 1.00},
		Slippage:       ledger.SlippageModel{ContractThreshold: 5, Pct: 0.02},
	}, &fixedQuotes{bid: 1.90, ask: 2.00}, logger)
	if err != nil {
		t.Fatalf("NewPaperTrader: %v", err)
	}
	t.Cleanup(func() { _ = trader.Close() })

	server := NewServer(Config{Port: 0, AuthToken: authToken},
		map[string]*ledger.PaperTrader{"moderate": trader}, logger)
	return server, trader
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t, "")

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestStrategiesEndpoint(t *testing.T) {
	server, trader := newTestServer(t, "")

	if err := trader.OpenPosition(context.Background(), models.Prediction{
		ID:              "p1",
		ContractSymbol:  "RTX260320C00125000",
		OptionType:      models.OptionTypeCall,
		Expiry:          time.Now().AddDate(0, 0, 21),
		DaysToExpiry:    21,
		Contracts:       1,
		EntryPrice:      2.00,
		TotalCost:       201.15,
		ProfitTargetPct: 0.50,
		StopLossPct:     0.25,
	}); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/strategies", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var views []struct {
		ID            string  `json:"id"`
		Balance       float64 `json:"balance"`
		OpenPositions int     `json:"open_positions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(views) != 1 || views[0].ID != "moderate" || views[0].OpenPositions != 1 {
		t.Errorf("views = %+v", views)
	}
}

func TestSummaryAndPositionsEndpoints(t *testing.T) {
	server, _ := newTestServer(t, "")

	for _, path := range []string{
		"/api/strategies/moderate/summary",
		"/api/strategies/moderate/positions",
		"/api/strategies/moderate/history",
	} {
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/strategies/unknown/summary", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown strategy status = %d, want 404", rec.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	server, _ := newTestServer(t, "secret")

	// Missing token rejected.
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/strategies", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", rec.Code)
	}

	// Header token accepted.
	req := httptest.NewRequest(http.MethodGet, "/api/strategies", nil)
	req.Header.Set("X-Auth-Token", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("header token status = %d, want 200", rec.Code)
	}

	// Query token accepted.
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/strategies?token=secret", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("query token status = %d, want 200", rec.Code)
	}

	// Health stays open for probes.
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
}
