package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mholloway/rtx-paperbot/internal/models"
)

// FilterCriteria defines what makes a chain contract tradeable for the bot:
// enough liquidity to paper-fill realistically, a spread tight enough for the
// mid to mean something, and an implied volatility that is not garbage data.
type FilterCriteria struct {
	MinVolume       int64
	MinOpenInterest int64
	MaxSpreadPct    float64 // bid/ask spread as fraction of mid
	MinIV           float64
	MaxIV           float64
	MinDTE          int
	MaxDTE          int
}

// DefaultFilterCriteria carries the hand-tuned thresholds the bot started
// with: modest liquidity, 15% max spread, IV between 5% and 200%.
var DefaultFilterCriteria = FilterCriteria{
	MinVolume:       10,
	MinOpenInterest: 50,
	MaxSpreadPct:    0.15,
	MinIV:           0.05,
	MaxIV:           2.0,
	MinDTE:          7,
	MaxDTE:          45,
}

// Accept reports whether a contract passes the filter, with the failing rule
// named for diagnostics.
func (f FilterCriteria) Accept(c *models.OptionContract, now time.Time) (bool, string) {
	if c.Bid <= 0 || c.Ask <= 0 {
		return false, "no market"
	}
	if c.Volume < f.MinVolume {
		return false, fmt.Sprintf("volume %d < %d", c.Volume, f.MinVolume)
	}
	if c.OpenInterest < f.MinOpenInterest {
		return false, fmt.Sprintf("open interest %d < %d", c.OpenInterest, f.MinOpenInterest)
	}
	if spread := c.SpreadPct(); spread > f.MaxSpreadPct {
		return false, fmt.Sprintf("spread %.1f%% > %.1f%%", spread*100, f.MaxSpreadPct*100)
	}
	if iv := c.Greeks.MidIV; iv < f.MinIV || iv > f.MaxIV {
		return false, fmt.Sprintf("iv %.2f outside [%.2f, %.2f]", iv, f.MinIV, f.MaxIV)
	}
	if dte := c.DTE(now); dte < f.MinDTE || dte > f.MaxDTE {
		return false, fmt.Sprintf("dte %d outside [%d, %d]", dte, f.MinDTE, f.MaxDTE)
	}
	return true, ""
}

const chainCacheTTL = 15 * time.Second

type cachedChain struct {
	contracts []models.OptionContract
	fetched   time.Time
}

// Engine wraps a Provider with chain filtering and per-contract quote lookup.
// Chains are cached briefly so that monitoring a handful of positions in one
// cycle does not refetch the same expiration repeatedly.
type Engine struct {
	provider Provider
	criteria FilterCriteria
	logger   *logrus.Logger

	mu    sync.Mutex
	cache map[string]cachedChain // key: symbol + "|" + expiration
	nowFn func() time.Time
}

// NewEngine creates a chain-filtering engine over the given provider.
func NewEngine(provider Provider, criteria FilterCriteria, logger *logrus.Logger) *Engine {
	return &Engine{
		provider: provider,
		criteria: criteria,
		logger:   logger,
		cache:    make(map[string]cachedChain),
		nowFn:    time.Now,
	}
}

// GetUnderlyingQuote passes through to the provider.
func (e *Engine) GetUnderlyingQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	return e.provider.GetUnderlyingQuote(ctx, symbol)
}

// TradeableContracts fetches every expiration inside the DTE window, filters
// each chain, and returns the surviving contracts keyed by OCC symbol.
func (e *Engine) TradeableContracts(ctx context.Context, symbol string) (map[string]models.OptionContract, error) {
	expirations, err := e.provider.GetExpirations(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("fetching expirations for %s: %w", symbol, err)
	}

	now := e.nowFn()
	out := make(map[string]models.OptionContract)
	rejected := 0

	for _, expiration := range expirations {
		exp, err := time.Parse("2006-01-02", expiration)
		if err != nil {
			e.logger.WithField("expiration", expiration).Warn("skipping unparseable expiration")
			continue
		}
		dte := models.DaysBetween(now, exp)
		if dte < e.criteria.MinDTE || dte > e.criteria.MaxDTE {
			continue
		}

		contracts, err := e.chain(ctx, symbol, expiration)
		if err != nil {
			return nil, err
		}
		for i := range contracts {
			c := contracts[i]
			if ok, _ := e.criteria.Accept(&c, now); !ok {
				rejected++
				continue
			}
			out[c.Symbol] = c
		}
	}

	e.logger.WithFields(logrus.Fields{
		"symbol": symbol, "tradeable": len(out), "rejected": rejected,
	}).Debug("filtered option chains")

	return out, nil
}

// GetOptionQuote returns the current bid/ask/mid for one contract by locating
// it in its expiration's chain. Satisfies the ledger's QuoteSource contract.
func (e *Engine) GetOptionQuote(ctx context.Context, contractSymbol string) (*models.Quote, error) {
	underlying, expiration, _, _, err := models.ParseContractSymbol(contractSymbol)
	if err != nil {
		return nil, err
	}

	contracts, err := e.chain(ctx, underlying, expiration.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}

	for i := range contracts {
		c := &contracts[i]
		if c.Symbol != contractSymbol {
			continue
		}
		if c.Bid <= 0 && c.Ask <= 0 {
			return nil, fmt.Errorf("contract %s has no market", contractSymbol)
		}
		return &models.Quote{
			Symbol: contractSymbol,
			Bid:    c.Bid,
			Ask:    c.Ask,
			Last:   c.Last,
			Mid:    c.Mid(),
			Time:   e.nowFn().UTC(),
		}, nil
	}

	return nil, fmt.Errorf("contract %s not found in %s %s chain",
		contractSymbol, underlying, expiration.Format("2006-01-02"))
}

func (e *Engine) chain(ctx context.Context, symbol, expiration string) ([]models.OptionContract, error) {
	key := symbol + "|" + expiration

	e.mu.Lock()
	cached, ok := e.cache[key]
	e.mu.Unlock()
	if ok && e.nowFn().Sub(cached.fetched) < chainCacheTTL {
		return cached.contracts, nil
	}

	contracts, err := e.provider.GetOptionChain(ctx, symbol, expiration)
	if err != nil {
		return nil, fmt.Errorf("fetching %s %s chain: %w", symbol, expiration, err)
	}

	e.mu.Lock()
	e.cache[key] = cachedChain{contracts: contracts, fetched: e.nowFn()}
	e.mu.Unlock()

	return contracts, nil
}
