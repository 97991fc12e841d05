// Package mock provides a scripted market-data provider for offline runs
// and tests. Prices follow a small random walk so cycles see fresh data.
package mock

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/mholloway/rtx-paperbot/internal/marketdata"
	"github.com/mholloway/rtx-paperbot/internal/models"
	"github.com/mholloway/rtx-paperbot/internal/util"
)

// Provider simulates quotes and option chains for one underlying.
type Provider struct {
	symbol       string
	currentPrice float64
	openPrice    float64
	midIV        float64
	nowFn        func() time.Time
}

var _ marketdata.Provider = (*Provider)(nil)

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		// Fallback to a reasonable default if crypto/rand fails
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// secureInt63n generates a cryptographically secure random int64 between 0 and n-1
func secureInt63n(n int64) int64 {
	r, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return n / 2
	}
	return r.Int64()
}

// NewProvider seeds a provider around a plausible RTX price level.
func NewProvider(symbol string) *Provider {
	start := 125.0 + secureFloat64()*10
	return &Provider{
		symbol:       symbol,
		currentPrice: start,
		openPrice:    start,
		midIV:        0.18 + secureFloat64()*0.12,
		nowFn:        time.Now,
	}
}

// GetUnderlyingQuote implements marketdata.Provider.
func (p *Provider) GetUnderlyingQuote(_ context.Context, symbol string) (*models.Quote, error) {
	// Small random walk per call
	p.currentPrice += (secureFloat64() - 0.5) * 0.5
	last := util.RoundToTick(p.currentPrice, 0.01)

	spread := 0.02
	return &models.Quote{
		Symbol: symbol,
		Last:   last,
		Bid:    util.RoundToTick(last-spread/2, 0.01),
		Ask:    util.RoundToTick(last+spread/2, 0.01),
		Mid:    last,
		Change: util.RoundToTick(last-p.openPrice, 0.01),
		Time:   p.nowFn(),
	}, nil
}

// GetExpirations implements marketdata.Provider. It returns the next six
// weekly Friday expirations.
func (p *Provider) GetExpirations(_ context.Context, _ string) ([]string, error) {
	now := p.nowFn()
	d := now
	for d.Weekday() != time.Friday {
		d = d.AddDate(0, 0, 1)
	}

	expirations := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		expirations = append(expirations, d.Format("2006-01-02"))
		d = d.AddDate(0, 0, 7)
	}
	return expirations, nil
}

// GetOptionChain implements marketdata.Provider. Prices use a crude
// time-value approximation; good enough to exercise filtering and fills.
func (p *Provider) GetOptionChain(_ context.Context, symbol, expiration string) ([]models.OptionContract, error) {
	expDate, err := time.Parse("2006-01-02", expiration)
	if err != nil {
		return nil, fmt.Errorf("invalid expiration format: %w", err)
	}
	dte := models.DaysBetween(p.nowFn(), expDate)

	strikeInterval := 2.5
	startStrike := math.Floor(p.currentPrice/strikeInterval)*strikeInterval - 15
	endStrike := startStrike + 30

	var contracts []models.OptionContract
	for strike := startStrike; strike <= endStrike; strike += strikeInterval {
		distance := math.Abs(strike - p.currentPrice)
		deltaDecay := math.Exp(-distance * 0.1)

		callDelta := 0.5 * deltaDecay
		if strike < p.currentPrice {
			callDelta = 0.5 * (2 - deltaDecay)
		}
		putDelta := callDelta - 1

		timeValue := math.Sqrt(math.Max(0, float64(dte))/365.0)
		base := math.Max(0.30, p.midIV*timeValue*p.currentPrice*0.1)

		callPrice := util.RoundToTick(base*math.Abs(callDelta)*2, 0.01)
		putPrice := util.RoundToTick(base*math.Abs(putDelta)*2, 0.01)
		if strike < p.currentPrice {
			callPrice = util.RoundToTick(callPrice+(p.currentPrice-strike), 0.01)
		} else {
			putPrice = util.RoundToTick(putPrice+(strike-p.currentPrice), 0.01)
		}

		for _, side := range []struct {
			optType models.OptionType
			price   float64
			delta   float64
		}{
			{models.OptionTypeCall, callPrice, callDelta},
			{models.OptionTypePut, putPrice, putDelta},
		} {
			half := util.RoundToTick(math.Max(0.01, side.price*0.02), 0.01)
			contracts = append(contracts, models.OptionContract{
				Symbol:       models.ContractSymbol(symbol, expDate, side.optType, strike),
				Underlying:   symbol,
				OptionType:   side.optType,
				Strike:       strike,
				Expiration:   expDate,
				Bid:          util.RoundToTick(side.price-half, 0.01),
				Ask:          util.RoundToTick(side.price+half, 0.01),
				Last:         side.price,
				Volume:       100 + secureInt63n(10000),
				OpenInterest: 500 + secureInt63n(50000),
				Greeks: models.Greeks{
					Delta: side.delta,
					Gamma: 0.01 * deltaDecay,
					Theta: -side.price * 0.05,
					Vega:  p.currentPrice * 0.001 * deltaDecay,
					MidIV: p.midIV,
				},
			})
		}
	}
	return contracts, nil
}
