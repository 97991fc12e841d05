// Package models provides the domain types for options contracts,
// trade predictions, and paper-trading positions.
package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// SharesPerContract is the standard equity option multiplier.
const SharesPerContract = 100.0

// OptionType represents the type of option contract.
type OptionType string

const (
	// OptionTypeCall represents a call option contract
	OptionTypeCall OptionType = "call"
	// OptionTypePut represents a put option contract
	OptionTypePut OptionType = "put"
)

// Valid returns true if the OptionType is one of the defined constants.
func (t OptionType) Valid() bool {
	return t == OptionTypeCall || t == OptionTypePut
}

// Direction is the directional view a prediction expresses on the underlying.
type Direction string

const (
	// DirectionBullish expects the underlying to rise (trades calls)
	DirectionBullish Direction = "bullish"
	// DirectionBearish expects the underlying to fall (trades puts)
	DirectionBearish Direction = "bearish"
)

// OptionTypeFor maps a directional view to the contract type traded for it.
func (d Direction) OptionTypeFor() OptionType {
	if d == DirectionBearish {
		return OptionTypePut
	}
	return OptionTypeCall
}

// Greeks contains option sensitivity data as reported by the data provider.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	MidIV float64 `json:"mid_iv"`
}

// OptionContract is one row of a filtered option chain.
type OptionContract struct {
	Symbol       string     `json:"symbol"` // OCC contract symbol
	Underlying   string     `json:"underlying"`
	OptionType   OptionType `json:"option_type"`
	Strike       float64    `json:"strike"`
	Expiration   time.Time  `json:"expiration"`
	Bid          float64    `json:"bid"`
	Ask          float64    `json:"ask"`
	Last         float64    `json:"last"`
	Volume       int64      `json:"volume"`
	OpenInterest int64      `json:"open_interest"`
	Greeks       Greeks     `json:"greeks"`
}

// Mid returns the bid/ask midpoint for the contract.
func (c *OptionContract) Mid() float64 {
	return (c.Bid + c.Ask) / 2
}

// SpreadPct returns the bid/ask spread as a fraction of the midpoint.
// A zero or crossed market reports 1.0 so callers filter it out.
func (c *OptionContract) SpreadPct() float64 {
	mid := c.Mid()
	if mid <= 0 || c.Ask < c.Bid {
		return 1.0
	}
	return (c.Ask - c.Bid) / mid
}

// DTE returns calendar days until the contract expires, floored at zero.
func (c *OptionContract) DTE(now time.Time) int {
	return DaysBetween(now, c.Expiration)
}

// Quote is the current market for a single contract or underlying.
type Quote struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Last   float64   `json:"last"`
	Mid    float64   `json:"mid"`
	Change float64   `json:"change"`
	Time   time.Time `json:"time"`
}

// DaysBetween returns whole calendar days from now until then, floored at zero.
func DaysBetween(now, then time.Time) int {
	n := now.UTC().Truncate(24 * time.Hour)
	t := then.UTC().Truncate(24 * time.Hour)
	d := int(t.Sub(n).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// ContractSymbol builds the OCC contract symbol for an option:
// underlying + yymmdd + C/P + strike*1000 zero-padded to 8 digits
// (e.g. RTX260116C00125000).
func ContractSymbol(underlying string, expiration time.Time, optType OptionType, strike float64) string {
	cp := "C"
	if optType == OptionTypePut {
		cp = "P"
	}
	return fmt.Sprintf("%s%s%s%08d",
		strings.ToUpper(underlying),
		expiration.Format("060102"),
		cp,
		int64(math.Round(strike*1000)))
}

// ParseContractSymbol decomposes an OCC contract symbol into its parts.
func ParseContractSymbol(symbol string) (underlying string, expiration time.Time, optType OptionType, strike float64, err error) {
	// Minimum: 1-char root + 6-digit date + C/P + 8-digit strike
	if len(symbol) < 16 {
		return "", time.Time{}, "", 0, fmt.Errorf("contract symbol %q too short", symbol)
	}
	tail := symbol[len(symbol)-15:]
	underlying = symbol[:len(symbol)-15]

	expiration, err = time.Parse("060102", tail[:6])
	if err != nil {
		return "", time.Time{}, "", 0, fmt.Errorf("contract symbol %q: bad expiration: %w", symbol, err)
	}

	switch tail[6] {
	case 'C':
		optType = OptionTypeCall
	case 'P':
		optType = OptionTypePut
	default:
		return "", time.Time{}, "", 0, fmt.Errorf("contract symbol %q: bad option type %q", symbol, tail[6])
	}

	millis, err := strconv.ParseInt(tail[7:], 10, 64)
	if err != nil {
		return "", time.Time{}, "", 0, fmt.Errorf("contract symbol %q: bad strike: %w", symbol, err)
	}
	strike = float64(millis) / 1000

	return underlying, expiration, optType, strike, nil
}
