package models

import (
	"math"
	"testing"
	"time"
)

func TestContractSymbolRoundTrip(t *testing.T) {
	tests := []struct {
		underlying string
		expiration time.Time
		optType    OptionType
		strike     float64
		want       string
	}{
		{"RTX", time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC), OptionTypeCall, 125, "RTX260116C00125000"},
		{"RTX", time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC), OptionTypePut, 122.5, "RTX260116P00122500"},
		{"rtx", time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), OptionTypeCall, 7.5, "RTX261231C00007500"},
		{"SPY", time.Date(2027, 6, 18, 0, 0, 0, 0, time.UTC), OptionTypePut, 450, "SPY270618P00450000"},
	}

	for _, tt := range tests {
		got := ContractSymbol(tt.underlying, tt.expiration, tt.optType, tt.strike)
		if got != tt.want {
			t.Errorf("ContractSymbol(%s %.2f) = %s, want %s", tt.underlying, tt.strike, got, tt.want)
			continue
		}

		underlying, expiration, optType, strike, err := ParseContractSymbol(got)
		if err != nil {
			t.Errorf("ParseContractSymbol(%s): %v", got, err)
			continue
		}
		if underlying != "RTX" && underlying != "SPY" {
			t.Errorf("parsed underlying = %s", underlying)
		}
		if !expiration.Equal(tt.expiration) {
			t.Errorf("parsed expiration = %v, want %v", expiration, tt.expiration)
		}
		if optType != tt.optType {
			t.Errorf("parsed type = %s, want %s", optType, tt.optType)
		}
		if math.Abs(strike-tt.strike) > 1e-9 {
			t.Errorf("parsed strike = %.4f, want %.4f", strike, tt.strike)
		}
	}
}

func TestParseContractSymbolRejectsMalformed(t *testing.T) {
	bad := []string{
		"",
		"RTX",
		"RTX260116X00125000", // bad type letter
		"RTX26011CC00125000", // bad date
		"RTX260116C0012500x", // bad strike
	}
	for _, symbol := range bad {
		if _, _, _, _, err := ParseContractSymbol(symbol); err == nil {
			t.Errorf("ParseContractSymbol(%q) accepted malformed input", symbol)
		}
	}
}

func TestSpreadPct(t *testing.T) {
	tests := []struct {
		name string
		bid  float64
		ask  float64
		want float64
	}{
		{"normal market", 1.90, 2.10, 0.10},
		{"tight market", 2.00, 2.00, 0.0},
		{"zero market", 0, 0, 1.0},
		{"crossed market", 2.10, 1.90, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := OptionContract{Bid: tt.bid, Ask: tt.ask}
			if got := c.SpreadPct(); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("SpreadPct() = %.4f, want %.4f", got, tt.want)
			}
		})
	}
}

func TestDaysBetween(t *testing.T) {
	base := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		then time.Time
		want int
	}{
		{"same day", base.Add(2 * time.Hour), 0},
		{"next day", base.AddDate(0, 0, 1), 1},
		{"forty days", base.AddDate(0, 0, 40), 40},
		{"past is floored", base.AddDate(0, 0, -3), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysBetween(base, tt.then); got != tt.want {
				t.Errorf("DaysBetween = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDirectionOptionTypeFor(t *testing.T) {
	if got := DirectionBullish.OptionTypeFor(); got != OptionTypeCall {
		t.Errorf("bullish maps to %s, want call", got)
	}
	if got := DirectionBearish.OptionTypeFor(); got != OptionTypePut {
		t.Errorf("bearish maps to %s, want put", got)
	}
}
