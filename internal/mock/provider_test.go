package mock

import (
	"context"
	"testing"
	"time"

	"github.com/mholloway/rtx-paperbot/internal/models"
)

func TestGetUnderlyingQuote(t *testing.T) {
	p := NewProvider("RTX")
	ctx := context.Background()

	quote, err := p.GetUnderlyingQuote(ctx, "RTX")
	if err != nil {
		t.Fatalf("GetUnderlyingQuote: %v", err)
	}
	if quote.Symbol != "RTX" {
		t.Errorf("symbol = %s", quote.Symbol)
	}
	if quote.Bid <= 0 || quote.Ask <= quote.Bid {
		t.Errorf("market = %.2f/%.2f", quote.Bid, quote.Ask)
	}
	if quote.Last < 100 || quote.Last > 160 {
		t.Errorf("last %.2f outside plausible band", quote.Last)
	}
}

func TestGetExpirationsAreFridays(t *testing.T) {
	p := NewProvider("RTX")

	expirations, err := p.GetExpirations(context.Background(), "RTX")
	if err != nil {
		t.Fatalf("GetExpirations: %v", err)
	}
	if len(expirations) != 6 {
		t.Fatalf("expirations = %d, want 6", len(expirations))
	}
	for _, e := range expirations {
		d, err := time.Parse("2006-01-02", e)
		if err != nil {
			t.Fatalf("unparseable expiration %q: %v", e, err)
		}
		if d.Weekday() != time.Friday {
			t.Errorf("expiration %s is a %s, want Friday", e, d.Weekday())
		}
	}
}

func TestGetOptionChain(t *testing.T) {
	p := NewProvider("RTX")
	ctx := context.Background()

	expirations, err := p.GetExpirations(ctx, "RTX")
	if err != nil {
		t.Fatalf("GetExpirations: %v", err)
	}
	contracts, err := p.GetOptionChain(ctx, "RTX", expirations[2])
	if err != nil {
		t.Fatalf("GetOptionChain: %v", err)
	}
	if len(contracts) == 0 {
		t.Fatal("empty chain")
	}

	calls, puts := 0, 0
	for i := range contracts {
		c := &contracts[i]
		switch c.OptionType {
		case models.OptionTypeCall:
			calls++
		case models.OptionTypePut:
			puts++
		default:
			t.Fatalf("bad option type %q", c.OptionType)
		}

		if c.Bid < 0 || c.Ask <= 0 || c.Ask < c.Bid {
			t.Errorf("%s has crossed or empty market %.2f/%.2f", c.Symbol, c.Bid, c.Ask)
		}
		if c.Volume <= 0 || c.OpenInterest <= 0 {
			t.Errorf("%s has no liquidity", c.Symbol)
		}
		if c.Greeks.MidIV <= 0 {
			t.Errorf("%s has no implied volatility", c.Symbol)
		}

		// Symbols round-trip through the OCC parser.
		underlying, exp, optType, strike, err := models.ParseContractSymbol(c.Symbol)
		if err != nil {
			t.Fatalf("ParseContractSymbol(%s): %v", c.Symbol, err)
		}
		if underlying != "RTX" || optType != c.OptionType || strike != c.Strike {
			t.Errorf("symbol %s does not match contract %+v", c.Symbol, c)
		}
		if exp.Format("2006-01-02") != expirations[2] {
			t.Errorf("symbol %s expiration mismatch", c.Symbol)
		}
	}
	if calls == 0 || puts == 0 {
		t.Errorf("chain one-sided: %d calls, %d puts", calls, puts)
	}
}

func TestGetOptionChainRejectsBadExpiration(t *testing.T) {
	p := NewProvider("RTX")
	if _, err := p.GetOptionChain(context.Background(), "RTX", "03/20/2026"); err == nil {
		t.Error("expected error for bad expiration format")
	}
}
