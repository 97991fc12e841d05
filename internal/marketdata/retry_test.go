package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mholloway/rtx-paperbot/internal/models"
)

// flakyProvider fails a set number of times before succeeding.
type flakyProvider struct {
	failures int
	err      error
	calls    int
	quote    *models.Quote
}

var _ Provider = (*flakyProvider)(nil)

func (f *flakyProvider) GetUnderlyingQuote(_ context.Context, _ string) (*models.Quote, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return f.quote, nil
}

func (f *flakyProvider) GetExpirations(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func (f *flakyProvider) GetOptionChain(_ context.Context, _, _ string) ([]models.OptionContract, error) {
	return nil, nil
}

func fastRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestRetryRecoversFromTransientError(t *testing.T) {
	provider := &flakyProvider{
		failures: 2,
		err:      errors.New("connection refused"),
		quote:    &models.Quote{Symbol: "RTX", Bid: 124.9, Ask: 125.1},
	}
	retrying := NewRetryProvider(provider, quietLogger(), fastRetryConfig())

	quote, err := retrying.GetUnderlyingQuote(context.Background(), "RTX")
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if quote.Symbol != "RTX" {
		t.Errorf("quote = %+v", quote)
	}
	if provider.calls != 3 {
		t.Errorf("calls = %d, want 3", provider.calls)
	}
}

func TestRetryGivesUpAfterMaxRetries(t *testing.T) {
	provider := &flakyProvider{failures: 10, err: errors.New("timeout")}
	retrying := NewRetryProvider(provider, quietLogger(), fastRetryConfig())

	_, err := retrying.GetUnderlyingQuote(context.Background(), "RTX")
	if err == nil {
		t.Fatal("expected failure after exhausting retries")
	}
	if provider.calls != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", provider.calls)
	}
}

func TestRetrySkipsPermanentErrors(t *testing.T) {
	provider := &flakyProvider{
		failures: 10,
		err:      &APIError{Status: 404, Body: "unknown symbol"},
	}
	retrying := NewRetryProvider(provider, quietLogger(), fastRetryConfig())

	_, err := retrying.GetUnderlyingQuote(context.Background(), "XXXX")
	if err == nil {
		t.Fatal("expected immediate failure")
	}
	if provider.calls != 1 {
		t.Errorf("calls = %d, want 1 for a permanent error", provider.calls)
	}
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", &APIError{Status: 429}, true},
		{"server error", &APIError{Status: 502}, true},
		{"not found", &APIError{Status: 404}, false},
		{"unauthorized", &APIError{Status: 401}, false},
		{"timeout string", errors.New("request timeout"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"dns failure", errors.New("dns lookup failed"), true},
		{"validation error", errors.New("invalid symbol"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransientError(tt.err); got != tt.want {
				t.Errorf("isTransientError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNextBackoffBounded(t *testing.T) {
	maxBackoff := 5 * time.Second
	backoff := 500 * time.Millisecond
	for i := 0; i < 20; i++ {
		backoff = nextBackoff(backoff, maxBackoff)
		// Jitter adds at most a quarter on top of the capped base.
		if backoff > maxBackoff+maxBackoff/4 {
			t.Fatalf("backoff %v exceeded cap", backoff)
		}
	}
	if backoff < time.Second {
		t.Errorf("backoff never grew: %v", backoff)
	}
}
