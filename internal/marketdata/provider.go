// Package marketdata provides the option-chain and quote data source for the
// bot: an HTTP client for a Tradier-style market-data API, resilience
// decorators (retry, circuit breaker), and the filtering engine that turns a
// raw chain into tradeable contracts.
package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/mholloway/rtx-paperbot/internal/models"
)

// Provider defines the market-data operations the bot consumes.
type Provider interface {
	// GetUnderlyingQuote returns the current market for the underlying equity.
	GetUnderlyingQuote(ctx context.Context, symbol string) (*models.Quote, error)
	// GetExpirations returns available expiration dates as YYYY-MM-DD strings.
	GetExpirations(ctx context.Context, symbol string) ([]string, error)
	// GetOptionChain returns every contract for one expiration, with Greeks.
	GetOptionChain(ctx context.Context, symbol, expiration string) ([]models.OptionContract, error)
}

// CircuitBreakerProvider wraps a Provider with circuit breaker protection so
// a failing data source trips fast instead of stalling every cycle.
type CircuitBreakerProvider struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
}

// Ensure CircuitBreakerProvider implements Provider at compile time.
var _ Provider = (*CircuitBreakerProvider)(nil)

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerProvider creates a CircuitBreakerProvider with defaults
// tuned for a polling bot: trip on 60% failures, stay open for 30 seconds.
func NewCircuitBreakerProvider(provider Provider, logger *logrus.Logger) *CircuitBreakerProvider {
	return NewCircuitBreakerProviderWithSettings(provider, logger, CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	})
}

// NewCircuitBreakerProviderWithSettings creates a CircuitBreakerProvider with custom settings.
func NewCircuitBreakerProviderWithSettings(provider Provider, logger *logrus.Logger,
	settings CircuitBreakerSettings) *CircuitBreakerProvider {
	gbSettings := gobreaker.Settings{
		Name:        "MarketDataCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name, "from": from.String(), "to": to.String(),
			}).Warn("circuit breaker state changed")
		},
	}

	return &CircuitBreakerProvider{
		provider: provider,
		breaker:  gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// execBreaker is a generic helper for circuit breaker wrapper methods.
func execBreaker[T any](breaker *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// GetUnderlyingQuote wraps the underlying provider call with the circuit breaker.
func (c *CircuitBreakerProvider) GetUnderlyingQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	return execBreaker(c.breaker, func() (*models.Quote, error) {
		return c.provider.GetUnderlyingQuote(ctx, symbol)
	})
}

// GetExpirations wraps the underlying provider call with the circuit breaker.
func (c *CircuitBreakerProvider) GetExpirations(ctx context.Context, symbol string) ([]string, error) {
	return execBreaker(c.breaker, func() ([]string, error) {
		return c.provider.GetExpirations(ctx, symbol)
	})
}

// GetOptionChain wraps the underlying provider call with the circuit breaker.
func (c *CircuitBreakerProvider) GetOptionChain(ctx context.Context, symbol, expiration string) ([]models.OptionContract, error) {
	return execBreaker(c.breaker, func() ([]models.OptionContract, error) {
		return c.provider.GetOptionChain(ctx, symbol, expiration)
	})
}
