package marketdata

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mholloway/rtx-paperbot/internal/models"
)

// RetryConfig controls the backoff schedule for transient data-source errors.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig matches a polling bot's tolerance: a few quick retries,
// never more than a handful of seconds blocked inside one cycle.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:     2,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     5 * time.Second,
}

// RetryProvider decorates a Provider with retry-on-transient-error behavior.
type RetryProvider struct {
	provider Provider
	logger   *logrus.Logger
	config   RetryConfig
}

// Ensure RetryProvider implements Provider at compile time.
var _ Provider = (*RetryProvider)(nil)

// NewRetryProvider wraps a provider with the given retry configuration.
func NewRetryProvider(provider Provider, logger *logrus.Logger, config ...RetryConfig) *RetryProvider {
	cfg := DefaultRetryConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	return &RetryProvider{provider: provider, logger: logger, config: cfg}
}

// GetUnderlyingQuote retries the wrapped call on transient errors.
func (r *RetryProvider) GetUnderlyingQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	return withRetry(ctx, r, "quote "+symbol, func() (*models.Quote, error) {
		return r.provider.GetUnderlyingQuote(ctx, symbol)
	})
}

// GetExpirations retries the wrapped call on transient errors.
func (r *RetryProvider) GetExpirations(ctx context.Context, symbol string) ([]string, error) {
	return withRetry(ctx, r, "expirations "+symbol, func() ([]string, error) {
		return r.provider.GetExpirations(ctx, symbol)
	})
}

// GetOptionChain retries the wrapped call on transient errors.
func (r *RetryProvider) GetOptionChain(ctx context.Context, symbol, expiration string) ([]models.OptionContract, error) {
	return withRetry(ctx, r, "chain "+symbol+" "+expiration, func() ([]models.OptionContract, error) {
		return r.provider.GetOptionChain(ctx, symbol, expiration)
	})
}

func withRetry[T any](ctx context.Context, r *RetryProvider, op string, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	backoff := r.config.InitialBackoff

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s canceled: %w", op, ctx.Err())
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isTransientError(err) || attempt == r.config.MaxRetries {
			break
		}

		r.logger.WithError(err).WithFields(logrus.Fields{
			"op": op, "attempt": attempt + 1, "backoff": backoff,
		}).Warn("transient market data error, retrying")

		select {
		case <-time.After(backoff):
			backoff = nextBackoff(backoff, r.config.MaxBackoff)
		case <-ctx.Done():
			return zero, fmt.Errorf("%s canceled during backoff: %w", op, ctx.Err())
		}
	}

	return zero, lastErr
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * 1.5)
	if backoff > maxBackoff {
		backoff = maxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		if jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter)); err == nil {
			backoff += time.Duration(jitterVal.Int64())
		}
	}
	return backoff
}

// isTransientError classifies errors worth retrying: rate limiting, gateway
// problems, and network-level failures. 4xx API errors (other than 429) are
// permanent and surface immediately.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == 429:
			return true
		case apiErr.Status >= 500:
			return true
		default:
			return false
		}
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"network",
		"dns",
		"tcp",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
