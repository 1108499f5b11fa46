package infrastructure

import (
	"context"
	"errors"
	"time"

	"funnelreport/internal/domain"

	"github.com/cenkalti/backoff"
)

// retryTransient runs operation until it succeeds, fails with anything other
// than a TransientUpstreamError, or maxRetries retries have been spent.
// The n-th retry waits 2^(n-1) * baseDelay.
func retryTransient(ctx context.Context, operation func() error, maxRetries int, baseDelay time.Duration, notify backoff.Notify) error {
	wrapped := func() error {
		err := operation()
		if err == nil {
			return nil
		}
		var transient *domain.TransientUpstreamError
		if errors.As(err, &transient) {
			return err
		}
		return backoff.Permanent(err)
	}

	return backoff.RetryNotify(wrapped, retryPolicy(ctx, maxRetries, baseDelay), notify)
}

func retryPolicy(ctx context.Context, maxRetries int, baseDelay time.Duration) backoff.BackOff {
	retries := max(maxRetries, 0)

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = baseDelay
	expBackoff.Multiplier = 2
	expBackoff.RandomizationFactor = 0
	expBackoff.MaxInterval = baseDelay << uint(retries)
	expBackoff.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(retries)), ctx)
}
