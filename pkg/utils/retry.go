// Package utils provides shared helpers that are not tied to the ledger domain.
package utils

import (
	"context"
	"math"
	"time"
)

// RetryConfig controls how often and how patiently an operation is retried.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Retryable reports whether err is worth another attempt. Nil retries every error.
	Retryable func(err error) bool
}

// DefaultRetryConfig returns the settings used when connecting to a database
// that may still be starting.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Retry runs fn until it succeeds, the attempts run out, a non-retryable
// error is returned or ctx is done.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult is Retry for functions that produce a value.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	attempts := max(cfg.MaxAttempts, 1)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return zero, err
		}
		if attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(CalculateBackoff(attempt, cfg.InitialDelay, cfg.MaxDelay, cfg.BackoffFactor))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, lastErr
}

// CalculateBackoff returns the wait before retry number attempt+1.
func CalculateBackoff(attempt int, initialDelay, maxDelay time.Duration, factor float64) time.Duration {
	if factor < 1 {
		factor = 1
	}
	delay := float64(initialDelay) * math.Pow(factor, float64(attempt))
	if maxDelay > 0 && delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	return time.Duration(delay)
}
