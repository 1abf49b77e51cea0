// Package utils holds small helpers shared by the gateway's background work
package utils

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig controls RetryWithBackoff
type RetryConfig struct {
	// MaxAttempts counts the first attempt. Zero retries until the context ends.
	MaxAttempts int

	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// JitterFactor adds up to this fraction of the delay, 0.1 meaning 10%
	JitterFactor float64

	// RetryableErrors reports whether err warrants another attempt. Nil retries everything.
	RetryableErrors func(error) bool
	// OnRetry is called before each wait with the failed attempt number and error
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig returns 3 attempts starting at 1s, doubling up to 30s with 10% jitter
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.1,
	}
}

// RetryWithBackoff calls fn until it succeeds, returns a non-retryable error,
// runs out of attempts or ctx is done.
func RetryWithBackoff(ctx context.Context, config RetryConfig, fn func() error) error {
	delay := config.InitialDelay
	var lastErr error

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if config.RetryableErrors != nil && !config.RetryableErrors(err) {
			return err
		}
		if config.MaxAttempts > 0 && attempt >= config.MaxAttempts {
			return fmt.Errorf("max retries exceeded: %w", lastErr)
		}

		wait := withJitter(delay, config.JitterFactor)
		if config.OnRetry != nil {
			config.OnRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}

		delay = nextDelay(delay, config)
	}
}

func nextDelay(delay time.Duration, config RetryConfig) time.Duration {
	if config.BackoffFactor > 1 {
		delay = time.Duration(float64(delay) * config.BackoffFactor)
	}
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	return delay
}

func withJitter(delay time.Duration, factor float64) time.Duration {
	if factor <= 0 || delay <= 0 {
		return delay
	}
	span := int64(float64(delay) * factor)
	if span <= 0 {
		return delay
	}
	return delay + time.Duration(rand.Int63n(span))
}
