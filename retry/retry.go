// Package retry runs an operation with exponential, capped and jittered backoff.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Config describes a retry policy.
type Config struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterFactor      float64 // Fraction of the delay, clamped to [0, 1]
}

// Default returns the default policy: 3 attempts, 1s initial delay doubling up
// to 60s, with 10% jitter.
func Default() Config {
	return Config{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		MaxDelay:          60 * time.Second,
		BackoffMultiplier: 2,
		JitterFactor:      0.1,
	}
}

// None returns a policy that makes exactly one attempt.
func None() Config {
	return Config{MaxAttempts: 1}
}

// Delay returns the wait before retry number attempt (zero-based).
func (c Config) Delay(attempt int) time.Duration {
	base := float64(c.InitialDelay) * math.Pow(c.multiplier(), float64(attempt))
	if c.MaxDelay > 0 {
		base = math.Min(base, float64(c.MaxDelay))
	}

	jitter := min(max(c.JitterFactor, 0), 1)
	spread := base * jitter
	d := base + rand.Float64()*spread - spread/2
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}

func (c Config) multiplier() float64 {
	if c.BackoffMultiplier <= 0 {
		return 1
	}
	return c.BackoffMultiplier
}

// Do runs op until it succeeds, the attempts are exhausted, shouldRetry
// reports false for the returned error, or ctx is done. A nil shouldRetry
// retries every error. The last error is returned.
func Do(ctx context.Context, cfg Config, shouldRetry func(error) bool, op func(ctx context.Context) error) error {
	attempts := max(cfg.MaxAttempts, 1)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(cfg.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}
	}
	return lastErr
}

// StatusError is implemented by errors that carry an HTTP status code.
type StatusError interface {
	error
	HTTPStatus() int
}

// IsRetryable reports whether err is worth another attempt: transport errors
// and timeouts are, as are 429 and 5xx responses. Context cancellation and
// other HTTP statuses are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se StatusError
	if errors.As(err, &se) {
		code := se.HTTPStatus()
		return code == 429 || code >= 500
	}
	var nonRetryable interface{ Permanent() bool }
	if errors.As(err, &nonRetryable) && nonRetryable.Permanent() {
		return false
	}
	return true
}
