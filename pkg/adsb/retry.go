package adsb

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// RetryConfig controls how feed calls are retried. Delays grow as
// InitialDelay * Multiplier^attempt, capped at MaxDelay.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// RespectRetryAfter waits for the server's Retry-After on a 429
	// instead of the computed backoff.
	RespectRetryAfter bool

	// Logger receives throttling notices. Nil disables them.
	Logger *slog.Logger
}

// DefaultRetryConfig is three retries starting at one second and doubling.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialDelay:      time.Second,
		MaxDelay:          time.Minute,
		Multiplier:        2.0,
		RespectRetryAfter: true,
	}
}

// RetryWithBackoff is RetryWithBackoffResult for calls without a result.
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithBackoffResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithBackoffResult calls fn until it succeeds, MaxRetries retries
// have failed, or ctx is done. On failure the last result and error are
// returned, the error wrapped.
func RetryWithBackoffResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var (
		res T
		err error
	)
	for attempt := 0; ; attempt++ {
		if res, err = fn(); err == nil {
			return res, nil
		}
		if attempt >= cfg.MaxRetries {
			return res, fmt.Errorf("adsb: gave up after %d retries: %w", cfg.MaxRetries, err)
		}
		if werr := sleep(ctx, cfg.delayAfter(attempt, err)); werr != nil {
			return res, fmt.Errorf("adsb: retry cancelled: %w", werr)
		}
	}
}

func (c RetryConfig) backoff(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if d > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

// delayAfter is the wait before retrying a call that failed with err.
func (c RetryConfig) delayAfter(attempt int, err error) time.Duration {
	delay := c.backoff(attempt)
	te, ok := AsThrottled(err)
	if !ok {
		return delay
	}
	if c.RespectRetryAfter && te.RetryAfter > 0 {
		delay = te.RetryAfter
	}
	if c.Logger != nil && te.Quota.Remaining >= 0 {
		c.Logger.Warn("adsb feed throttled",
			"remaining", te.Quota.Remaining,
			"limit", te.Quota.Limit,
			"reset", te.Quota.Reset,
			"retry_in", delay)
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
