// Package retry re-runs failed probe attempts with a configurable backoff.
//
// Probes use linear backoff by default: the n-th retry waits
// InitDelay*(n+1). Only errors the Retryable predicate accepts are
// retried; anything else, or an error wrapped with Stop, is returned at
// once.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/sensinfor/sensinfor/pkg/duration"
)

// Strategy defines the backoff algorithm.
type Strategy int

const (
	// Linear increases the delay linearly: InitDelay * (attempt+1).
	Linear Strategy = iota
	// Exponential doubles the delay each attempt: InitDelay * 2^attempt.
	Exponential
	// Constant uses the same delay between every attempt.
	Constant
)

func (s Strategy) String() string {
	switch s {
	case Linear:
		return "linear"
	case Exponential:
		return "exponential"
	case Constant:
		return "constant"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// ParseStrategy maps a config string to a Strategy.
func ParseStrategy(v string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "linear":
		return Linear, nil
	case "exponential":
		return Exponential, nil
	case "constant":
		return Constant, nil
	}
	return Linear, fmt.Errorf("retry: unknown strategy %q", v)
}

// Config controls retry behaviour.
type Config struct {
	MaxAttempts int           // total attempts including the first; 0 means never call fn
	InitDelay   time.Duration // base delay before the first retry
	MaxDelay    time.Duration // cap on any single delay; 0 means no cap
	Strategy    Strategy
	Jitter      bool // ±25% random jitter

	// Retryable decides whether an error is worth another attempt.
	// Nil retries every error.
	Retryable func(error) bool

	// OnRetry is called before each sleep with the failed attempt
	// (0-indexed), its error and the upcoming delay.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// ForProbes returns the probe retry policy: retries extra attempts after
// the first, linear backoff from delay, no jitter.
func ForProbes(retries int, delay time.Duration) Config {
	if retries < 0 {
		retries = 0
	}
	return Config{
		MaxAttempts: retries + 1,
		InitDelay:   delay,
		MaxDelay:    duration.RetryMaxDelay,
		Strategy:    Linear,
	}
}

// StopError wraps an error to signal that retrying should stop.
type StopError struct {
	Err error
}

func (e *StopError) Error() string { return e.Err.Error() }
func (e *StopError) Unwrap() error { return e.Err }

// Stop wraps err so that Do returns it without further retries.
func Stop(err error) error {
	return &StopError{Err: err}
}

// sleeper lets tests observe delays without waiting.
type sleeper interface {
	sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do executes fn up to cfg.MaxAttempts times and returns nil on the first
// success, or the last error. Cancellation of ctx returns ctx.Err().
func Do(ctx context.Context, cfg Config, fn func() error) error {
	return doWithSleeper(ctx, cfg, fn, realSleeper{})
}

func doWithSleeper(ctx context.Context, cfg Config, fn func() error, s sleeper) error {
	if cfg.MaxAttempts <= 0 {
		return nil
	}

	var lastErr error
	for attempt := range cfg.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var stop *StopError
		if errors.As(lastErr, &stop) {
			return stop.Err
		}
		if cfg.Retryable != nil && !cfg.Retryable(lastErr) {
			return lastErr
		}

		if attempt < cfg.MaxAttempts-1 {
			delay := CalcDelay(cfg, attempt)
			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt, lastErr, delay)
			}
			if err := s.sleep(ctx, delay); err != nil {
				return err
			}
		}
	}
	return lastErr
}

// CalcDelay computes the sleep duration after the given failed attempt
// (0-indexed).
func CalcDelay(cfg Config, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	var delay time.Duration
	switch cfg.Strategy {
	case Linear:
		delay = cfg.InitDelay * time.Duration(attempt+1)
	case Exponential:
		delay = cfg.InitDelay
		for i := 0; i < attempt; i++ {
			if cfg.MaxDelay > 0 && delay >= cfg.MaxDelay {
				break
			}
			if delay > time.Duration(1<<62)/2 {
				break
			}
			delay *= 2
		}
	case Constant:
		delay = cfg.InitDelay
	}
	if delay < 0 {
		delay = 0
	}
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter && delay > 0 {
		quarter := int64(delay) / 4
		if quarter > 0 {
			j := time.Duration(rand.Int64N(quarter))
			if rand.IntN(2) == 0 {
				delay += j
			} else {
				delay -= j
			}
		}
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return delay
}
