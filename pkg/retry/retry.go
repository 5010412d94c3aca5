package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Config controls exponential backoff. Zero values fall back to defaults.
type Config struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int
	// InitialInterval is the first backoff wait (default 1s).
	InitialInterval time.Duration
	// MaxInterval caps the backoff wait (default 30s).
	MaxInterval time.Duration
	// Multiplier grows the interval per attempt (default 2.0).
	Multiplier float64
	// JitterFactor randomizes the interval by ±factor (default 0.1).
	JitterFactor float64
}

// DefaultConfig backs off 1s, 2s, 4s, 8s, 16s, capped at 30s.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:      5,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.1,
	}
}

func (c *Config) normalized() *Config {
	cfg := *c
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = time.Second
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 30 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.JitterFactor < 0 {
		cfg.JitterFactor = 0
	}
	if cfg.JitterFactor > 1 {
		cfg.JitterFactor = 1
	}
	return &cfg
}

// Operation is the function being retried.
type Operation func(ctx context.Context) error

// PermanentError stops retrying immediately.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks an error as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Result reports how the retry loop ended.
type Result struct {
	// Err is nil on success; otherwise it wraps the last attempt's error.
	Err error
	// Attempts counts every attempt including the first.
	Attempts int
	// LastError is the error from the final failed attempt.
	LastError error
}

// Do runs op with exponential backoff until it succeeds, returns a permanent
// error, the attempts run out, or the context ends.
func Do(ctx context.Context, config *Config, op Operation) *Result {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := config.normalized()
	result := &Result{}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result.Attempts = attempt + 1

		if ctx.Err() != nil {
			result.Err = fmt.Errorf("retry aborted: %w", ctx.Err())
			result.LastError = lastErr
			return result
		}

		err := op(ctx)
		if err == nil {
			return result
		}
		lastErr = err

		var perm *PermanentError
		if errors.As(err, &perm) {
			result.Err = perm.Err
			result.LastError = perm.Err
			return result
		}

		if attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			result.Err = fmt.Errorf("retry aborted: %w", ctx.Err())
			result.LastError = lastErr
			return result
		case <-time.After(cfg.interval(attempt)):
		}
	}

	result.Err = fmt.Errorf("retries exhausted after %d attempts: %w", result.Attempts, lastErr)
	result.LastError = lastErr
	return result
}

// interval is initial * multiplier^attempt with jitter, capped at MaxInterval.
func (c *Config) interval(attempt int) time.Duration {
	interval := float64(c.InitialInterval) * math.Pow(c.Multiplier, float64(attempt))
	if c.JitterFactor > 0 {
		jitter := interval * c.JitterFactor
		interval += (rand.Float64()*2 - 1) * jitter
	}
	if interval > float64(c.MaxInterval) {
		interval = float64(c.MaxInterval)
	}
	if interval < 0 {
		interval = float64(c.InitialInterval)
	}
	return time.Duration(interval)
}
