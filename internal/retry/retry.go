// Package retry runs an operation a bounded number of times with backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/noticewatch/internal/notice"
)

// Backoff returns the wait before the attempt after attempt (1-based).
type Backoff func(attempt int) time.Duration

// Linear waits base × attempt.
func Linear(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt)
	}
}

// Fixed always waits d.
func Fixed(d time.Duration) Backoff {
	return func(int) time.Duration {
		return d
	}
}

// Policy bounds the attempts of an operation.
type Policy struct {
	MaxAttempts int
	Backoff     Backoff
	// Retryable decides whether err deserves another attempt. Nil retries
	// transient errors only.
	Retryable func(err error) bool
	Sleep     notice.Sleeper
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempts are exhausted. fn receives the 1-based attempt number.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = notice.IsTransient
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = notice.Sleep
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return errors.Join(err, ctx.Err())
		}
		if !retryable(err) || attempt == attempts {
			break
		}
		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if sleepErr := sleep(ctx, wait); sleepErr != nil {
			return fmt.Errorf("retry wait: %w", sleepErr)
		}
	}
	return err
}
