package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Class tells Do how to treat a failed attempt.
type Class int

const (
	Retryable Class = iota
	RateLimited
	Fatal
)

// Policy is the backoff policy shared by every fetcher.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      time.Duration
	// RateLimitDelay is the fixed wait after a RateLimited attempt.
	RateLimitDelay time.Duration

	// Classify decides whether an error is retryable. Nil retries everything.
	Classify func(error) Class

	// OnRetry is called before each wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Default mirrors the fetcher settings used in production.
func Default() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Jitter:         100 * time.Millisecond,
		RateLimitDelay: 3 * time.Second,
	}
}

// Do calls fn until it succeeds, a Fatal error occurs, attempts run out or
// ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 5 * time.Second
	}
	if p.RateLimitDelay <= 0 {
		p.RateLimitDelay = p.MaxDelay
	}

	classify := p.Classify
	if classify == nil {
		classify = func(error) Class { return Retryable }
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		class := classify(err)
		if class == Fatal {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		wait := p.backoff(attempt)
		if class == RateLimited {
			wait = p.RateLimitDelay
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr == nil {
		lastErr = errors.New("retry: exhausted with no error")
	}
	return lastErr
}

func (p Policy) backoff(attempt int) time.Duration {
	wait := p.BaseDelay << (attempt - 1)
	if wait > p.MaxDelay || wait <= 0 {
		wait = p.MaxDelay
	}
	if p.Jitter > 0 {
		wait += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	return wait
}
