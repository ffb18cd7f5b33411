package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Policy describes an exponential backoff schedule
type Policy struct {
	// MaxAttempts counts the first try; values below 1 mean a single attempt
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// JitterFactor spreads each interval by ±factor
	JitterFactor float64
}

// DefaultPolicy returns 4 attempts at 200ms, 400ms, 800ms
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     4,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.1,
	}
}

// Operation is retried until it succeeds, returns a permanent error, or
// the policy runs out of attempts
type Operation func(ctx context.Context) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// ExhaustedError is returned once every attempt failed
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Notify is called before sleeping between attempts
type Notify func(attempt int, err error, wait time.Duration)

// Do runs op under policy p
func Do(ctx context.Context, p Policy, op Operation) error {
	return DoNotify(ctx, p, op, nil)
}

// DoNotify runs op under policy p and reports each failed attempt
func DoNotify(ctx context.Context, p Policy, op Operation, notify Notify) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return fmt.Errorf("%w (last error: %v)", err, last)
			}
			return err
		}

		last = op(ctx)
		if last == nil {
			return nil
		}
		if IsPermanent(last) {
			return errors.Unwrap(last)
		}
		if attempt == attempts {
			break
		}

		wait := p.Backoff(attempt)
		if notify != nil {
			notify(attempt, last, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), last)
		case <-timer.C:
		}
	}

	return &ExhaustedError{Attempts: attempts, Last: last}
}

// Backoff returns the wait after the given 1-based attempt
func (p Policy) Backoff(attempt int) time.Duration {
	initial := p.InitialInterval
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2.0
	}

	interval := float64(initial) * math.Pow(mult, float64(attempt-1))
	if j := math.Min(math.Max(p.JitterFactor, 0), 1); j > 0 {
		interval += (rand.Float64()*2 - 1) * interval * j
	}
	if p.MaxInterval > 0 && interval > float64(p.MaxInterval) {
		interval = float64(p.MaxInterval)
	}
	if interval < 0 {
		interval = float64(initial)
	}
	return time.Duration(interval)
}
