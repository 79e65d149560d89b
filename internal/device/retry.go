package device

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openacoustics/audiomoth-configurator/internal/config"
)

// RetryPolicy bounds the attempts made for one HID operation.
type RetryPolicy struct {
	Attempts int
	Interval time.Duration

	// Rand and Sleep default to math/rand and time.Sleep.
	Rand  func() float64
	Sleep func(time.Duration)
}

// DefaultRetryPolicy makes ten attempts around a 100ms base interval.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 10, Interval: 100 * time.Millisecond}
}

// NewRetryPolicy builds a policy from configuration.
func NewRetryPolicy(cfg *config.RetryConfig) RetryPolicy {
	return RetryPolicy{Attempts: cfg.Attempts, Interval: cfg.Interval}
}

// Backoff returns a jittered delay between half and one interval.
func (p RetryPolicy) Backoff() time.Duration {
	rnd := p.Rand
	if rnd == nil {
		rnd = rand.Float64
	}
	half := float64(p.Interval) / 2
	return time.Duration(half + half*rnd())
}

func (p RetryPolicy) sleep(d time.Duration) {
	if p.Sleep != nil {
		p.Sleep(d)
		return
	}
	time.Sleep(d)
}

// Retry runs fn until it succeeds or the policy is exhausted. A transport
// reporting ErrNoDevice ends the sequence at once with a ConnectionError.
// Exhaustion returns an UnreachableError wrapping the last failure. The
// sequence always runs to completion; ctx is only handed to fn.
func Retry[T any](ctx context.Context, p RetryPolicy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				log.Debug().Str("op", op).Int("attempt", attempt).Msg("HID operation recovered")
			}
			return v, nil
		}
		if errors.Is(err, ErrNoDevice) {
			return zero, &ConnectionError{Op: op, Err: err}
		}

		last = err
		if attempt < attempts {
			p.sleep(p.Backoff())
		}
	}

	return zero, &UnreachableError{Op: op, Attempts: attempts, Err: last}
}
