package retry

import (
	"context"
	"errors"
	"time"

	"github.com/daffatgi02/valo-apps-backend/errs"
)

// Config controls the retry behaviour of [Do].
type Config struct {
	// MaxAttempts is the maximum number of times fn is called (including the
	// first attempt). Values ≤ 1 mean no retries.
	MaxAttempts int

	// BaseDelay is the delay before the first retry. Subsequent retries use
	// exponential back-off: BaseDelay * 2^attempt.
	BaseDelay time.Duration

	// MaxDelay caps the computed back-off delay.
	MaxDelay time.Duration

	// Jitter adds randomness to the delay. A value of 0.2 means ±20 % of
	// the computed delay. Zero disables jitter.
	Jitter float64

	// Retryable decides whether an error is worth another attempt. Nil
	// means [Transient].
	Retryable func(error) bool

	// OnRetry, if set, is called before each wait with the 1-based number
	// of the attempt that failed.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Default is the policy for upstream HTTP calls: three attempts with
// jittered exponential back-off, retrying transient failures only.
func Default() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Jitter:      0.2,
	}
}

// Transient reports whether err is an upstream outage that may clear on its
// own. Auth failures, throttling and bad payloads are not retried, and
// neither is an open circuit.
func Transient(err error) bool {
	return errors.Is(err, errs.ErrUpstreamUnavailable) && !errors.Is(err, errs.ErrCircuitOpen)
}

// Do calls fn up to cfg.MaxAttempts times, retrying only while
// cfg.Retryable accepts the returned error. Between attempts an exponential
// back-off delay (with optional jitter) is applied.
//
// The context is checked before every retry; if ctx is done the function
// returns immediately with the context error.
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(cfg.MaxAttempts, 1)
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = Transient
	}

	for i := range attempts {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if i == attempts-1 || !retryable(err) {
			return zero, err
		}

		delay := backoff(cfg, i)
		if cfg.OnRetry != nil {
			cfg.OnRetry(i+1, err, delay)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, nil
}
