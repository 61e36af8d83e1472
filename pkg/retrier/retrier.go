package retrier

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultInitialInterval = 1 * time.Second
	defaultMaxInterval     = 30 * time.Second
	defaultMultiplier      = 2.0
	defaultMaxRetries      = 5
	defaultJitter          = 0.1
)

// Unlimited retry count that never gives up until the context is done.
const Unlimited = -1

// ErrExhausted the retry budget is used up.
var ErrExhausted = errors.New("retries exhausted")

// Retrier implements exponential backoff with jitter.
type Retrier struct {
	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64
	maxRetries      int
	jitter          float64
	onRetry         func(attempt int, err error, wait time.Duration)
}

// Option defines a function to configure the Retrier.
type Option func(*Retrier)

// WithInitialInterval sets the initial retry interval.
func WithInitialInterval(d time.Duration) Option {
	return func(r *Retrier) {
		r.initialInterval = d
	}
}

// WithMaxInterval sets the maximum retry interval.
func WithMaxInterval(d time.Duration) Option {
	return func(r *Retrier) {
		r.maxInterval = d
	}
}

// WithMultiplier sets the backoff multiplier.
func WithMultiplier(m float64) Option {
	return func(r *Retrier) {
		r.multiplier = m
	}
}

// WithMaxRetries sets the maximum number of retries. Unlimited retries forever.
func WithMaxRetries(n int) Option {
	return func(r *Retrier) {
		r.maxRetries = n
	}
}

// WithJitter sets the jitter factor (0.0 to 1.0).
func WithJitter(j float64) Option {
	return func(r *Retrier) {
		r.jitter = j
	}
}

// WithOnRetry registers a hook called before every wait.
func WithOnRetry(fn func(attempt int, err error, wait time.Duration)) Option {
	return func(r *Retrier) {
		r.onRetry = fn
	}
}

// New creates a new Retrier with default values and optional overrides.
func New(opts ...Option) *Retrier {
	r := &Retrier{
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		multiplier:      defaultMultiplier,
		maxRetries:      defaultMaxRetries,
		jitter:          defaultJitter,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Delay returns the un-jittered wait before the given retry (1-based).
func (r *Retrier) Delay(retry int) time.Duration {
	interval := r.initialInterval
	for i := 1; i < retry; i++ {
		interval = time.Duration(float64(interval) * r.multiplier)
		if interval > r.maxInterval {
			return r.maxInterval
		}
	}
	return interval
}

// Wait sleeps before the given retry (1-based) for its jittered delay. It
// returns ErrExhausted when the retry is over budget and ctx.Err() when ctx
// ends first. cause is passed to the OnRetry hook.
func (r *Retrier) Wait(ctx context.Context, retry int, cause error) error {
	if r.maxRetries >= 0 && retry > r.maxRetries {
		return ErrExhausted
	}

	interval := r.Delay(retry)
	jitter := (rand.Float64()*2 - 1) * r.jitter * float64(interval)
	sleepDuration := time.Duration(float64(interval) + jitter)
	if sleepDuration < 0 {
		sleepDuration = 0
	}

	if r.onRetry != nil {
		r.onRetry(retry, cause, sleepDuration)
	}

	timer := time.NewTimer(sleepDuration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do executes the given function with retries.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if waitErr := r.Wait(ctx, attempt, err); waitErr != nil {
				if errors.Is(waitErr, ErrExhausted) {
					return err
				}
				return waitErr
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
