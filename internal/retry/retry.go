// Package retry wraps remote calls with classification-aware retry and backoff.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/naka-gawa/github-contrib/internal/apperror"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = time.Second
)

// Retrier retries rate-limited and transient failures with exponential backoff
// plus up to one second of random jitter. Other failures are returned at once.
type Retrier struct {
	maxAttempts int
	baseDelay   time.Duration
	logger      logrus.FieldLogger

	// sleep and jitter are replaced in tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
}

type Option func(*Retrier)

func WithMaxAttempts(n int) Option {
	return func(r *Retrier) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(r *Retrier) {
		if d > 0 {
			r.baseDelay = d
		}
	}
}

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Retrier) { r.sleep = sleep }
}

func WithJitter(jitter func() time.Duration) Option {
	return func(r *Retrier) { r.jitter = jitter }
}

// New creates a Retrier with five attempts and a one second base delay unless overridden.
func New(logger logrus.FieldLogger, opts ...Option) *Retrier {
	r := &Retrier{
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		logger:      logger,
		sleep:       sleepContext,
		jitter: func() time.Duration {
			return time.Duration(rand.Float64() * float64(time.Second))
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do runs op until it succeeds, fails with a non-retryable error, or the attempt
// budget is spent. The last error is returned unchanged.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		kind := apperror.KindOf(err)
		if !kind.Retryable() || attempt == r.maxAttempts-1 {
			return err
		}

		delay := r.Delay(attempt)
		if hint := apperror.RetryAfterOf(err); hint > delay {
			delay = hint
		}
		r.logger.WithFields(logrus.Fields{
			"op":      op,
			"kind":    kind.String(),
			"attempt": attempt + 1,
			"delay":   delay.Round(time.Millisecond).String(),
		}).WithError(err).Warn("remote call failed, backing off")

		if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
			return err
		}
	}
	return err
}

// Delay returns the wait before retrying after the given zero-based attempt.
func (r *Retrier) Delay(attempt int) time.Duration {
	return r.baseDelay*time.Duration(1<<uint(attempt)) + r.jitter()
}

// MaxAttempts is the total number of attempts, including the first.
func (r *Retrier) MaxAttempts() int {
	return r.maxAttempts
}

// Value is Do for operations that return a result.
func Value[T any](ctx context.Context, r *Retrier, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
