package retry

import (
	"context"
	"errors"
	"time"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/logging"
	retrygo "github.com/avast/retry-go/v4"
)

// Timer is the clock the controller sleeps on; tests substitute one that fires at once.
type Timer = retrygo.Timer

type realTimer struct{}

func (realTimer) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

type Controller struct {
	policy Policy
	timer  Timer
	rnd    func() float64
}

type Option func(*Controller)

func WithTimer(t Timer) Option {
	return func(c *Controller) {
		if t != nil {
			c.timer = t
		}
	}
}

// WithRand replaces the jitter source.
func WithRand(rnd func() float64) Option {
	return func(c *Controller) {
		c.rnd = rnd
	}
}

func NewController(policy Policy, opts ...Option) (*Controller, error) {
	err := policy.Validate()
	if err != nil {
		return nil, failure.New(failure.KindConfiguration, "retry.NewController", err)
	}
	c := &Controller{
		policy: policy,
		timer:  realTimer{},
		rnd:    defaultRand,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Controller) Policy() Policy {
	return c.policy
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the attempt budget
// is spent. fn receives the 1-based attempt number. The returned error is always a
// *failure.Error carrying the attempt count. A context that is cancelled, or whose
// deadline would pass during the next wait, ends the loop without sleeping.
func Do[T any](ctx context.Context, c *Controller, fn func(ctx context.Context, attempt int) (T, error)) (T, int, error) {
	log := logging.NewLogger(ctx)

	attempt := 0
	var lastRaw error
	var nextDelay time.Duration

	out, err := retrygo.DoWithData(
		func() (T, error) {
			attempt++
			v, err := fn(ctx, attempt)
			lastRaw = err
			return v, err
		},
		retrygo.Context(ctx),
		retrygo.Attempts(uint(c.policy.MaxAttempts)),
		retrygo.LastErrorOnly(true),
		retrygo.WithTimer(c.timer),
		retrygo.RetryIf(func(err error) bool {
			classified := failure.Classify(err)
			if !classified.Kind.Retryable() {
				log.Warnf("attempt %d failed with fatal %s: %v", attempt, classified.Kind, err)
				return false
			}
			if attempt >= c.policy.MaxAttempts {
				return false
			}
			nextDelay = c.policy.backoffFor(classified.Kind).Delay(attempt, c.rnd)
			if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < nextDelay {
				log.Warnf("attempt %d failed and deadline leaves no room for a %s backoff: %v", attempt, nextDelay, err)
				return false
			}
			log.Warnf("attempt %d/%d failed with %s, retrying in %s: %v", attempt, c.policy.MaxAttempts, classified.Kind, nextDelay, err)
			return true
		}),
		retrygo.DelayType(func(_ uint, _ error, _ *retrygo.Config) time.Duration {
			return nextDelay
		}),
	)
	if err == nil {
		return out, attempt, nil
	}

	var zero T
	if lastRaw == nil || !errors.Is(err, lastRaw) {
		// Interrupted before an attempt finished or while waiting between attempts.
		result := &failure.Error{Kind: failure.KindCanceled, Attempts: attempt, Err: err}
		if lastRaw != nil {
			result.Err = errors.Join(err, lastRaw)
		}
		log.Warnf("retry loop interrupted after %d attempt(s): %v", attempt, err)
		return zero, attempt, result
	}

	result := *failure.Classify(lastRaw)
	result.Attempts = attempt
	return zero, attempt, &result
}
