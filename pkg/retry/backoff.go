// Package retry bounds and paces repeated extraction attempts.
package retry

import (
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
)

const DefaultMaxAttempts = 3

// Backoff computes the wait after a failed attempt: Base * Multiplier^(attempt-1),
// plus up to Jitter of that value, capped at Max when Max is set.
type Backoff struct {
	Base       time.Duration
	Multiplier float64
	Jitter     float64
	Max        time.Duration
}

// Delay returns the wait after failed attempt number attempt (1-based). rnd supplies
// the jitter fraction in [0,1); nil means no jitter.
func (b Backoff) Delay(attempt int, rnd func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.Base) * math.Pow(b.Multiplier, float64(attempt-1))
	if b.Jitter > 0 && rnd != nil {
		d += d * b.Jitter * rnd()
	}
	if b.Max > 0 && d > float64(b.Max) {
		return b.Max
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

func (b Backoff) validate() error {
	if b.Base <= 0 {
		return errors.New("backoff base must be positive")
	}
	if b.Multiplier <= 1 {
		return errors.New("backoff multiplier must be greater than 1")
	}
	// Keeps successive delays strictly increasing even with maximum jitter.
	if b.Jitter < 0 || b.Jitter >= b.Multiplier-1 {
		return errors.New("backoff jitter must be in [0, multiplier-1)")
	}
	return nil
}

// Policy picks the backoff for a failure by kind. Kinds missing from ByKind use Default.
type Policy struct {
	MaxAttempts int
	Default     Backoff
	ByKind      map[failure.Kind]Backoff
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Default:     Backoff{Base: time.Second, Multiplier: 2},
		ByKind: map[failure.Kind]Backoff{
			failure.KindThrottled: {Base: 5 * time.Second, Multiplier: 2},
		},
	}
}

func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return errors.New("max attempts must be at least 1")
	}
	err := p.Default.validate()
	if err != nil {
		return err
	}
	for _, b := range p.ByKind {
		err = b.validate()
		if err != nil {
			return err
		}
	}
	return nil
}

func (p Policy) backoffFor(kind failure.Kind) Backoff {
	if b, ok := p.ByKind[kind]; ok {
		return b
	}
	return p.Default
}

func defaultRand() float64 {
	return rand.Float64()
}
