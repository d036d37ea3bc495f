package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// FatalError stops Retry immediately.
type FatalError interface {
	error
	IsFatal() bool
}

type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		MaxElapsedTime:  5 * time.Minute,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = def.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = def.MaxInterval
	}
	if p.Multiplier <= 0 {
		p.Multiplier = def.Multiplier
	}
	return p
}

func exponential(p Policy) *backoff.ExponentialBackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	exp.MaxElapsedTime = p.MaxElapsedTime
	exp.Reset()
	return exp
}

// NewBackOff builds an unbounded exponential backoff for loops that never
// give up (e.g. queue polling), honoring ctx.
func NewBackOff(ctx context.Context, policy Policy) backoff.BackOff {
	policy = policy.withDefaults()
	policy.MaxElapsedTime = 0
	return backoff.WithContext(exponential(policy), ctx)
}

// Retry runs fn until it succeeds, returns a FatalError, or the policy is
// exhausted. It is used for startup connection checks, never for per-message work.
func Retry(ctx context.Context, policy Policy, fn func() error) error {
	policy = policy.withDefaults()

	var b backoff.BackOff = backoff.WithContext(exponential(policy), ctx)
	b = backoff.WithMaxRetries(b, uint64(policy.MaxAttempts-1))

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		var fatalErr FatalError
		if errors.As(err, &fatalErr) && fatalErr.IsFatal() {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
