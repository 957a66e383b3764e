package vaulterr

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy returns the backoff policy mandated for transient ChainError
// and RelayError retries: base 1s, factor 2, cap 60s, with backoff's own
// randomization factor standing in for the +/-25% jitter requirement.
func RetryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.Multiplier = 2
	b.MaxInterval = 60 * time.Second
	b.RandomizationFactor = 0.25
	b.MaxElapsedTime = 0 // caller controls total duration via ctx
	return backoff.WithContext(b, ctx)
}

// Retry runs op until it succeeds, the context is cancelled, or op returns
// a non-transient error. Non-transient errors abort immediately.
func Retry(ctx context.Context, op func() error) error {
	policy := RetryPolicy(ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
