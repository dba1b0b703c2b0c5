package core

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// InitialRetryInterval is the first wait between store call attempts.
var InitialRetryInterval = 100 * time.Millisecond

// callPolicy bounds every call the executor makes to an external store.
// A zero timeout disables the per-attempt deadline; zero retries means a
// single attempt.
type callPolicy struct {
	timeout time.Duration
	retries int
}

// do runs op until it succeeds, returns a not-found error, the parent
// context ends, or the retry budget is spent.
func (p callPolicy) do(ctx context.Context, op func(ctx context.Context) error) error {
	once := func() error {
		callCtx := ctx
		if p.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.timeout)
			defer cancel()
		}
		return op(callCtx)
	}

	if p.retries <= 0 {
		return once()
	}

	attempt := func() error {
		err := once()
		if err != nil && (errors.Is(err, ErrNotFound) || ctx.Err() != nil) {
			return backoff.Permanent(err)
		}
		return err
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = InitialRetryInterval
	exp.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.retries)), ctx)
	return backoff.Retry(attempt, b)
}
