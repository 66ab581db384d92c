// Package retry wraps calls to external services in a bounded exponential
// backoff. Only errors classified as transient are retried.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"fjacquet/ledger-sync/internal/config"
	"fjacquet/ledger-sync/internal/logging"
	"fjacquet/ledger-sync/internal/txerror"
)

// Policy bounds a retried call.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultPolicy mirrors the configuration defaults.
var DefaultPolicy = Policy{
	MaxAttempts:     3,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
	Multiplier:      2,
}

// PolicyFromConfig converts the retry section of the configuration.
func PolicyFromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: time.Duration(cfg.InitialIntervalMs) * time.Millisecond,
		MaxInterval:     time.Duration(cfg.MaxIntervalMs) * time.Millisecond,
		Multiplier:      cfg.Multiplier,
	}
}

// Retrier runs operations under a Policy.
type Retrier struct {
	policy Policy
	logger logging.Logger
}

// New creates a Retrier. A policy with fewer than one attempt runs once.
func New(policy Policy, logger logging.Logger) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Retrier{policy: policy, logger: logger}
}

func (r *Retrier) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialInterval
	b.MaxInterval = r.policy.MaxInterval
	b.Multiplier = r.policy.Multiplier
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.policy.MaxAttempts-1)), ctx)
}

// Do calls fn until it succeeds, fails with a non-transient error, the context
// ends, or the attempts run out. Exhaustion returns a *txerror.RetryExhaustedError
// carrying the last transient error.
func (r *Retrier) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	attempts := 0
	op := func() error {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !txerror.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("Transient failure, retrying",
			logging.F(logging.FieldOperation, operation),
			logging.F(logging.FieldAttempt, attempts),
			logging.F(logging.FieldReason, err.Error()),
			logging.F(logging.FieldDuration, wait.String()))
	}

	err := backoff.RetryNotify(op, r.backOff(ctx), notify)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || !txerror.IsTransient(err) {
		return err
	}
	r.logger.Error("Retries exhausted",
		logging.F(logging.FieldOperation, operation),
		logging.F(logging.FieldAttempt, attempts))
	return &txerror.RetryExhaustedError{Operation: operation, Attempts: attempts, Last: err}
}
