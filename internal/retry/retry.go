/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package retry re-runs idempotent operations with exponential backoff. It is
// only used at the outer layer; the remote client and the orchestrators never
// retry on their own.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var retries = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "translationflow_read_retries_total",
		Help: "Retries of idempotent reads, by operation",
	},
	[]string{"op"},
)

// Policy configures Do.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt; 0 disables
	// retrying.
	MaxRetries int
	// BaseBackoff is the wait before the first retry; it doubles per attempt.
	BaseBackoff time.Duration
	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration
	// MaxJitter is the upper bound of the random delay added to each wait.
	MaxJitter time.Duration
}

// Validate checks that the policy has valid values.
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return errors.New("max retries cannot be negative")
	}
	if p.BaseBackoff < 0 {
		return errors.New("base backoff cannot be negative")
	}
	if p.MaxBackoff < 0 {
		return errors.New("max backoff cannot be negative")
	}
	if p.MaxJitter < 0 {
		return errors.New("max jitter cannot be negative")
	}
	return nil
}

// DefaultPolicy returns the policy used for facade reads: short waits, since
// a caller is blocked on the response.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:  2,
		BaseBackoff: 200 * time.Millisecond,
		MaxBackoff:  2 * time.Second,
		MaxJitter:   100 * time.Millisecond,
	}
}

// Do runs fn until it succeeds, fails with an error isRetryable rejects, or
// the retries are exhausted.
func Do[T any](ctx context.Context, p Policy, op string, isRetryable func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	var result T
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		result, lastErr = fn(ctx)
		if lastErr == nil {
			return result, nil
		}
		if !isRetryable(lastErr) {
			return result, lastErr
		}
		if attempt >= p.MaxRetries {
			break
		}

		backoff := min(p.BaseBackoff<<attempt, p.MaxBackoff)
		var jitter time.Duration
		if p.MaxJitter > 0 {
			if n, err := rand.Int(rand.Reader, big.NewInt(int64(p.MaxJitter))); err == nil {
				jitter = time.Duration(n.Int64())
			}
		}

		retries.With(prometheus.Labels{"op": op}).Inc()
		clog.FromContext(ctx).With("operation", op).
			With("attempt", attempt+1).
			With("max_retries", p.MaxRetries).
			With("backoff", backoff+jitter).
			With("error", lastErr.Error()).
			Warn("Transient failure, retrying")

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(backoff + jitter):
		}
	}

	if p.MaxRetries == 0 {
		return result, lastErr
	}
	return result, fmt.Errorf("%s failed after %d retries: %w", op, p.MaxRetries, lastErr)
}
