// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package retry provides the exponential backoff policy shared by the
// inference client and the vector index wrapper.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

var (
	// ErrInvalidMaxAttempts is returned when a policy allows no attempts.
	ErrInvalidMaxAttempts = errors.New("max attempts must be greater than 0")

	// ErrExhausted wraps the last error once every attempt has failed.
	ErrExhausted = errors.New("retries exhausted")
)

// Policy describes how an operation is retried.
type Policy struct {
	MaxAttempts    int           // Total attempts including the first
	BaseDelay      time.Duration // Delay before the second attempt
	MaxDelay       time.Duration // Upper bound for any single delay (0 = unbounded)
	Multiplier     float64       // Growth factor between delays
	Jitter         float64       // Fraction of the delay randomized in both directions, 0..1
	AttemptTimeout time.Duration // Deadline applied to each attempt (0 = none)
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.2,
		AttemptTimeout: 2 * time.Minute,
	}
}

// Validate checks the policy for values that would make Do misbehave.
func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 || p.AttemptTimeout < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		return fmt.Errorf("retry jitter must be between 0 and 1, got %v", p.Jitter)
	}
	return nil
}

// Delay returns the wait before the given attempt (attempt 2 is the first retry).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(p.BaseDelay)
	for i := 2; i < attempt; i++ {
		delay *= mult
		if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
			delay = float64(p.MaxDelay)
			break
		}
	}
	if p.Jitter > 0 {
		delay *= 1 + p.Jitter*(2*rand.Float64()-1)
	}
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Do runs op until it succeeds, returns a permanent error, the attempts run
// out, or ctx is done. Each attempt receives its own context bounded by
// AttemptTimeout. On exhaustion the returned error wraps both ErrExhausted and
// the last attempt's error.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(p.Delay(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = runAttempt(ctx, p.AttemptTimeout, op)
		if lastErr == nil {
			if attempt > 1 {
				slog.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if IsPermanent(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		slog.Debug("operation failed, will retry", "attempt", attempt, "maxAttempts", p.MaxAttempts, "error", lastErr)
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.MaxAttempts, lastErr)
}

func runAttempt(ctx context.Context, timeout time.Duration, op func(ctx context.Context) error) error {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx)
}
