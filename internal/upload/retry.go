// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DefaultAttempts is the per-file attempt bound for remote transfers.
const DefaultAttempts = 3

// RetryPolicy bounds the attempts for one file transfer.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Backoff is the wait before retry i (index i-1). The last value repeats
	// when there are more retries than entries.
	Backoff []time.Duration
}

// DefaultRetryPolicy returns three attempts with short growing waits.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: DefaultAttempts,
		Backoff:  []time.Duration{2 * time.Second, 5 * time.Second},
	}
}

func (p RetryPolicy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

func (p RetryPolicy) wait(retry int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	if retry > len(p.Backoff) {
		return p.Backoff[len(p.Backoff)-1]
	}
	return p.Backoff[retry-1]
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return &permanentError{err: err} }

// retry runs attempt until it succeeds, fails permanently, or the policy is
// exhausted. reset is called after every failed attempt so the next one
// starts from a fresh session.
func retry(ctx context.Context, log zerolog.Logger, p RetryPolicy, attempt func(ctx context.Context, n int) error, reset func()) error {
	total := p.attempts()
	var lastErr error

	for n := 1; n <= total; n++ {
		if n > 1 {
			if err := sleepCtx(ctx, p.wait(n-1)); err != nil {
				return fmt.Errorf("retry canceled after %d attempts: %w", n-1, lastErr)
			}
		}

		err := attempt(ctx, n)
		if err == nil {
			if n > 1 {
				log.Info().Int("attempt", n).Msg("Upload succeeded after retry")
			}
			return nil
		}
		lastErr = err
		if reset != nil {
			reset()
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("upload canceled on attempt %d: %w", n, err)
		}

		log.Warn().
			Err(err).
			Int("attempt", n).
			Int("max_attempts", total).
			Msg("Upload attempt failed")
	}

	return fmt.Errorf("upload failed after %d attempts: %w", total, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
