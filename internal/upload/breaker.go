// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

package upload

import (
	"context"
	"io"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/stowaway/internal/logging"
	"github.com/tomtom215/stowaway/internal/metrics"
)

// Breaker wraps an Uploader with a circuit breaker. After Threshold
// consecutive failed uploads the breaker opens and further uploads fail
// immediately with gobreaker.ErrOpenState instead of spending their retries
// against a remote that is down.
type Breaker struct {
	inner Uploader
	cb    *gobreaker.CircuitBreaker[struct{}]
}

// NewBreaker wraps inner. A threshold below 1 returns inner unchanged.
func NewBreaker(inner Uploader, threshold int, cooldown time.Duration) Uploader {
	if threshold < 1 {
		return inner
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}

	name := inner.Name()
	metrics.BreakerState.WithLabelValues(name).Set(0)
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold) //nolint:gosec // threshold validated >= 1
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			logging.Warn().
				Str("uploader", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Uploader circuit breaker state changed")
		},
	}

	return &Breaker{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

// Name implements Uploader.
func (b *Breaker) Name() string { return b.inner.Name() }

// Upload implements Uploader.
func (b *Breaker) Upload(ctx context.Context, src Source, remoteDir string) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.inner.Upload(ctx, src, remoteDir)
	})
	return err
}

// State returns the breaker state.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

// Close closes the wrapped uploader when it holds a session.
func (b *Breaker) Close() error {
	if c, ok := b.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
