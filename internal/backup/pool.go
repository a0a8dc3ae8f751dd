// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

package backup

import (
	"context"
	"fmt"
	"sync"
)

// poolConfig describes how a batch runs.
type poolConfig struct {
	parallel bool
	workers  int
}

// size returns the number of goroutines used for n items.
func (p poolConfig) size(n int) int {
	if !p.parallel || n <= 1 {
		return 1
	}
	w := p.workers
	if w < 1 {
		w = 1
	}
	if w > n {
		w = n
	}
	return w
}

// runPool runs fn for every item and returns the results in item order. It
// returns only after every item has finished, which makes it the barrier
// between the task and upload batches.
//
// A panic in fn is recovered and passed to onPanic, which builds the result
// for that item. Cancellation does not stop the pool; items still pending
// run with the canceled context and are expected to fail fast.
func runPool[T, R any](
	ctx context.Context,
	cfg poolConfig,
	items []T,
	fn func(context.Context, T) R,
	onPanic func(T, error) R,
) []R {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results
	}

	call := func(i int) {
		defer func() {
			if r := recover(); r != nil {
				results[i] = onPanic(items[i], fmt.Errorf("panic: %v", r))
			}
		}()
		results[i] = fn(ctx, items[i])
	}

	workers := cfg.size(len(items))
	if workers == 1 {
		for i := range items {
			call(i)
		}
		return results
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	for i := range items {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			call(i)
		}(i)
	}
	wg.Wait()
	return results
}
