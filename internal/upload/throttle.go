// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

package upload

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// throttleChunk caps a single read so WaitN never exceeds the burst.
const throttleChunk = 32 * 1024

// throttledReader limits reads from r to the limiter's rate.
type throttledReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

// throttle wraps r with a bytesPerSec limit. A non-positive limit returns r.
func throttle(ctx context.Context, r io.Reader, bytesPerSec int) io.Reader {
	if bytesPerSec <= 0 {
		return r
	}
	burst := throttleChunk
	if bytesPerSec < burst {
		burst = bytesPerSec
	}
	return &throttledReader{
		ctx:     ctx,
		r:       r,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
	}
}

func (t *throttledReader) Read(p []byte) (int, error) {
	if limit := t.limiter.Burst(); len(p) > limit {
		p = p[:limit]
	}
	n, err := t.r.Read(p)
	if n > 0 {
		if werr := t.limiter.WaitN(t.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
