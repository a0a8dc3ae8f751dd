// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/stowaway/internal/logging"
	"github.com/tomtom215/stowaway/internal/metrics"
	"github.com/tomtom215/stowaway/internal/task"
)

// Binding uploads one task's output through one uploader into RemoteDir.
type Binding struct {
	Task      *task.Task
	Uploader  Uploader
	RemoteDir string
	// Timeout bounds the whole upload including retries. 0 disables.
	Timeout time.Duration
}

// Result is the outcome of one binding run.
type Result struct {
	Task       string
	Uploader   string
	RemotePath string
	Status     task.Status
	Err        error
	Duration   time.Duration
}

// Succeeded reports whether the upload was confirmed.
func (r Result) Succeeded() bool { return r.Status == task.StatusSucceeded }

// Run uploads the task output. A task that produced nothing is skipped
// without contacting the uploader. Upload errors, including panics in the
// uploader, are logged and reported in the Result.
func (b *Binding) Run(ctx context.Context) (res Result) {
	res = Result{
		Task:     b.Task.Name(),
		Uploader: b.Uploader.Name(),
		Status:   task.StatusFailed,
	}
	log := logging.Ctx(ctx).With().
		Str("task", res.Task).
		Str("uploader", res.Uploader).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			res.Status = task.StatusFailed
			res.Err = fmt.Errorf("uploader panic: %v", r)
			log.Error().Err(res.Err).Msg("Upload failed")
			metrics.RecordUpload(res.Uploader, string(res.Status), res.Duration)
		}
	}()

	if !b.Task.Produced() {
		res.Status = task.StatusSkipped
		log.Info().
			Str("task_status", string(b.Task.Result().Status)).
			Msg("Task produced no output, skipping upload")
		metrics.RecordUpload(res.Uploader, string(res.Status), 0)
		return res
	}

	res.RemotePath = RemotePath(b.RemoteDir, b.Task.OutputFileName())

	if b.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := b.Uploader.Upload(ctx, b.Task, b.RemoteDir)
	res.Duration = time.Since(start)

	if err != nil {
		res.Err = err
		log.Error().
			Err(err).
			Str("remote", res.RemotePath).
			Dur("duration", res.Duration).
			Msg("Upload failed")
	} else {
		res.Status = task.StatusSucceeded
		log.Info().
			Str("remote", res.RemotePath).
			Dur("duration", res.Duration).
			Msg("Upload complete")
	}
	metrics.RecordUpload(res.Uploader, string(res.Status), res.Duration)
	return res
}
