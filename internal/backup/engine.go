// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/tomtom215/stowaway/internal/config"
	"github.com/tomtom215/stowaway/internal/logging"
	"github.com/tomtom215/stowaway/internal/metrics"
	"github.com/tomtom215/stowaway/internal/task"
	"github.com/tomtom215/stowaway/internal/upload"
)

// ErrStoreRequired is returned when the fingerprint store must exist and
// could not be loaded. No task runs in that case.
var ErrStoreRequired = errors.New("fingerprint store is required but could not be loaded")

// Options controls one run.
type Options struct {
	Parallel               bool
	Workers                int
	FingerprintFile        string
	RequireFingerprintFile bool
	// TaskTimeout bounds each task. 0 disables.
	TaskTimeout time.Duration
}

// OptionsFromConfig maps the engine section onto Options.
func OptionsFromConfig(cfg config.EngineConfig) Options {
	return Options{
		Parallel:               cfg.Parallel,
		Workers:                cfg.Workers,
		FingerprintFile:        cfg.FingerprintFile,
		RequireFingerprintFile: cfg.RequireFingerprintFile,
		TaskTimeout:            cfg.TaskTimeout,
	}
}

// Engine executes a Plan: load the store, run every task, run every
// binding, persist the store, then apply local retention.
type Engine struct {
	opts Options
	plan *Plan
	now  func() time.Time
}

// NewEngine returns an engine for plan.
func NewEngine(opts Options, plan *Plan) *Engine {
	if opts.Workers < 1 {
		opts.Workers = config.DefaultWorkers
	}
	if opts.FingerprintFile == "" {
		opts.FingerprintFile = config.DefaultFingerprintFile
	}
	return &Engine{opts: opts, plan: plan, now: time.Now}
}

// Run performs one full pass. Task and upload failures are contained and
// counted in the report; the returned error is either ErrStoreRequired or a
// failure to persist the store. The report is always returned.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	runID := logging.RunIDFromContext(ctx)
	if runID == "" {
		runID = logging.GenerateRunID()
		ctx = logging.WithRunID(ctx, runID)
	}
	log := logging.Ctx(ctx)

	rep := &Report{
		RunID:     runID,
		Started:   e.now(),
		StoreFile: e.opts.FingerprintFile,
		Skipped:   e.plan.Skipped,
	}
	rep.enter(PhaseInit)
	log.Info().
		Int("tasks", len(e.plan.Tasks)).
		Int("bindings", len(e.plan.Bindings)).
		Bool("parallel", e.opts.Parallel).
		Int("workers", e.opts.Workers).
		Msg("Backup run starting")

	rep.enter(PhaseLoadStore)
	forceSave, err := e.loadStore(ctx, rep)
	if err != nil {
		e.finish(ctx, rep)
		return rep, err
	}

	rep.enter(PhaseRunTasks)
	rep.Tasks = e.runTasks(ctx)

	rep.enter(PhaseRunUploads)
	rep.Uploads = e.runUploads(ctx)
	e.closeUploaders(ctx)

	rep.enter(PhasePersistStore)
	saveErr := e.persistStore(ctx, rep, forceSave)

	if len(e.plan.Retention) > 0 {
		rep.enter(PhasePrune)
		rep.Pruned = e.prune(ctx, rep)
	}

	e.finish(ctx, rep)
	return rep, saveErr
}

// loadStore loads the fingerprint file. A failure leaves the store empty so
// every artifact counts as changed, unless the file is required. It reports
// whether the final save must be forced to create the file.
func (e *Engine) loadStore(ctx context.Context, rep *Report) (bool, error) {
	log := logging.Ctx(ctx).With().Str("path", e.opts.FingerprintFile).Logger()

	err := e.plan.Store.Load(e.opts.FingerprintFile)
	if err == nil {
		rep.StoreLoaded = true
		log.Info().Int("entries", e.plan.Store.Len()).Msg("Fingerprint store loaded")
		return false, nil
	}

	rep.StoreError = err.Error()
	if e.opts.RequireFingerprintFile {
		log.Error().Err(err).Msg("Fingerprint store is required, aborting run")
		return false, fmt.Errorf("%w: %w", ErrStoreRequired, err)
	}

	missing := errors.Is(err, fs.ErrNotExist)
	if missing {
		log.Info().Msg("No fingerprint store yet, treating every artifact as changed")
	} else {
		log.Warn().Err(err).Msg("Failed to load fingerprint store, treating every artifact as changed")
	}
	return missing, nil
}

func (e *Engine) pool() poolConfig {
	return poolConfig{parallel: e.opts.Parallel, workers: e.opts.Workers}
}

func (e *Engine) runTasks(ctx context.Context) []TaskOutcome {
	return runPool(ctx, e.pool(), e.plan.Tasks, e.runTask, func(t *task.Task, err error) TaskOutcome {
		logging.Ctx(ctx).Error().Err(err).Str("task", t.Name()).Msg("Task panicked")
		metrics.RecordTask(t.Name(), string(t.Kind()), string(task.StatusFailed), 0)
		return TaskOutcome{Name: t.Name(), Kind: t.Kind(), Status: task.StatusFailed, Error: err.Error()}
	})
}

func (e *Engine) runTask(ctx context.Context, t *task.Task) TaskOutcome {
	if e.opts.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.TaskTimeout)
		defer cancel()
	}
	log := logging.Ctx(ctx).With().
		Str("task", t.Name()).
		Str("kind", string(t.Kind())).
		Logger()

	err := t.Run(ctx)
	res := t.Result()
	switch {
	case err != nil:
		log.Error().Err(err).Dur("duration", res.Duration).Msg("Task failed")
	case res.Status == task.StatusSkipped:
		log.Info().Msg("Task skipped")
	default:
		log.Info().
			Str("file", res.OutputFileName).
			Dur("duration", res.Duration).
			Msg("Task succeeded")
	}
	metrics.RecordTask(t.Name(), string(t.Kind()), string(res.Status), res.Duration)
	return taskOutcome(t)
}

func (e *Engine) runUploads(ctx context.Context) []UploadOutcome {
	return runPool(ctx, e.pool(), e.plan.Bindings,
		func(ctx context.Context, b *upload.Binding) UploadOutcome {
			return uploadOutcome(b.Run(ctx))
		},
		func(b *upload.Binding, err error) UploadOutcome {
			logging.Ctx(ctx).Error().Err(err).Str("task", b.Task.Name()).Msg("Upload binding panicked")
			return UploadOutcome{
				Task:     b.Task.Name(),
				Uploader: b.Uploader.Name(),
				Status:   task.StatusFailed,
				Error:    err.Error(),
			}
		})
}

// closeUploaders ends uploader sessions once every binding has finished.
func (e *Engine) closeUploaders(ctx context.Context) {
	for _, u := range e.plan.Uploaders {
		c, ok := u.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("uploader", u.Name()).Msg("Failed to close uploader")
		}
	}
}

func (e *Engine) persistStore(ctx context.Context, rep *Report, force bool) error {
	log := logging.Ctx(ctx).With().Str("path", e.opts.FingerprintFile).Logger()
	written := force || e.plan.Store.Dirty()

	err := e.plan.Store.Save(e.opts.FingerprintFile, force)
	metrics.RecordStoreSave(written, err)
	metrics.FingerprintEntries.Set(float64(e.plan.Store.Len()))
	if err != nil {
		log.Error().Err(err).Msg("Failed to persist fingerprint store")
		return fmt.Errorf("failed to persist fingerprint store: %w", err)
	}

	rep.StoreSaved = written
	if written {
		log.Info().Int("entries", e.plan.Store.Len()).Msg("Fingerprint store persisted")
	} else {
		log.Debug().Msg("Fingerprint store unchanged, not rewritten")
	}
	return nil
}

// prune applies local retention. A task whose output failed to upload
// anywhere this run keeps all its local artifacts.
func (e *Engine) prune(ctx context.Context, rep *Report) []PruneResult {
	failed := make(map[string]bool)
	for _, u := range rep.Uploads {
		if u.Status == task.StatusFailed {
			failed[u.Task] = true
		}
	}

	results := make([]PruneResult, 0, len(e.plan.Retention))
	for _, rule := range e.plan.Retention {
		if failed[rule.Task.Name()] {
			logging.Ctx(ctx).Warn().
				Str("task", rule.Task.Name()).
				Msg("Upload failed, keeping local artifacts")
			results = append(results, PruneResult{Task: rule.Task.Name(), Held: true})
			continue
		}
		results = append(results, rule.apply(ctx))
	}
	return results
}

func (e *Engine) finish(ctx context.Context, rep *Report) {
	rep.enter(PhaseDone)
	rep.Finished = e.now()
	duration := rep.Finished.Sub(rep.Started)
	rep.DurationMS = duration.Milliseconds()
	rep.tally()

	metrics.RecordRun(rep.Finished, duration, rep.Failures())

	ev := logging.Ctx(ctx).Info()
	if rep.Failures() > 0 {
		ev = logging.Ctx(ctx).Warn()
	}
	ev.Int("tasks_succeeded", rep.Counts.TasksSucceeded).
		Int("tasks_skipped", rep.Counts.TasksSkipped).
		Int("tasks_failed", rep.Counts.TasksFailed).
		Int("uploads_succeeded", rep.Counts.UploadsSucceeded).
		Int("uploads_skipped", rep.Counts.UploadsSkipped).
		Int("uploads_failed", rep.Counts.UploadsFailed).
		Dur("duration", duration).
		Msg("Backup run finished")
}
