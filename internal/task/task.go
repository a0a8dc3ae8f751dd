// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

// Package task implements the backup tasks that produce local artifacts.
//
// A Task is one of a closed set of kinds (archive, database dump, single
// file). Each run ends in one of three outcomes: Succeeded with exactly one
// output file, Skipped when there was legitimately nothing to do, or Failed
// with the reason. Only single-file tasks ever skip; archive and dump tasks
// report Succeeded whenever packaging works because every package name
// already embeds its own content hash.
package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"
)

// Kind identifies a task variant. The values match the configuration file.
type Kind string

const (
	KindArchive    Kind = "pack"
	KindDump       Kind = "mysql"
	KindSingleFile Kind = "single_file"
)

// Status is the outcome of a task run or an upload.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSkipped   Status = "skipped"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// TimestampLayout is the timestamp embedded in output file names (yymmdd_HHMMSS).
const TimestampLayout = "060102_150405"

// Result records how a run ended. OutputFileName and OutputPath are set only
// when Status is StatusSucceeded.
type Result struct {
	Status         Status
	Err            error
	OutputFileName string
	OutputPath     string
	ContentHash    string
	Started        time.Time
	Duration       time.Duration
}

// artifact is what a producer leaves on disk.
type artifact struct {
	fileName string
	path     string
	hash     string
}

// producer is the variant-specific step. ok=false without an error means
// there was nothing to do.
type producer interface {
	produce(ctx context.Context, t *Task) (a artifact, ok bool, err error)
	pattern(t *Task) *regexp.Regexp
}

// Task is one backup unit of work.
type Task struct {
	name      string
	kind      Kind
	outputDir string
	producer  producer
	now       func() time.Time

	mu     sync.Mutex
	result Result
}

func newTask(name string, kind Kind, outputDir string, p producer) *Task {
	return &Task{
		name:      name,
		kind:      kind,
		outputDir: outputDir,
		producer:  p,
		now:       time.Now,
		result:    Result{Status: StatusPending},
	}
}

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Kind returns the task variant.
func (t *Task) Kind() Kind { return t.kind }

// OutputDir returns the directory the task writes into.
func (t *Task) OutputDir() string { return t.outputDir }

// SetClock replaces the time source used for output names and Result.Started.
// Durations are always measured on the monotonic clock.
func (t *Task) SetClock(now func() time.Time) { t.now = now }

// Result returns the outcome of the last run.
func (t *Task) Result() Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Produced reports whether the last run succeeded with an output file.
func (t *Task) Produced() bool {
	return t.Result().Status == StatusSucceeded
}

// OutputFileName returns the produced file name, or "" if nothing was produced.
func (t *Task) OutputFileName() string {
	return t.Result().OutputFileName
}

// OutputPath returns the produced file path, or "" if nothing was produced.
func (t *Task) OutputPath() string {
	return t.Result().OutputPath
}

// Run creates the output directory and runs the variant step. A skip is not
// an error; any failure is recorded and returned.
func (t *Task) Run(ctx context.Context) error {
	res := Result{Status: StatusFailed, Started: t.now()}
	begin := time.Now()
	defer func() {
		res.Duration = time.Since(begin)
		t.mu.Lock()
		t.result = res
		t.mu.Unlock()
	}()

	if err := ensureDir(t.outputDir); err != nil {
		res.Err = err
		return err
	}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return err
	}

	a, ok, err := t.producer.produce(ctx, t)
	switch {
	case err != nil:
		res.Err = err
		return fmt.Errorf("task %s: %w", t.name, err)
	case !ok:
		res.Status = StatusSkipped
	default:
		res.Status = StatusSucceeded
		res.OutputFileName = a.fileName
		res.OutputPath = a.path
		res.ContentHash = a.hash
	}
	return nil
}

// ErrNotDirectory is returned when the output path exists as a regular file.
var ErrNotDirectory = errors.New("output path exists and is not a directory")

func ensureDir(dir string) error {
	if dir == "" {
		return errors.New("output directory is empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		if info, statErr := os.Stat(dir); statErr == nil && !info.IsDir() {
			return fmt.Errorf("%s: %w", dir, ErrNotDirectory)
		}
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return nil
}

func (t *Task) stamp() string {
	return t.now().Format(TimestampLayout)
}

// ArtifactPattern matches the file names this task produces in its output
// directory, across runs.
func (t *Task) ArtifactPattern() *regexp.Regexp {
	return t.producer.pattern(t)
}

// artifactPattern matches "{prefix}{stamp}_{md5}{suffix}".
func artifactPattern(prefix, suffix string) *regexp.Regexp {
	return regexp.MustCompile("^" + regexp.QuoteMeta(prefix) +
		`\d{6}_\d{6}_[0-9a-f]{32}` + regexp.QuoteMeta(suffix) + "$")
}
