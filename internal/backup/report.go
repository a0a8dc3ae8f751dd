// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/stowaway/internal/task"
	"github.com/tomtom215/stowaway/internal/upload"
)

// Phase is one step of a run.
type Phase string

const (
	PhaseInit         Phase = "init"
	PhaseLoadStore    Phase = "load_store"
	PhaseRunTasks     Phase = "run_tasks"
	PhaseRunUploads   Phase = "run_uploads"
	PhasePersistStore Phase = "persist_store"
	PhasePrune        Phase = "prune"
	PhaseDone         Phase = "done"
)

// Report summarizes one run.
type Report struct {
	RunID      string    `json:"run_id"`
	Started    time.Time `json:"started"`
	Finished   time.Time `json:"finished"`
	DurationMS int64     `json:"duration_ms"`
	Phases     []Phase   `json:"phases"`

	StoreFile   string `json:"store_file"`
	StoreLoaded bool   `json:"store_loaded"`
	StoreError  string `json:"store_error,omitempty"`
	StoreSaved  bool   `json:"store_saved"`

	Tasks   []TaskOutcome   `json:"tasks"`
	Uploads []UploadOutcome `json:"uploads"`
	Pruned  []PruneResult   `json:"pruned,omitempty"`
	Skipped []SkippedItem   `json:"skipped,omitempty"`
	Counts  Counts          `json:"counts"`
}

// TaskOutcome is the report line for one task.
type TaskOutcome struct {
	Name       string      `json:"name"`
	Kind       task.Kind   `json:"kind"`
	Status     task.Status `json:"status"`
	File       string      `json:"file,omitempty"`
	Hash       string      `json:"hash,omitempty"`
	Error      string      `json:"error,omitempty"`
	DurationMS int64       `json:"duration_ms"`
}

// UploadOutcome is the report line for one binding.
type UploadOutcome struct {
	Task       string      `json:"task"`
	Uploader   string      `json:"uploader"`
	RemotePath string      `json:"remote_path,omitempty"`
	Status     task.Status `json:"status"`
	Error      string      `json:"error,omitempty"`
	DurationMS int64       `json:"duration_ms"`
}

// Counts tallies outcomes by status.
type Counts struct {
	TasksSucceeded   int `json:"tasks_succeeded"`
	TasksSkipped     int `json:"tasks_skipped"`
	TasksFailed      int `json:"tasks_failed"`
	UploadsSucceeded int `json:"uploads_succeeded"`
	UploadsSkipped   int `json:"uploads_skipped"`
	UploadsFailed    int `json:"uploads_failed"`
}

// Failures returns the number of failed tasks and uploads.
func (r *Report) Failures() int {
	return r.Counts.TasksFailed + r.Counts.UploadsFailed
}

func (r *Report) enter(p Phase) {
	r.Phases = append(r.Phases, p)
}

func (r *Report) tally() {
	r.Counts = Counts{}
	for _, t := range r.Tasks {
		switch t.Status {
		case task.StatusSucceeded:
			r.Counts.TasksSucceeded++
		case task.StatusSkipped:
			r.Counts.TasksSkipped++
		default:
			r.Counts.TasksFailed++
		}
	}
	for _, u := range r.Uploads {
		switch u.Status {
		case task.StatusSucceeded:
			r.Counts.UploadsSucceeded++
		case task.StatusSkipped:
			r.Counts.UploadsSkipped++
		default:
			r.Counts.UploadsFailed++
		}
	}
}

func taskOutcome(t *task.Task) TaskOutcome {
	res := t.Result()
	o := TaskOutcome{
		Name:       t.Name(),
		Kind:       t.Kind(),
		Status:     res.Status,
		File:       res.OutputFileName,
		Hash:       res.ContentHash,
		DurationMS: res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		o.Error = res.Err.Error()
	}
	return o
}

func uploadOutcome(res upload.Result) UploadOutcome {
	o := UploadOutcome{
		Task:       res.Task,
		Uploader:   res.Uploader,
		RemotePath: res.RemotePath,
		Status:     res.Status,
		DurationMS: res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		o.Error = res.Err.Error()
	}
	return o
}

// WriteReport writes r as indented JSON to path through a temp file and
// rename.
func WriteReport(path string, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run report: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp report: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()        //nolint:errcheck,gosec // already failing
		os.Remove(tmpName) //nolint:errcheck,gosec // best effort
		return fmt.Errorf("failed to write run report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck,gosec // best effort
		return fmt.Errorf("failed to close run report: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName) //nolint:errcheck,gosec // best effort
		return fmt.Errorf("failed to replace run report: %w", err)
	}
	return nil
}
