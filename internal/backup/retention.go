// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/tomtom215/stowaway/internal/logging"
	"github.com/tomtom215/stowaway/internal/task"
)

// RetentionRule keeps the newest Keep artifacts of Task in its output
// directory.
type RetentionRule struct {
	Task *task.Task
	Keep int
}

// PruneResult summarizes one rule application.
type PruneResult struct {
	Task         string   `json:"task"`
	Kept         int      `json:"kept"`
	Deleted      []string `json:"deleted,omitempty"`
	DeletedBytes int64    `json:"deleted_bytes"`
	Held         bool     `json:"held,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// localArtifact is one task output found on disk.
type localArtifact struct {
	name    string
	path    string
	size    int64
	modTime time.Time
}

// listArtifacts returns the task's artifacts sorted newest first.
func listArtifacts(t *task.Task) ([]localArtifact, error) {
	entries, err := os.ReadDir(t.OutputDir())
	if err != nil {
		return nil, fmt.Errorf("failed to list output directory: %w", err)
	}

	pattern := t.ArtifactPattern()
	var artifacts []localArtifact
	for _, e := range entries {
		if !e.Type().IsRegular() || !pattern.MatchString(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed concurrently
		}
		artifacts = append(artifacts, localArtifact{
			name:    e.Name(),
			path:    filepath.Join(t.OutputDir(), e.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}

	// Names embed the timestamp, so they break modification time ties.
	sort.Slice(artifacts, func(i, j int) bool {
		if !artifacts[i].modTime.Equal(artifacts[j].modTime) {
			return artifacts[i].modTime.After(artifacts[j].modTime)
		}
		return artifacts[i].name > artifacts[j].name
	})
	return artifacts, nil
}

// selectExcess returns the artifacts beyond the newest keep. The current
// run's output always counts as kept.
func selectExcess(artifacts []localArtifact, keep int, current string) []localArtifact {
	var toDelete []localArtifact
	kept := 0
	if current != "" {
		kept = 1
	}
	for _, a := range artifacts {
		if a.name == current {
			continue
		}
		if kept < keep {
			kept++
			continue
		}
		toDelete = append(toDelete, a)
	}
	return toDelete
}

// apply deletes the excess artifacts of one rule.
func (r RetentionRule) apply(ctx context.Context) PruneResult {
	res := PruneResult{Task: r.Task.Name()}
	log := logging.Ctx(ctx).With().Str("task", res.Task).Logger()

	artifacts, err := listArtifacts(r.Task)
	if err != nil {
		res.Error = err.Error()
		log.Warn().Err(err).Msg("Failed to apply local retention")
		return res
	}

	toDelete := selectExcess(artifacts, r.Keep, r.Task.OutputFileName())
	res.Kept = len(artifacts) - len(toDelete)
	for _, a := range toDelete {
		if err := os.Remove(a.path); err != nil {
			res.Kept++
			log.Warn().Err(err).Str("file", a.name).Msg("Failed to delete local artifact")
			continue
		}
		res.Deleted = append(res.Deleted, a.name)
		res.DeletedBytes += a.size
	}

	if len(res.Deleted) > 0 {
		log.Info().
			Int("deleted_count", len(res.Deleted)).
			Float64("deleted_mb", float64(res.DeletedBytes)/(1024*1024)).
			Int("kept", res.Kept).
			Msg("Local retention applied")
	}
	return res
}
