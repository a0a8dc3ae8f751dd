// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/tomtom215/stowaway/internal/fingerprint"
	"github.com/tomtom215/stowaway/internal/logging"
)

// ArchiveOptions configures an archive task.
type ArchiveOptions struct {
	Name      string
	OutputDir string
	// WorkDir is the directory the archived paths are relative to.
	WorkDir string
	Paths   []string
}

type archiveProducer struct {
	workDir  string
	paths    []string
	archiver Archiver
}

// NewArchiveTask returns a task that packages opts.Paths into a gzipped tarball.
func NewArchiveTask(opts ArchiveOptions, archiver Archiver) *Task {
	return newTask(opts.Name, KindArchive, opts.OutputDir, &archiveProducer{
		workDir:  opts.WorkDir,
		paths:    opts.Paths,
		archiver: archiver,
	})
}

func (p *archiveProducer) produce(ctx context.Context, t *Task) (artifact, bool, error) {
	if len(p.paths) == 0 {
		return artifact{}, false, errors.New("archive task has no paths")
	}

	tmp := filepath.Join(t.outputDir, t.name+"_backup_temp.tgz")
	if err := p.archiver.Archive(ctx, tmp, p.workDir, p.paths, false); err != nil {
		os.Remove(tmp) //nolint:errcheck,gosec // best effort cleanup
		return artifact{}, false, fmt.Errorf("archive failed: %w", err)
	}

	a, err := finalize(tmp, func(sum string) string {
		return fmt.Sprintf("%s_backup_%s_%s.tgz", t.name, t.stamp(), sum)
	})
	if err != nil {
		return artifact{}, false, err
	}

	logging.Info().
		Str("task", t.name).
		Str("file", a.fileName).
		Msg("Archive created")
	return a, true, nil
}

func (p *archiveProducer) pattern(t *Task) *regexp.Regexp {
	return artifactPattern(t.name+"_backup_", ".tgz")
}

// finalize hashes the packaged file at tmp and renames it to the name built
// from that hash. tmp is removed on failure.
func finalize(tmp string, name func(sum string) string) (artifact, error) {
	sum, err := fingerprint.HashFile(tmp)
	if err != nil {
		os.Remove(tmp) //nolint:errcheck,gosec // best effort cleanup
		return artifact{}, err
	}

	fileName := name(sum)
	dest := filepath.Join(filepath.Dir(tmp), fileName)
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp) //nolint:errcheck,gosec // best effort cleanup
		return artifact{}, fmt.Errorf("failed to rename package: %w", err)
	}

	return artifact{fileName: fileName, path: dest, hash: sum}, nil
}
