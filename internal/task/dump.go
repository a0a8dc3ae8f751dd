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

	"github.com/tomtom215/stowaway/internal/logging"
)

// DumpOptions configures a database dump task.
type DumpOptions struct {
	Name      string
	OutputDir string
	// Options is passed to the dump tool, split with shell quoting rules.
	Options string
}

type dumpProducer struct {
	options  string
	dumper   Dumper
	archiver Archiver
}

// NewDatabaseDumpTask returns a task that dumps a database and packages the
// dump into a gzipped tarball.
func NewDatabaseDumpTask(opts DumpOptions, dumper Dumper, archiver Archiver) *Task {
	return newTask(opts.Name, KindDump, opts.OutputDir, &dumpProducer{
		options:  opts.Options,
		dumper:   dumper,
		archiver: archiver,
	})
}

func (p *dumpProducer) produce(ctx context.Context, t *Task) (artifact, bool, error) {
	dumpName := t.name + "_backup.sql"
	dumpPath := filepath.Join(t.outputDir, dumpName)
	defer func() {
		if err := os.Remove(dumpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Warn().Err(err).Str("task", t.name).Msg("Failed to remove intermediate dump")
		}
	}()

	if err := p.dumper.Dump(ctx, dumpPath, p.options); err != nil {
		return artifact{}, false, fmt.Errorf("dump failed: %w", err)
	}

	stamp := t.stamp()
	tmp := filepath.Join(t.outputDir, dumpName+".tmp.tgz")
	if err := p.archiver.Archive(ctx, tmp, t.outputDir, []string{dumpName}, true); err != nil {
		os.Remove(tmp) //nolint:errcheck,gosec // best effort cleanup
		return artifact{}, false, fmt.Errorf("packaging dump failed: %w", err)
	}

	a, err := finalize(tmp, func(sum string) string {
		return fmt.Sprintf("%s.%s_%s.tgz", dumpName, stamp, sum)
	})
	if err != nil {
		return artifact{}, false, err
	}

	logging.Info().
		Str("task", t.name).
		Str("file", a.fileName).
		Msg("Database dump packaged")
	return a, true, nil
}

func (p *dumpProducer) pattern(t *Task) *regexp.Regexp {
	return artifactPattern(t.name+"_backup.sql.", ".tgz")
}
