// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/tomtom215/stowaway/internal/fingerprint"
	"github.com/tomtom215/stowaway/internal/logging"
)

// SingleFileOptions configures a single file task.
type SingleFileOptions struct {
	Name       string
	OutputDir  string
	SourceFile string
	// BackupOnChange skips the copy when the source hash matches the store.
	BackupOnChange bool
}

type singleFileProducer struct {
	source         string
	backupOnChange bool
	store          *fingerprint.Store
}

// NewSingleFileTask returns a task that copies one file, using store to
// detect whether it changed. The source path is the store key.
func NewSingleFileTask(opts SingleFileOptions, store *fingerprint.Store) *Task {
	return newTask(opts.Name, KindSingleFile, opts.OutputDir, &singleFileProducer{
		source:         opts.SourceFile,
		backupOnChange: opts.BackupOnChange,
		store:          store,
	})
}

func (p *singleFileProducer) produce(ctx context.Context, t *Task) (artifact, bool, error) {
	if p.store == nil {
		return artifact{}, false, errors.New("single file task has no fingerprint store")
	}

	unlock := p.store.Lock(p.source)
	defer unlock()

	sum, err := fingerprint.HashFile(p.source)
	if err != nil {
		return artifact{}, false, err
	}

	changed := p.store.HasChanged(p.source, sum)
	if p.backupOnChange && !changed {
		logging.Info().
			Str("task", t.name).
			Str("source", p.source).
			Msg("Source unchanged, skipping")
		return artifact{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		return artifact{}, false, err
	}

	fileName := fmt.Sprintf("%s.%s_%s", t.name, t.stamp(), sum)
	dest := filepath.Join(t.outputDir, fileName)
	if err := copyFile(p.source, dest); err != nil {
		return artifact{}, false, err
	}

	if changed {
		p.store.Set(p.source, sum)
	}

	logging.Info().
		Str("task", t.name).
		Str("file", fileName).
		Bool("changed", changed).
		Msg("File copied")
	return artifact{fileName: fileName, path: dest, hash: sum}, true, nil
}

func (p *singleFileProducer) pattern(t *Task) *regexp.Regexp {
	return artifactPattern(t.name+".", "")
}

// copyFile copies src to dest through a temp file in dest's directory,
// keeping src's permission bits.
//
//nolint:gosec // G304: paths come from operator configuration
func copyFile(src, dest string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close() //nolint:errcheck // read-only file

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}

	out, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create copy: %w", err)
	}
	tmpName := out.Name()
	defer func() {
		if err != nil {
			out.Close()        //nolint:errcheck // already failing
			os.Remove(tmpName) //nolint:errcheck // best effort cleanup
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy source: %w", err)
	}
	if err = out.Chmod(info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to set copy permissions: %w", err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("failed to close copy: %w", err)
	}
	if err = os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("failed to finalize copy: %w", err)
	}
	return nil
}
