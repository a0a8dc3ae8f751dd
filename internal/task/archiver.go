// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

/*
archiver.go - Packaging Collaborators

Two packagers produce the same gzipped tar layout:

  - TarArchiver runs the system tar binary (the default)
  - GzipArchiver writes the archive in process

Entries are stored relative to the working directory so an archive of
"www" under "/srv" unpacks as "www/...".
*/

//nolint:staticcheck // File documentation, not package doc
package task

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Archiver packages paths relative to workDir into a gzipped tarball at dest.
// With removeSources the packaged paths are deleted after success.
type Archiver interface {
	Archive(ctx context.Context, dest, workDir string, paths []string, removeSources bool) error
}

// TarArchiver shells out to tar.
type TarArchiver struct {
	// Binary is the tar executable. Default: "tar"
	Binary string
}

// Archive implements Archiver.
func (a *TarArchiver) Archive(ctx context.Context, dest, workDir string, paths []string, removeSources bool) error {
	bin := a.Binary
	if bin == "" {
		bin = "tar"
	}

	args := []string{"-czf", dest, "-C", workDir}
	if removeSources {
		args = append(args, "--remove-files")
	}
	args = append(args, paths...)

	return runTool(ctx, bin, args, nil)
}

// runTool runs bin and folds its stderr into the returned error.
func runTool(ctx context.Context, bin string, args []string, stdout io.Writer) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...) //nolint:gosec // binary and args come from operator configuration
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", filepath.Base(bin), err, msg)
		}
		return fmt.Errorf("%s: %w", filepath.Base(bin), err)
	}
	return nil
}

// GzipArchiver writes tar+gzip in process.
type GzipArchiver struct {
	// Level is the gzip compression level. Zero means gzip.DefaultCompression.
	Level int
}

// archiveWriters holds the writer chain file -> gzip -> tar.
type archiveWriters struct {
	tarWriter *tar.Writer
	closers   []io.Closer
}

// Close closes all writers in reverse order, returning the first error encountered
func (aw *archiveWriters) Close() error {
	var firstErr error
	for i := len(aw.closers) - 1; i >= 0; i-- {
		if err := aw.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

//nolint:gosec // G304: dest is built by the task from its output directory
func (a *GzipArchiver) setupWriters(dest string) (*archiveWriters, error) {
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	level := a.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	gz, err := gzip.NewWriterLevel(out, level)
	if err != nil {
		out.Close() //nolint:errcheck // best effort cleanup on error
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}

	tw := tar.NewWriter(gz)
	return &archiveWriters{
		tarWriter: tw,
		closers:   []io.Closer{out, gz, tw},
	}, nil
}

// Archive implements Archiver.
func (a *GzipArchiver) Archive(ctx context.Context, dest, workDir string, paths []string, removeSources bool) (err error) {
	aw, err := a.setupWriters(dest)
	if err != nil {
		return err
	}

	for _, p := range paths {
		if err = addTree(ctx, aw.tarWriter, workDir, p); err != nil {
			aw.Close() //nolint:errcheck,gosec // already failing
			return err
		}
	}
	if err = aw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}

	if removeSources {
		for _, p := range paths {
			if err := os.RemoveAll(filepath.Join(workDir, p)); err != nil {
				return fmt.Errorf("failed to remove packaged source: %w", err)
			}
		}
	}
	return nil
}

// addTree writes rel (a file or directory under workDir) into tw.
func addTree(ctx context.Context, tw *tar.Writer, workDir, rel string) error {
	root := filepath.Join(workDir, rel)
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("failed to walk %s: %w", path, walkErr)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}

		var link string
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return fmt.Errorf("failed to read link %s: %w", path, err)
			}
		}

		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return fmt.Errorf("failed to build header for %s: %w", path, err)
		}
		name, err := filepath.Rel(workDir, path)
		if err != nil {
			return fmt.Errorf("failed to relativize %s: %w", path, err)
		}
		header.Name = filepath.ToSlash(name)
		if info.IsDir() {
			header.Name += "/"
		}

		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("failed to write header for %s: %w", path, err)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyInto(tw, path)
	})
}

//nolint:gosec // G304: path is inside the configured working directory
func copyInto(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to archive %s: %w", path, err)
	}
	return nil
}
