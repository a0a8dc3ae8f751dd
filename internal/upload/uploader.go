// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

// Package upload moves produced artifacts to remote storage.
//
// An Uploader transfers one local file to one remote path and owns its own
// retry and reconnect discipline. A Binding ties one task's output to one
// uploader and a remote directory, and is the failure boundary: a failing
// binding is logged and reported, never propagated to its siblings.
//
// Uploaders with a session (FTP) serialize their uploads on that session.
// Bindings that share such an uploader therefore run one at a time at the
// uploader even when the upload runner is parallel.
package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
)

// Kind identifies an uploader variant. The values match the configuration file.
type Kind string

const (
	KindObjectStorage Kind = "oss"
	KindFTP           Kind = "ftp"
)

// Source is a produced artifact to upload.
type Source interface {
	OutputFileName() string
	OutputPath() string
}

// Uploader moves one local file to remoteDir on a remote target. A nil error
// means the transfer was confirmed.
type Uploader interface {
	Name() string
	Upload(ctx context.Context, src Source, remoteDir string) error
}

// ErrSourceMissing is returned when the local artifact does not exist.
var ErrSourceMissing = errors.New("local artifact missing")

// RemotePath joins remoteDir and fileName with forward slashes regardless of
// the local path convention.
func RemotePath(remoteDir, fileName string) string {
	dir := strings.ReplaceAll(remoteDir, `\`, "/")
	if strings.TrimSpace(dir) == "" {
		return fileName
	}
	return path.Join(dir, fileName)
}

// checkSource verifies the artifact exists locally before any connection
// is made.
func checkSource(src Source) error {
	p := src.OutputPath()
	if p == "" || src.OutputFileName() == "" {
		return fmt.Errorf("%w: no output recorded", ErrSourceMissing)
	}
	info, err := os.Stat(p)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSourceMissing, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrSourceMissing, p)
	}
	return nil
}
