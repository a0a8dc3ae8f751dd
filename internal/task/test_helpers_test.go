// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

package task

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"
)

// MockArchiver writes fixed content to dest instead of packaging.
type MockArchiver struct {
	mu      sync.Mutex
	content []byte
	err     error
	calls   []archiveCall
}

type archiveCall struct {
	dest, workDir string
	paths         []string
	remove        bool
}

func (m *MockArchiver) Archive(_ context.Context, dest, workDir string, paths []string, removeSources bool) error {
	m.mu.Lock()
	m.calls = append(m.calls, archiveCall{dest: dest, workDir: workDir, paths: paths, remove: removeSources})
	m.mu.Unlock()

	if m.err != nil {
		// Leave a partial file so cleanup is exercised.
		os.WriteFile(dest, []byte("partial"), 0o600) //nolint:errcheck,gosec // test helper
		return m.err
	}
	content := m.content
	if content == nil {
		content = []byte("archive")
	}
	return os.WriteFile(dest, content, 0o600) //nolint:gosec // test helper
}

// MockDumper writes fixed content to dest.
type MockDumper struct {
	content string
	err     error
	options string
}

func (m *MockDumper) Dump(_ context.Context, dest, options string) error {
	m.options = options
	if m.err != nil {
		return m.err
	}
	return os.WriteFile(dest, []byte(m.content), 0o600) //nolint:gosec // test helper
}

var errToolFailed = errors.New("exit status 2")

// fixedClock returns a clock frozen at t.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
