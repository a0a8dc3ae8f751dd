// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/stowaway/internal/fingerprint"
	"github.com/tomtom215/stowaway/internal/task"
	"github.com/tomtom215/stowaway/internal/upload"
)

var errArchiveFailed = errors.New("tar: exit status 2")

// eventLog records the order in which tasks finish and uploads start.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// MockArchiver writes the joined paths to dest.
type MockArchiver struct {
	delay  time.Duration
	err    error
	panic  bool
	events *eventLog
}

func (a *MockArchiver) Archive(_ context.Context, dest, _ string, paths []string, _ bool) error {
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	defer a.events.add("task")
	if a.panic {
		panic("archiver exploded")
	}
	if a.err != nil {
		return a.err
	}
	content := filepath.Base(dest)
	for _, p := range paths {
		content += p
	}
	return os.WriteFile(dest, []byte(content), 0o600) //nolint:gosec // test helper
}

// MockUploader records uploads and optionally fails them.
type MockUploader struct {
	name   string
	err    error
	events *eventLog

	mu      sync.Mutex
	uploads []string
	closed  int
}

func (u *MockUploader) Name() string { return u.name }

func (u *MockUploader) Upload(_ context.Context, src upload.Source, remoteDir string) error {
	u.events.add("upload")
	u.mu.Lock()
	u.uploads = append(u.uploads, upload.RemotePath(remoteDir, src.OutputFileName()))
	u.mu.Unlock()
	return u.err
}

func (u *MockUploader) Close() error {
	u.mu.Lock()
	u.closed++
	u.mu.Unlock()
	return nil
}

func (u *MockUploader) uploaded() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.uploads...)
}

// testPlan collects tasks and bindings for an engine under test.
type testPlan struct {
	t     *testing.T
	dir   string
	store *fingerprint.Store
	plan  *Plan
}

func newTestPlan(t *testing.T) *testPlan {
	t.Helper()
	store := fingerprint.NewStore()
	return &testPlan{t: t, dir: t.TempDir(), store: store, plan: &Plan{Store: store}}
}

func (p *testPlan) archiveTask(name string, a task.Archiver) *task.Task {
	tk := task.NewArchiveTask(task.ArchiveOptions{
		Name:      name,
		OutputDir: filepath.Join(p.dir, "out", name),
		WorkDir:   p.dir,
		Paths:     []string{name},
	}, a)
	p.plan.Tasks = append(p.plan.Tasks, tk)
	return tk
}

func (p *testPlan) singleFileTask(name, content string, onChange bool) (*task.Task, string) {
	p.t.Helper()
	src := filepath.Join(p.dir, name+".src")
	if err := os.WriteFile(src, []byte(content), 0o600); err != nil {
		p.t.Fatalf("failed to write source: %v", err)
	}
	tk := task.NewSingleFileTask(task.SingleFileOptions{
		Name:           name,
		OutputDir:      filepath.Join(p.dir, "out", name),
		SourceFile:     src,
		BackupOnChange: onChange,
	}, p.store)
	p.plan.Tasks = append(p.plan.Tasks, tk)
	return tk, src
}

func (p *testPlan) bind(tk *task.Task, u upload.Uploader, remoteDir string) {
	p.plan.Bindings = append(p.plan.Bindings, &upload.Binding{Task: tk, Uploader: u, RemoteDir: remoteDir})
}

func (p *testPlan) storePath() string {
	return filepath.Join(p.dir, "md5_list.txt")
}

func (p *testPlan) engine(parallel bool, workers int) *Engine {
	return NewEngine(Options{
		Parallel:        parallel,
		Workers:         workers,
		FingerprintFile: p.storePath(),
	}, p.plan)
}
