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
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/stowaway/internal/fingerprint"
	"github.com/tomtom215/stowaway/internal/logging"
	"github.com/tomtom215/stowaway/internal/task"
)

func phasesOf(rep *Report) string {
	parts := make([]string, len(rep.Phases))
	for i, p := range rep.Phases {
		parts[i] = string(p)
	}
	return strings.Join(parts, ",")
}

func TestEngineIsolatesFailingTask(t *testing.T) {
	t.Parallel()

	p := newTestPlan(t)
	up := &MockUploader{name: "oss1"}

	web := p.archiveTask("web", &MockArchiver{})
	broken := p.archiveTask("broken", &MockArchiver{err: errArchiveFailed})
	db := p.archiveTask("db", &MockArchiver{})
	hosts, src := p.singleFileTask("hosts", "127.0.0.1 localhost", true)
	for _, tk := range []*task.Task{web, broken, db, hosts} {
		p.bind(tk, up, "backup")
	}

	rep, err := p.engine(true, 3).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := phasesOf(rep); got != "init,load_store,run_tasks,run_uploads,persist_store,done" {
		t.Errorf("phases = %s", got)
	}
	if rep.Counts.TasksSucceeded != 3 || rep.Counts.TasksFailed != 1 {
		t.Errorf("task counts = %+v", rep.Counts)
	}
	if rep.Counts.UploadsSucceeded != 3 || rep.Counts.UploadsSkipped != 1 || rep.Counts.UploadsFailed != 0 {
		t.Errorf("upload counts = %+v", rep.Counts)
	}
	if rep.Failures() != 1 {
		t.Errorf("Failures() = %d, want 1", rep.Failures())
	}
	if broken.Result().Status != task.StatusFailed || !errors.Is(broken.Result().Err, errArchiveFailed) {
		t.Errorf("broken task result = %+v", broken.Result())
	}
	if len(up.uploaded()) != 3 {
		t.Errorf("expected 3 uploads, got %v", up.uploaded())
	}
	for _, o := range rep.Uploads {
		if o.Task == "broken" && o.Status != task.StatusSkipped {
			t.Errorf("binding of failed task should be skipped, got %s", o.Status)
		}
	}

	// The store still reached persist_store despite the failure.
	stored := fingerprint.NewStore()
	if err := stored.Load(p.storePath()); err != nil {
		t.Fatalf("store not persisted: %v", err)
	}
	want, _ := fingerprint.HashFile(src)
	if got, _ := stored.Get(src); got != want {
		t.Errorf("persisted hash = %q, want %q", got, want)
	}
	if !rep.StoreSaved {
		t.Error("report should record the save")
	}
	if up.closed != 1 {
		t.Errorf("uploader should be closed once after uploads, got %d", up.closed)
	}
}

func TestEngineTasksFinishBeforeUploads(t *testing.T) {
	t.Parallel()

	p := newTestPlan(t)
	events := &eventLog{}
	up := &MockUploader{name: "ftp1", events: events}

	for i, delay := range []time.Duration{30, 5, 20, 0, 10} {
		tk := p.archiveTask(string(rune('a'+i)), &MockArchiver{delay: delay * time.Millisecond, events: events})
		p.bind(tk, up, "")
	}

	if _, err := p.engine(true, 2).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := events.snapshot()
	if len(got) != 10 {
		t.Fatalf("expected 10 events, got %v", got)
	}
	for i, e := range got {
		want := "task"
		if i >= 5 {
			want = "upload"
		}
		if e != want {
			t.Fatalf("event %d = %s, want %s (events %v)", i, e, want, got)
		}
	}
}

func TestEngineSecondRunSkipsUnchangedFile(t *testing.T) {
	t.Parallel()

	p := newTestPlan(t)
	up := &MockUploader{name: "oss1"}
	hosts, _ := p.singleFileTask("hosts", "127.0.0.1 localhost", true)
	p.bind(hosts, up, "etc")

	first, err := p.engine(false, 1).Run(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Counts.TasksSucceeded != 1 || first.Counts.UploadsSucceeded != 1 {
		t.Fatalf("first run counts = %+v", first.Counts)
	}

	second, err := p.engine(false, 1).Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !second.StoreLoaded {
		t.Error("second run should load the persisted store")
	}
	if second.Counts.TasksSkipped != 1 || second.Counts.UploadsSkipped != 1 {
		t.Errorf("second run counts = %+v", second.Counts)
	}
	if second.StoreSaved {
		t.Error("unchanged store should not be rewritten")
	}
	if n := len(up.uploaded()); n != 1 {
		t.Errorf("unchanged file uploaded again: %d uploads", n)
	}
}

func TestEngineMissingStoreFailsClosed(t *testing.T) {
	t.Parallel()

	p := newTestPlan(t)
	p.archiveTask("web", &MockArchiver{})

	rep, err := p.engine(false, 1).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.StoreLoaded || rep.StoreError == "" {
		t.Errorf("expected load failure in report, got loaded=%v error=%q", rep.StoreLoaded, rep.StoreError)
	}
	if rep.Counts.TasksSucceeded != 1 {
		t.Errorf("tasks should still run, counts %+v", rep.Counts)
	}
	// The empty store is written so the next run has a baseline.
	if _, err := os.Stat(p.storePath()); err != nil {
		t.Errorf("store file should be created: %v", err)
	}
}

func TestEngineUnreadableStore(t *testing.T) {
	t.Parallel()

	// A line longer than the scanner limit makes the file unreadable.
	unreadable := strings.Repeat("f", 2*1024*1024) + " /etc/hosts\n"

	t.Run("left untouched without changes", func(t *testing.T) {
		t.Parallel()

		p := newTestPlan(t)
		p.archiveTask("web", &MockArchiver{})
		if err := os.WriteFile(p.storePath(), []byte(unreadable), 0o600); err != nil {
			t.Fatal(err)
		}

		rep, err := p.engine(false, 1).Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if rep.StoreLoaded || rep.StoreError == "" || rep.StoreSaved {
			t.Errorf("report store fields loaded=%v error=%q saved=%v", rep.StoreLoaded, rep.StoreError, rep.StoreSaved)
		}
		data, err := os.ReadFile(p.storePath())
		if err != nil || string(data) != unreadable {
			t.Error("unreadable store should not be rewritten when nothing changed")
		}
	})

	t.Run("rewritten with this run's entries", func(t *testing.T) {
		t.Parallel()

		p := newTestPlan(t)
		_, src := p.singleFileTask("hosts", "127.0.0.1 localhost", true)
		if err := os.WriteFile(p.storePath(), []byte(unreadable), 0o600); err != nil {
			t.Fatal(err)
		}

		rep, err := p.engine(false, 1).Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if rep.Counts.TasksSucceeded != 1 || !rep.StoreSaved {
			t.Fatalf("expected copy and save, counts %+v saved=%v", rep.Counts, rep.StoreSaved)
		}
		h, _ := fingerprint.HashFile(src)
		data, err := os.ReadFile(p.storePath())
		if err != nil {
			t.Fatal(err)
		}
		if want := h + " " + src + "\n"; string(data) != want {
			t.Errorf("store content = %.80q, want %q", data, want)
		}
	})
}

func TestEngineRequiredStoreAborts(t *testing.T) {
	t.Parallel()

	p := newTestPlan(t)
	tk := p.archiveTask("web", &MockArchiver{})
	e := NewEngine(Options{FingerprintFile: p.storePath(), RequireFingerprintFile: true}, p.plan)

	rep, err := e.Run(context.Background())
	if !errors.Is(err, ErrStoreRequired) {
		t.Fatalf("expected ErrStoreRequired, got %v", err)
	}
	if rep == nil || phasesOf(rep) != "init,load_store,done" {
		t.Fatalf("unexpected report %+v", rep)
	}
	if tk.Result().Status != task.StatusPending {
		t.Errorf("no task may run, got %s", tk.Result().Status)
	}
	if _, statErr := os.Stat(p.storePath()); !os.IsNotExist(statErr) {
		t.Error("store must not be created on abort")
	}
}

func TestEngineSaveFailureReturned(t *testing.T) {
	t.Parallel()

	p := newTestPlan(t)
	p.singleFileTask("hosts", "x", false)
	blocker := filepath.Join(p.dir, "blocker")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	e := NewEngine(Options{FingerprintFile: filepath.Join(blocker, "md5_list.txt")}, p.plan)

	rep, err := e.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "persist fingerprint store") {
		t.Fatalf("expected save error, got %v", err)
	}
	if rep == nil || rep.Counts.TasksSucceeded != 1 {
		t.Errorf("report should still be returned with outcomes, got %+v", rep)
	}
	if rep.StoreSaved {
		t.Error("failed save must not be reported as saved")
	}
}

func TestEngineRecoversTaskPanic(t *testing.T) {
	t.Parallel()

	p := newTestPlan(t)
	up := &MockUploader{name: "u"}
	bad := p.archiveTask("bad", &MockArchiver{panic: true})
	good := p.archiveTask("good", &MockArchiver{})
	p.bind(bad, up, "")
	p.bind(good, up, "")

	rep, err := p.engine(true, 2).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.Tasks[0].Status != task.StatusFailed || !strings.Contains(rep.Tasks[0].Error, "archiver exploded") {
		t.Errorf("panicking task outcome = %+v", rep.Tasks[0])
	}
	if rep.Tasks[1].Status != task.StatusSucceeded {
		t.Errorf("sibling task outcome = %+v", rep.Tasks[1])
	}
	if len(up.uploaded()) != 1 {
		t.Errorf("only the good task should upload, got %v", up.uploaded())
	}
}

func TestEngineUploadFailureContained(t *testing.T) {
	t.Parallel()

	p := newTestPlan(t)
	down := &MockUploader{name: "down", err: errors.New("530 login incorrect")}
	ok := &MockUploader{name: "ok"}
	tk := p.archiveTask("web", &MockArchiver{})
	p.bind(tk, down, "a")
	p.bind(tk, ok, "b")

	rep, err := p.engine(true, 3).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.Counts.UploadsFailed != 1 || rep.Counts.UploadsSucceeded != 1 {
		t.Errorf("upload counts = %+v", rep.Counts)
	}
	if rep.Uploads[0].Error == "" {
		t.Error("failure reason should be reported")
	}
}

func TestEngineTaskTimeout(t *testing.T) {
	t.Parallel()

	p := newTestPlan(t)
	tk := p.archiveTask("slow", &contextArchiver{})
	e := NewEngine(Options{FingerprintFile: p.storePath(), TaskTimeout: 20 * time.Millisecond}, p.plan)

	rep, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !errors.Is(tk.Result().Err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", tk.Result().Err)
	}
	if rep.Counts.TasksFailed != 1 {
		t.Errorf("timed out task should fail, counts %+v", rep.Counts)
	}
}

// contextArchiver blocks until its context ends.
type contextArchiver struct{}

func (contextArchiver) Archive(ctx context.Context, _, _ string, _ []string, _ bool) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestEngineUsesRunIDFromContext(t *testing.T) {
	t.Parallel()

	p := newTestPlan(t)
	ctx := logging.WithRunID(context.Background(), "abc12345")
	rep, err := p.engine(false, 1).Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.RunID != "abc12345" {
		t.Errorf("RunID = %q", rep.RunID)
	}

	rep, _ = p.engine(false, 1).Run(context.Background())
	if len(rep.RunID) != 8 {
		t.Errorf("generated RunID = %q, want 8 characters", rep.RunID)
	}
}

func TestNewEngineDefaults(t *testing.T) {
	t.Parallel()

	e := NewEngine(Options{}, &Plan{Store: fingerprint.NewStore()})
	if e.opts.Workers != 3 || e.opts.FingerprintFile != "md5_list.txt" {
		t.Errorf("unexpected defaults %+v", e.opts)
	}
}
