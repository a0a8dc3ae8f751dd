// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

package backup

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/stowaway/internal/config"
	"github.com/tomtom215/stowaway/internal/fingerprint"
	"github.com/tomtom215/stowaway/internal/task"
	"github.com/tomtom215/stowaway/internal/upload"
)

var planNow = time.Date(2026, 3, 7, 4, 5, 6, 0, time.UTC)

func planConfig() *config.Config {
	return &config.Config{
		Engine: config.EngineConfig{
			Workers:         3,
			FingerprintFile: "md5_list.txt",
			Archiver:        "tar",
			TarBinary:       "tar",
			MySQLDumpBinary: "mysqldump",
			UploadTimeout:   time.Minute,
		},
		Properties: map[string]string{"base": "/var/backups"},
		Tasks: []config.TaskConfig{
			{
				Type:       config.TaskTypePack,
				Name:       "web",
				OutputDir:  "${base}/web",
				TarRunDir:  "/srv",
				BackupList: []string{"www"},
				KeepLocal:  5,
			},
			{
				Type:       config.TaskTypeMySQL,
				Name:       "db",
				OutputDir:  "${base}/db",
				DumpOption: "-uroot shop",
			},
			{
				Type:       config.TaskTypeSingleFile,
				Name:       "hosts",
				OutputDir:  "${base}/etc",
				SourceFile: "/etc/hosts",
			},
		},
		Uploaders: []config.UploaderConfig{
			{
				Type:      config.UploaderTypeOSS,
				Name:      "oss1",
				AccessID:  "id",
				AccessKey: "key",
				Endpoint:  "oss-cn-hangzhou.aliyuncs.com",
				Bucket:    "backups",
			},
			{
				Type:     config.UploaderTypeFTP,
				Name:     "ftp1",
				Host:     "ftp.example.com",
				Username: "u",
				Password: "p",
			},
		},
		Bindings: []config.BindingConfig{
			{TaskName: "web", UploaderName: "oss1", RemoteDir: "web/${CURRENT_DATE}"},
			{TaskName: "db", UploaderName: "ftp1", RemoteDir: "db"},
		},
	}
}

func skippedNames(p *Plan) []string {
	names := make([]string, len(p.Skipped))
	for i, s := range p.Skipped {
		names[i] = s.Kind + ":" + s.Name
	}
	return names
}

func TestBuildPlan(t *testing.T) {
	t.Parallel()

	p := BuildPlan(context.Background(), planConfig(), fingerprint.NewStore(), planNow)

	if len(p.Skipped) != 0 {
		t.Fatalf("unexpected skipped items: %+v", p.Skipped)
	}
	if len(p.Tasks) != 3 || len(p.Uploaders) != 2 || len(p.Bindings) != 2 {
		t.Fatalf("plan sizes tasks=%d uploaders=%d bindings=%d", len(p.Tasks), len(p.Uploaders), len(p.Bindings))
	}

	kinds := []task.Kind{task.KindArchive, task.KindDump, task.KindSingleFile}
	for i, tk := range p.Tasks {
		if tk.Kind() != kinds[i] {
			t.Errorf("task %s kind = %s, want %s", tk.Name(), tk.Kind(), kinds[i])
		}
	}
	if got := p.Tasks[0].OutputDir(); got != "/var/backups/web" {
		t.Errorf("output_dir not expanded: %q", got)
	}

	b := p.Bindings[0]
	if b.Task != p.Tasks[0] || b.Uploader.Name() != "oss1" {
		t.Errorf("binding wired to %s -> %s", b.Task.Name(), b.Uploader.Name())
	}
	if b.RemoteDir != "web/20260307" {
		t.Errorf("remote_dir = %q", b.RemoteDir)
	}
	if b.Timeout != time.Minute {
		t.Errorf("binding timeout = %v", b.Timeout)
	}

	if len(p.Retention) != 1 || p.Retention[0].Task != p.Tasks[0] || p.Retention[0].Keep != 5 {
		t.Errorf("retention rules = %+v", p.Retention)
	}
}

func TestBuildPlanSkipsInvalidItems(t *testing.T) {
	t.Parallel()

	cfg := planConfig()
	cfg.Tasks = append(cfg.Tasks,
		config.TaskConfig{Type: config.TaskTypePack, Name: "empty", OutputDir: "/x", TarRunDir: "/"},
		config.TaskConfig{Type: config.TaskTypeSingleFile, Name: "ghost", OutputDir: "${nowhere}", SourceFile: "/a"},
		config.TaskConfig{Type: config.TaskTypeSingleFile, Name: "web", OutputDir: "/dup", SourceFile: "/a"},
	)
	cfg.Uploaders = append(cfg.Uploaders,
		config.UploaderConfig{Type: config.UploaderTypeFTP, Name: "noauth", Host: "h"},
	)
	cfg.Bindings = append(cfg.Bindings,
		config.BindingConfig{TaskName: "missing", UploaderName: "oss1"},
		config.BindingConfig{TaskName: "web", UploaderName: "noauth"},
		config.BindingConfig{TaskName: "ghost", UploaderName: "ftp1"},
	)

	p := BuildPlan(context.Background(), cfg, fingerprint.NewStore(), planNow)

	want := []string{
		"task:empty",
		"task:ghost",
		"task:web",
		"uploader:noauth",
		"binding:missing -> oss1",
		"binding:web -> noauth",
		"binding:ghost -> ftp1",
	}
	got := skippedNames(p)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("skipped = %v, want %v", got, want)
	}

	reasons := map[string]string{}
	for _, s := range p.Skipped {
		reasons[s.Kind+":"+s.Name] = s.Reason
	}
	checks := map[string]string{
		"task:empty":              "backup_list",
		"task:ghost":              "nowhere",
		"task:web":                "duplicate",
		"uploader:noauth":         "username",
		"binding:missing -> oss1": "unknown task",
		"binding:web -> noauth":   "unknown uploader",
	}
	for key, substr := range checks {
		if !strings.Contains(reasons[key], substr) {
			t.Errorf("%s reason = %q, want it to mention %q", key, reasons[key], substr)
		}
	}

	// The valid items are unaffected.
	if len(p.Tasks) != 3 || len(p.Uploaders) != 2 || len(p.Bindings) != 2 {
		t.Errorf("valid items dropped: tasks=%d uploaders=%d bindings=%d", len(p.Tasks), len(p.Uploaders), len(p.Bindings))
	}
	if p.Tasks[0].Kind() != task.KindArchive {
		t.Error("the first task named web should win over the duplicate")
	}
}

func TestBuildPlanWrapsBreaker(t *testing.T) {
	t.Parallel()

	cfg := planConfig()
	cfg.Uploaders[0].BreakerThreshold = 3
	cfg.Uploaders[0].BreakerCooldown = time.Second

	p := BuildPlan(context.Background(), cfg, fingerprint.NewStore(), planNow)

	if _, ok := p.Uploaders[0].(*upload.Breaker); !ok {
		t.Errorf("uploader with breaker_threshold should be wrapped, got %T", p.Uploaders[0])
	}
	if _, ok := p.Uploaders[1].(*upload.FTPUploader); !ok {
		t.Errorf("uploader without threshold should not be wrapped, got %T", p.Uploaders[1])
	}
	if p.Bindings[0].Uploader != p.Uploaders[0] {
		t.Error("bindings should use the wrapped uploader")
	}
}

func TestNewArchiver(t *testing.T) {
	t.Parallel()

	if _, ok := newArchiver(config.EngineConfig{Archiver: "native"}).(*task.GzipArchiver); !ok {
		t.Error("native should select the in-process archiver")
	}
	a, ok := newArchiver(config.EngineConfig{Archiver: "tar", TarBinary: "/usr/bin/gtar"}).(*task.TarArchiver)
	if !ok || a.Binary != "/usr/bin/gtar" {
		t.Errorf("tar archiver = %+v", a)
	}
}

func TestRetryPolicy(t *testing.T) {
	t.Parallel()

	def := upload.DefaultRetryPolicy()
	if got := retryPolicy(config.UploaderConfig{}); got.Attempts != def.Attempts || len(got.Backoff) != len(def.Backoff) {
		t.Errorf("unset fields should use defaults, got %+v", got)
	}

	got := retryPolicy(config.UploaderConfig{RetryAttempts: 7, RetryBackoff: []time.Duration{time.Second}})
	if got.Attempts != 7 || len(got.Backoff) != 1 || got.Backoff[0] != time.Second {
		t.Errorf("overrides not applied: %+v", got)
	}
}
