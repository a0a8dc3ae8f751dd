// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/stowaway/internal/config"
	"github.com/tomtom215/stowaway/internal/fingerprint"
	"github.com/tomtom215/stowaway/internal/logging"
	"github.com/tomtom215/stowaway/internal/task"
	"github.com/tomtom215/stowaway/internal/upload"
)

// Item kinds reported in SkippedItem.
const (
	ItemTask     = "task"
	ItemUploader = "uploader"
	ItemBinding  = "binding"
)

// SkippedItem is a configuration item left out of the plan.
type SkippedItem struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Plan is the executable form of a configuration: built tasks, uploaders
// and bindings sharing one fingerprint store.
type Plan struct {
	Store     *fingerprint.Store
	Tasks     []*task.Task
	Uploaders []upload.Uploader
	Bindings  []*upload.Binding
	Retention []RetentionRule
	Skipped   []SkippedItem
}

// BuildPlan turns cfg into a Plan. Invalid items are skipped with a warning
// and listed in Plan.Skipped; the rest of the configuration proceeds.
// Placeholders are expanded against cfg.Properties and the built-ins at now.
func BuildPlan(ctx context.Context, cfg *config.Config, store *fingerprint.Store, now time.Time) *Plan {
	p := &Plan{Store: store}
	log := logging.Ctx(ctx)
	vars := config.NewVars(now, cfg.Properties)

	archiver := newArchiver(cfg.Engine)
	dumper := &task.MySQLDumper{Binary: cfg.Engine.MySQLDumpBinary}

	tasks := make(map[string]*task.Task, len(cfg.Tasks))
	for _, tc := range cfg.Tasks {
		tc, err := vars.ExpandTask(tc)
		if err == nil {
			err = config.ValidateTask(tc)
		}
		if err == nil && tasks[tc.Name] != nil {
			err = fmt.Errorf("duplicate task_name %q", tc.Name)
		}
		if err != nil {
			p.skip(ctx, ItemTask, tc.Name, err)
			continue
		}

		t := newTask(tc, archiver, dumper, store)
		tasks[tc.Name] = t
		p.Tasks = append(p.Tasks, t)
		if tc.KeepLocal > 0 {
			p.Retention = append(p.Retention, RetentionRule{Task: t, Keep: tc.KeepLocal})
		}
		log.Debug().Str("task", tc.Name).Str("type", tc.Type).Msg("Task added")
	}

	uploaders := make(map[string]upload.Uploader, len(cfg.Uploaders))
	for _, uc := range cfg.Uploaders {
		uc, err := vars.ExpandUploader(uc)
		if err == nil {
			err = config.ValidateUploader(uc)
		}
		if err == nil && uploaders[uc.Name] != nil {
			err = fmt.Errorf("duplicate uploader name %q", uc.Name)
		}
		if err != nil {
			p.skip(ctx, ItemUploader, uc.Name, err)
			continue
		}

		u := upload.NewBreaker(newUploader(uc), uc.BreakerThreshold, uc.BreakerCooldown)
		uploaders[uc.Name] = u
		p.Uploaders = append(p.Uploaders, u)
		log.Debug().Str("uploader", uc.Name).Str("type", uc.Type).Msg("Uploader added")
	}

	for _, bc := range cfg.Bindings {
		name := bc.TaskName + " -> " + bc.UploaderName
		bc, err := vars.ExpandBinding(bc)
		if err == nil {
			err = config.ValidateBinding(bc)
		}
		if err != nil {
			p.skip(ctx, ItemBinding, name, err)
			continue
		}

		t, ok := tasks[bc.TaskName]
		if !ok {
			p.skip(ctx, ItemBinding, name, fmt.Errorf("unknown task %q", bc.TaskName))
			continue
		}
		u, ok := uploaders[bc.UploaderName]
		if !ok {
			p.skip(ctx, ItemBinding, name, fmt.Errorf("unknown uploader %q", bc.UploaderName))
			continue
		}

		p.Bindings = append(p.Bindings, &upload.Binding{
			Task:      t,
			Uploader:  u,
			RemoteDir: bc.RemoteDir,
			Timeout:   cfg.Engine.UploadTimeout,
		})
		log.Debug().
			Str("task", bc.TaskName).
			Str("uploader", bc.UploaderName).
			Str("remote_dir", bc.RemoteDir).
			Msg("Upload binding added")
	}

	log.Info().
		Int("tasks", len(p.Tasks)).
		Int("uploaders", len(p.Uploaders)).
		Int("bindings", len(p.Bindings)).
		Int("skipped", len(p.Skipped)).
		Msg("Backup plan built")
	return p
}

func (p *Plan) skip(ctx context.Context, kind, name string, err error) {
	logging.Ctx(ctx).Warn().
		Err(err).
		Str("item", kind).
		Str("name", name).
		Msg("Skipping invalid configuration item")
	p.Skipped = append(p.Skipped, SkippedItem{Kind: kind, Name: name, Reason: err.Error()})
}

func newArchiver(cfg config.EngineConfig) task.Archiver {
	if cfg.Archiver == "native" {
		return &task.GzipArchiver{}
	}
	return &task.TarArchiver{Binary: cfg.TarBinary}
}

func newTask(tc config.TaskConfig, archiver task.Archiver, dumper task.Dumper, store *fingerprint.Store) *task.Task {
	switch tc.Type {
	case config.TaskTypePack:
		return task.NewArchiveTask(task.ArchiveOptions{
			Name:      tc.Name,
			OutputDir: tc.OutputDir,
			WorkDir:   tc.TarRunDir,
			Paths:     tc.BackupList,
		}, archiver)
	case config.TaskTypeMySQL:
		return task.NewDatabaseDumpTask(task.DumpOptions{
			Name:      tc.Name,
			OutputDir: tc.OutputDir,
			Options:   tc.DumpOption,
		}, dumper, archiver)
	default:
		return task.NewSingleFileTask(task.SingleFileOptions{
			Name:           tc.Name,
			OutputDir:      tc.OutputDir,
			SourceFile:     tc.SourceFile,
			BackupOnChange: tc.BackupOnChange,
		}, store)
	}
}

func newUploader(uc config.UploaderConfig) upload.Uploader {
	retry := retryPolicy(uc)
	if uc.Type == config.UploaderTypeFTP {
		return upload.NewFTPUploader(uc.Name, upload.FTPConfig{
			Host:               uc.Host,
			Port:               uc.Port,
			Username:           uc.Username,
			Password:           uc.Password,
			Secure:             uc.Secure,
			InsecureSkipVerify: uc.InsecureSkipVerify,
			Passive:            uc.PassiveMode(),
			DisableEPSV:        uc.DisableEPSV,
			Timeout:            uc.Timeout,
			BandwidthLimit:     uc.BandwidthLimit,
			Retry:              retry,
		})
	}
	return upload.NewObjectStorageUploader(uc.Name, upload.ObjectStorageConfig{
		AccessID:       uc.AccessID,
		AccessKey:      uc.AccessKey,
		Endpoint:       uc.Endpoint,
		Bucket:         uc.Bucket,
		Region:         uc.Region,
		PathStyle:      uc.PathStyle,
		BandwidthLimit: uc.BandwidthLimit,
		Retry:          retry,
	})
}

// retryPolicy fills unset fields from upload.DefaultRetryPolicy.
func retryPolicy(uc config.UploaderConfig) upload.RetryPolicy {
	p := upload.DefaultRetryPolicy()
	if uc.RetryAttempts > 0 {
		p.Attempts = uc.RetryAttempts
	}
	if len(uc.RetryBackoff) > 0 {
		p.Backoff = uc.RetryBackoff
	}
	return p
}
