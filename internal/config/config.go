// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

package config

import (
	"time"
)

// Config holds one backup job: engine settings plus the task, uploader and
// binding lists.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in values for the engine and logging sections
//  2. Config File: YAML file describing tasks, uploaders and bindings
//  3. Environment Variables: STOWAWAY_* overrides for engine and logging
//
// Item lists are never defaulted; an empty list is a valid (if idle) job.
type Config struct {
	Engine     EngineConfig      `koanf:"engine"`
	Logging    LoggingConfig     `koanf:"logging"`
	Properties map[string]string `koanf:"properties"`
	Tasks      []TaskConfig      `koanf:"tasks"`
	Uploaders  []UploaderConfig  `koanf:"uploaders"`
	Bindings   []BindingConfig   `koanf:"upload_tasks"`

	// Source is the file the configuration was read from, empty when none.
	Source string `koanf:"-"`
}

// EngineConfig controls how one run executes.
type EngineConfig struct {
	Parallel               bool          `koanf:"parallel"`
	Workers                int           `koanf:"workers" validate:"min=1,max=256"`
	FingerprintFile        string        `koanf:"fingerprint_file" validate:"required"`
	RequireFingerprintFile bool          `koanf:"require_fingerprint_file"`
	TaskTimeout            time.Duration `koanf:"task_timeout" validate:"min=0"`
	UploadTimeout          time.Duration `koanf:"upload_timeout" validate:"min=0"`
	Archiver               string        `koanf:"archiver" validate:"oneof=tar native"`
	TarBinary              string        `koanf:"tar_binary" validate:"required_if=Archiver tar"`
	MySQLDumpBinary        string        `koanf:"mysqldump_binary" validate:"required"`
	ReportFile             string        `koanf:"report_file"`
	MetricsFile            string        `koanf:"metrics_file"`
}

// LoggingConfig mirrors logging.Config for the file and environment layers.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error off"`
	Format string `koanf:"format" validate:"oneof=console json"`
	Caller bool   `koanf:"caller"`
}

// Task types as written in the configuration file.
const (
	TaskTypePack       = "pack"
	TaskTypeMySQL      = "mysql"
	TaskTypeSingleFile = "single_file"
)

// TaskConfig describes one backup task. Which fields apply depends on Type.
type TaskConfig struct {
	Type      string `koanf:"type" validate:"required,oneof=pack mysql single_file"`
	Name      string `koanf:"task_name" validate:"required"`
	OutputDir string `koanf:"output_dir" validate:"required"`

	// pack
	TarRunDir  string   `koanf:"tar_run_dir" validate:"required_if=Type pack"`
	BackupList []string `koanf:"backup_list" validate:"dive,required"`

	// mysql
	DumpOption string `koanf:"dump_option" validate:"required_if=Type mysql"`

	// single_file
	SourceFile     string `koanf:"source_file" validate:"required_if=Type single_file"`
	BackupOnChange bool   `koanf:"backup_on_change"`

	// KeepLocal keeps the newest N artifacts of this task in OutputDir after
	// the run. Zero keeps everything.
	KeepLocal int `koanf:"keep_local" validate:"min=0"`
}

// Uploader types as written in the configuration file.
const (
	UploaderTypeOSS = "oss"
	UploaderTypeFTP = "ftp"
)

// UploaderConfig describes one remote target.
type UploaderConfig struct {
	Type string `koanf:"type" validate:"required,oneof=oss ftp"`
	Name string `koanf:"name" validate:"required"`

	// oss
	AccessID  string `koanf:"access_id" validate:"required_if=Type oss"`
	AccessKey string `koanf:"access_key" validate:"required_if=Type oss"`
	Endpoint  string `koanf:"endpoint" validate:"required_if=Type oss"`
	Bucket    string `koanf:"bucket_name" validate:"required_if=Type oss"`
	Region    string `koanf:"region"`
	PathStyle bool   `koanf:"path_style"`

	// ftp
	Host               string `koanf:"host" validate:"required_if=Type ftp"`
	Port               int    `koanf:"port" validate:"min=0,max=65535"`
	Username           string `koanf:"username" validate:"required_if=Type ftp"`
	Password           string `koanf:"password" validate:"required_if=Type ftp"`
	Secure             bool   `koanf:"secure"`
	InsecureSkipVerify bool   `koanf:"insecure_skip_verify"`
	Passive            *bool  `koanf:"passive"`
	DisableEPSV        bool   `koanf:"disable_epsv"`

	// transfer policy, shared by both types
	Timeout          time.Duration   `koanf:"timeout" validate:"min=0"`
	BandwidthLimit   int             `koanf:"bandwidth_limit" validate:"min=0"`
	RetryAttempts    int             `koanf:"retry_attempts" validate:"min=0,max=20"`
	RetryBackoff     []time.Duration `koanf:"retry_backoff" validate:"dive,min=0"`
	BreakerThreshold int             `koanf:"breaker_threshold" validate:"min=0"`
	BreakerCooldown  time.Duration   `koanf:"breaker_cooldown" validate:"min=0"`
}

// PassiveMode reports whether passive FTP was requested. It defaults to true.
func (u UploaderConfig) PassiveMode() bool {
	return u.Passive == nil || *u.Passive
}

// BindingConfig links one task's output to one uploader.
type BindingConfig struct {
	TaskName     string `koanf:"task_name" validate:"required"`
	UploaderName string `koanf:"uploader_name" validate:"required"`
	RemoteDir    string `koanf:"remote_dir"`
}
