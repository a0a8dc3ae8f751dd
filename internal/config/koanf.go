// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/stowaway/config.yaml",
	"/etc/stowaway/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "STOWAWAY_CONFIG"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STOWAWAY_"

// Defaults for the engine section.
const (
	DefaultWorkers         = 3
	DefaultFingerprintFile = "md5_list.txt"
)

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Parallel:               false,
			Workers:                DefaultWorkers,
			FingerprintFile:        DefaultFingerprintFile,
			RequireFingerprintFile: false,
			TaskTimeout:            0, // no limit
			UploadTimeout:          0, // no limit
			Archiver:               "tar",
			TarBinary:              "tar",
			MySQLDumpBinary:        "mysqldump",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Caller: false,
		},
	}
}

// Load reads configuration using Koanf v2 with layered sources.
//
// path names the YAML file explicitly; when empty, STOWAWAY_CONFIG and then
// DefaultConfigPaths are tried. A missing explicit file is an error, while an
// empty search yields the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	configPath, err := findConfigFile(path)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// STOWAWAY_WORKERS -> engine.workers
	// STOWAWAY_LOG_LEVEL -> logging.level
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.Source = configPath

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile resolves the file to read. An explicit path or the
// environment override must exist; the default paths are optional.
func findConfigFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("failed to read config file: %w", err)
		}
		return explicit, nil
	}

	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return "", fmt.Errorf("failed to read config file from %s: %w", ConfigPathEnvVar, err)
		}
		return envPath, nil
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", nil
}

// envMappings maps lowercased environment names to koanf paths. Item lists
// have no environment form.
var envMappings = map[string]string{
	// Engine mappings
	"stowaway_parallel":                 "engine.parallel",
	"stowaway_workers":                  "engine.workers",
	"stowaway_fingerprint_file":         "engine.fingerprint_file",
	"stowaway_require_fingerprint_file": "engine.require_fingerprint_file",
	"stowaway_task_timeout":             "engine.task_timeout",
	"stowaway_upload_timeout":           "engine.upload_timeout",
	"stowaway_archiver":                 "engine.archiver",
	"stowaway_tar_binary":               "engine.tar_binary",
	"stowaway_mysqldump_binary":         "engine.mysqldump_binary",
	"stowaway_report_file":              "engine.report_file",
	"stowaway_metrics_file":             "engine.metrics_file",

	// Logging mappings
	"stowaway_log_level":  "logging.level",
	"stowaway_log_format": "logging.format",
	"stowaway_log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf paths.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}

	// For unmapped keys, return empty string to skip them
	// This prevents random environment variables from polluting config
	return ""
}
