// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

/*
Package config loads the backup job description for Stowaway.

# Configuration Sources

Configuration is layered with Koanf v2, later layers overriding earlier ones:
  - Built-in defaults (engine and logging sections only)
  - A YAML file (--config, STOWAWAY_CONFIG, or the default search paths)
  - STOWAWAY_* environment variables (engine and logging keys only)

# Configuration Structure

  - EngineConfig: pool size, fingerprint file, timeouts, external tool paths
  - LoggingConfig: level, format, caller
  - Properties: user variables available to ${NAME} placeholders
  - TaskConfig: one backup task (pack, mysql, single_file)
  - UploaderConfig: one remote target (oss, ftp)
  - BindingConfig: one task to uploader link ("upload_tasks" in YAML)

# Environment Variables

Engine:
  - STOWAWAY_PARALLEL: Run tasks and uploads in a worker pool (default: false)
  - STOWAWAY_WORKERS: Worker pool size (default: 3)
  - STOWAWAY_FINGERPRINT_FILE: Fingerprint store path (default: md5_list.txt)
  - STOWAWAY_REQUIRE_FINGERPRINT_FILE: Abort when the store cannot be loaded
  - STOWAWAY_TASK_TIMEOUT, STOWAWAY_UPLOAD_TIMEOUT: Per item timeouts (0 disables)
  - STOWAWAY_ARCHIVER: tar or native (default: tar)
  - STOWAWAY_TAR_BINARY, STOWAWAY_MYSQLDUMP_BINARY: External tool paths
  - STOWAWAY_REPORT_FILE: Write the JSON run report here
  - STOWAWAY_METRICS_FILE: Write Prometheus textfile metrics here

Logging:
  - STOWAWAY_LOG_LEVEL: trace, debug, info, warn, error (default: info)
  - STOWAWAY_LOG_FORMAT: console or json (default: console)
  - STOWAWAY_LOG_CALLER: Include caller file:line

# Placeholders

Task, uploader and binding string fields may reference ${NAME} (a property or
a built-in), ${ENV:NAME} and ${ENV:NAME:default}. Built-ins are
CURRENT_DATETIME, CURRENT_DATE and CURRENT_TIME. An item that still holds an
unresolved placeholder after expansion is invalid and is skipped by the plan
builder; the rest of the configuration proceeds.
*/
package config
