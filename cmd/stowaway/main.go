// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

// Package main is the entry point for the stowaway command.
//
// Stowaway runs a configured set of backup tasks (directory archives, MySQL
// dumps, single files) and pushes their outputs to S3-compatible object
// storage and FTP servers. It is meant to be started by cron or a systemd
// timer: each invocation performs one complete run and exits.
//
// # Commands
//
//	stowaway run                 run every task and upload once
//	stowaway validate            check the configuration and show the plan
//	stowaway fingerprint list    print the stored content hashes
//	stowaway fingerprint hash F  print the content hash of a file
//	stowaway version             print the version
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Command line flags (run only)
//   - Environment variables (STOWAWAY_*)
//   - Config file (--config, STOWAWAY_CONFIG, ./config.yaml, /etc/stowaway/config.yaml)
//   - Built-in defaults
//
// # Exit Codes
//
//	0  every task and upload succeeded or was skipped
//	1  the run could not start or the fingerprint store could not be saved
//	2  the run finished but at least one task or upload failed
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the run context. Running tasks and transfers
// stop, every remaining item fails fast, and the fingerprint store is still
// persisted before exit.
package main

import (
	"context"
	"os"
)

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout))
}
