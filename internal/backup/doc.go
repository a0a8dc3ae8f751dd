// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

// Package backup orchestrates one backup run.
//
// # Overview
//
// BuildPlan turns a loaded configuration into a Plan: concrete tasks,
// uploaders (wrapped in a circuit breaker when configured) and upload
// bindings, all sharing one fingerprint store. Invalid items are skipped
// with a warning and listed in Plan.Skipped.
//
// Engine.Run then walks a fixed sequence of phases:
//
//	init -> load_store -> run_tasks -> run_uploads -> persist_store [-> prune] -> done
//
// # Concurrency
//
// Tasks and bindings each run through the same bounded pool: sequentially
// when Options.Parallel is false, otherwise on up to Options.Workers
// goroutines. The task batch is a barrier; no upload starts until every
// task has finished. There is no ordering between siblings.
//
// # Failure Isolation
//
// A failing or panicking task or binding is logged, recorded in the Report
// and never stops its siblings. The store is persisted after every run that
// got past load_store. The only run-aborting error is a missing or
// unreadable store when Options.RequireFingerprintFile is set; otherwise a
// load failure starts from an empty table and every artifact counts as
// changed.
//
// # Usage
//
//	cfg, err := config.Load(path)
//	if err != nil {
//		return err
//	}
//	plan := backup.BuildPlan(ctx, cfg, fingerprint.NewStore(), time.Now())
//	report, err := backup.NewEngine(backup.OptionsFromConfig(cfg.Engine), plan).Run(ctx)
package backup
