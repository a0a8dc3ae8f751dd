// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/stowaway/internal/backup"
	"github.com/tomtom215/stowaway/internal/config"
	"github.com/tomtom215/stowaway/internal/fingerprint"
	"github.com/tomtom215/stowaway/internal/logging"
	"github.com/tomtom215/stowaway/internal/metrics"
)

type runOptions struct {
	*rootOptions
	parallel        bool
	workers         int
	fingerprintFile string
	reportFile      string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every task and upload once",
		Long: `Loads the fingerprint store, runs every task, uploads every produced
artifact to its bound uploaders, then saves the fingerprint store.
A failing task or upload does not stop the others.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.parallel, "parallel", false, "run tasks and uploads concurrently (overrides engine.parallel)")
	f.IntVarP(&opts.workers, "workers", "w", config.DefaultWorkers, "worker pool size when parallel (overrides engine.workers)")
	f.StringVar(&opts.fingerprintFile, "fingerprint-file", "", "fingerprint store path (overrides engine.fingerprint_file)")
	f.StringVar(&opts.reportFile, "report", "", "write the JSON run report to this path (overrides engine.report_file)")
	return cmd
}

// applyFlags copies explicitly set flags over the loaded configuration.
func (o *runOptions) applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("parallel") {
		cfg.Engine.Parallel = o.parallel
	}
	if f.Changed("workers") {
		cfg.Engine.Workers = o.workers
	}
	if f.Changed("fingerprint-file") {
		cfg.Engine.FingerprintFile = o.fingerprintFile
	}
	if f.Changed("report") {
		cfg.Engine.ReportFile = o.reportFile
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flag value: %w", err)
	}
	return nil
}

func (o *runOptions) run(cmd *cobra.Command) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return &exitError{code: exitFatal, err: err}
	}
	if err := o.applyFlags(cmd, cfg); err != nil {
		return &exitError{code: exitFatal, err: err}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	plan := backup.BuildPlan(ctx, cfg, fingerprint.NewStore(), time.Now())
	rep, runErr := backup.NewEngine(backup.OptionsFromConfig(cfg.Engine), plan).Run(ctx)

	if cfg.Engine.ReportFile != "" {
		if err := backup.WriteReport(cfg.Engine.ReportFile, rep); err != nil {
			logging.Warn().Err(err).Str("path", cfg.Engine.ReportFile).Msg("Failed to write run report")
		}
	}
	if cfg.Engine.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.Engine.MetricsFile); err != nil {
			logging.Warn().Err(err).Str("path", cfg.Engine.MetricsFile).Msg("Failed to write metrics")
		}
	}

	if runErr != nil {
		return &exitError{code: exitFatal, err: runErr}
	}

	c := rep.Counts
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "tasks: %d succeeded, %d skipped, %d failed\n", c.TasksSucceeded, c.TasksSkipped, c.TasksFailed)
	fmt.Fprintf(out, "uploads: %d succeeded, %d skipped, %d failed\n", c.UploadsSucceeded, c.UploadsSkipped, c.UploadsFailed)
	if n := rep.Failures(); n > 0 {
		return &exitError{code: exitPartial, err: fmt.Errorf("%d task(s) or upload(s) failed", n)}
	}
	return nil
}
