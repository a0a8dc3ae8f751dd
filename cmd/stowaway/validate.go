// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/stowaway/internal/backup"
	"github.com/tomtom215/stowaway/internal/fingerprint"
)

func newValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and print the resulting plan",
		Long: `Loads the configuration, expands placeholders and validates every item
without running anything. Items that a run would skip are listed with the
reason. Exits 2 when any item would be skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return &exitError{code: exitFatal, err: err}
			}

			plan := backup.BuildPlan(cmd.Context(), cfg, fingerprint.NewStore(), time.Now())
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "config: %s\n", cfg.Source)
			for _, t := range plan.Tasks {
				fmt.Fprintf(out, "task      %-20s %-12s %s\n", t.Name(), t.Kind(), t.OutputDir())
			}
			for _, u := range plan.Uploaders {
				fmt.Fprintf(out, "uploader  %s\n", u.Name())
			}
			for _, b := range plan.Bindings {
				fmt.Fprintf(out, "binding   %s -> %s:%s\n", b.Task.Name(), b.Uploader.Name(), b.RemoteDir)
			}
			for _, s := range plan.Skipped {
				fmt.Fprintf(out, "skipped   %s %s: %s\n", s.Kind, s.Name, s.Reason)
			}

			if len(plan.Skipped) > 0 {
				return &exitError{code: exitPartial, err: fmt.Errorf("%d configuration item(s) invalid", len(plan.Skipped))}
			}
			fmt.Fprintln(out, "configuration OK")
			return nil
		},
	}
}
