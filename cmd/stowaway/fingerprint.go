// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

package main

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/stowaway/internal/fingerprint"
)

func newFingerprintCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Inspect the fingerprint store",
	}
	cmd.AddCommand(newFingerprintListCmd(root), newFingerprintHashCmd())
	return cmd
}

func newFingerprintListCmd(root *rootOptions) *cobra.Command {
	var (
		file   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print every stored key and hash",
		Long: `Prints the fingerprint store. The store path comes from --file, or from
engine.fingerprint_file in the configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := file
			if path == "" {
				cfg, err := root.loadConfig()
				if err != nil {
					return err
				}
				path = cfg.Engine.FingerprintFile
			}

			store := fingerprint.NewStore()
			if err := store.Load(path); err != nil {
				return fmt.Errorf("failed to load fingerprint store: %w", err)
			}
			entries := store.Entries()
			out := cmd.OutOrStdout()

			if asJSON {
				data, err := json.MarshalIndent(entries, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode entries: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %s\n", e.Hash, e.Key)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "fingerprint store path")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}

func newFingerprintHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash FILE...",
		Short: "Print the content hash of files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, path := range args {
				sum, err := fingerprint.HashFile(path)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s  %s\n", sum, path)
			}
			return nil
		},
	}
}
