// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

package task

import (
	"context"
	"fmt"
	"os"

	"github.com/mattn/go-shellwords"
)

// Dumper writes a database dump to dest.
type Dumper interface {
	Dump(ctx context.Context, dest, options string) error
}

// MySQLDumper runs mysqldump with stdout redirected to the dump file.
type MySQLDumper struct {
	// Binary is the mysqldump executable. Default: "mysqldump"
	Binary string
}

// Dump implements Dumper. Options are split like a shell would, including
// $VAR expansion, so credentials can come from the environment.
func (d *MySQLDumper) Dump(ctx context.Context, dest, options string) (err error) {
	bin := d.Binary
	if bin == "" {
		bin = "mysqldump"
	}

	args, err := parseOptions(options)
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // dest is built by the task
	if err != nil {
		return fmt.Errorf("failed to create dump file: %w", err)
	}
	defer func() {
		if closeErr := out.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("failed to close dump file: %w", closeErr)
		}
		if err != nil {
			os.Remove(dest) //nolint:errcheck,gosec // best effort cleanup
		}
	}()

	return runTool(ctx, bin, args, out)
}

func parseOptions(options string) ([]string, error) {
	p := shellwords.NewParser()
	p.ParseEnv = true
	args, err := p.Parse(options)
	if err != nil {
		return nil, fmt.Errorf("invalid dump options: %w", err)
	}
	return args, nil
}
