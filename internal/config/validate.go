// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/stowaway/internal/validation"
)

// ErrInvalidItem is matched by every per-item validation error.
var ErrInvalidItem = errors.New("invalid configuration item")

// Validate checks the engine and logging sections. Item lists are checked
// per item by the plan builder so that one bad item never rejects the job.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Engine); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := validation.ValidateStruct(&c.Logging); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// ValidateTask checks one expanded task item.
func ValidateTask(t TaskConfig) error {
	if err := validation.ValidateStruct(&t); err != nil {
		return fmt.Errorf("%w: task %q: %w", ErrInvalidItem, t.Name, err)
	}
	if strings.ContainsAny(t.Name, `/\`) {
		return fmt.Errorf("%w: task %q: task_name must not contain path separators", ErrInvalidItem, t.Name)
	}
	if t.Type == TaskTypePack && len(t.BackupList) == 0 {
		return fmt.Errorf("%w: task %q: backup_list is required when type is pack", ErrInvalidItem, t.Name)
	}
	return nil
}

// ValidateUploader checks one expanded uploader item.
func ValidateUploader(u UploaderConfig) error {
	if err := validation.ValidateStruct(&u); err != nil {
		return fmt.Errorf("%w: uploader %q: %w", ErrInvalidItem, u.Name, err)
	}
	return nil
}

// ValidateBinding checks one binding item. Name references are resolved by
// the plan builder.
func ValidateBinding(b BindingConfig) error {
	if err := validation.ValidateStruct(&b); err != nil {
		return fmt.Errorf("%w: binding %q -> %q: %w", ErrInvalidItem, b.TaskName, b.UploaderName, err)
	}
	return nil
}
