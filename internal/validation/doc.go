// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

// Package validation provides struct validation using go-playground/validator v10.
//
// This package wraps the go-playground/validator library to provide a thread-safe
// singleton validator instance and readable error messages for configuration
// items. Field names in messages are taken from the koanf tag so that errors
// name the key the user wrote in the YAML file.
//
// # Quick Start
//
//	type TaskConfig struct {
//	    Type string `koanf:"type" validate:"required,oneof=pack mysql single_file"`
//	    Name string `koanf:"task_name" validate:"required"`
//	}
//
//	if err := validation.ValidateStruct(&task); err != nil {
//	    return fmt.Errorf("invalid task: %w", err)
//	}
//
// # Thread Safety
//
// GetValidator initializes the validator once with sync.Once. The validator
// caches struct metadata and is safe for concurrent use.
package validation
