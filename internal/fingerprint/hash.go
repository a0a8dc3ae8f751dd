// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

package fingerprint

import (
	"crypto/md5" //nolint:gosec // content fingerprint, not a security boundary
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// HashFile returns the lowercase hex MD5 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return "", fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	return HashReader(f)
}

// HashReader returns the lowercase hex MD5 of everything read from r.
func HashReader(r io.Reader) (string, error) {
	h := md5.New() //nolint:gosec // content fingerprint
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
