// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

/*
Package fingerprint holds the content-fingerprint store that decides whether
a backup source changed since the last run.

File Format:
The store is persisted as UTF-8 text with one entry per line:

	<hash> <key>

Fields are separated by whitespace and keys are not escaped, so a key that
contains whitespace cannot be represented. When a key appears more than
once, the last line wins.

Thread Safety:
The table is guarded by a sync.RWMutex. Callers that need an atomic
check-then-set on one key hold Lock(key) around HasChanged and Set; work on
unrelated keys proceeds in parallel.
*/
package fingerprint

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DefaultFileName is the store file used when none is configured.
const DefaultFileName = "md5_list.txt"

// ErrNoPath is returned by Save when neither an explicit path nor a prior
// Load path is available.
var ErrNoPath = errors.New("fingerprint store has no path: call Load first or pass a path")

// Entry is one key to hash mapping.
type Entry struct {
	Key  string `json:"key"`
	Hash string `json:"hash"`
}

// Store maps artifact keys to their last recorded content hash.
type Store struct {
	mu      sync.RWMutex
	entries map[string]string
	dirty   bool
	path    string

	keys keyLocks
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]string),
		keys:    keyLocks{locks: make(map[string]*keyLock)},
	}
}

// Load replaces the table with the contents of path and remembers path for
// a later Save. The dirty flag is cleared.
func (s *Store) Load(path string) error {
	f, err := os.Open(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return fmt.Errorf("failed to open fingerprint store: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	entries := make(map[string]string)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		entries[fields[1]] = fields[0]
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read fingerprint store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
	s.path = path
	s.dirty = false
	return nil
}

// HasChanged reports whether key is unknown or recorded with a different hash.
func (s *Store) HasChanged(key, hash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prev, ok := s.entries[key]
	return !ok || prev != hash
}

// Set records hash for key and marks the store dirty.
func (s *Store) Set(key, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = hash
	s.dirty = true
}

// Get returns the recorded hash for key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.entries[key]
	return h, ok
}

// Lock serializes a check-then-set sequence on key. The returned function
// releases it.
//
//	unlock := store.Lock(src)
//	defer unlock()
//	if store.HasChanged(src, sum) { ... store.Set(src, sum) }
func (s *Store) Lock(key string) (unlock func()) {
	return s.keys.lock(key)
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Dirty reports whether the table changed since the last Load or Save.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Path returns the path used by the last successful Load.
func (s *Store) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// Entries returns a snapshot of the table sorted by key.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for k, h := range s.entries {
		out = append(out, Entry{Key: k, Hash: h})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Save writes the table when it is dirty or force is set. An empty path
// reuses the Load path. The file is written to a temp file in the target
// directory and renamed into place, so a crash leaves the previous version
// intact.
func (s *Store) Save(path string, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty && !force {
		return nil
	}
	if path == "" {
		path = s.path
	}
	if path == "" {
		return ErrNoPath
	}

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(s.entries[k])
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('\n')
	}

	if err := writeFileAtomic(path, []byte(b.String())); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// writeFileAtomic writes data to a temp file next to path, syncs it, and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create fingerprint store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp fingerprint file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) } //nolint:errcheck,gosec // best effort

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already failing
		cleanup()
		return fmt.Errorf("failed to write fingerprint store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already failing
		cleanup()
		return fmt.Errorf("failed to sync fingerprint store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close fingerprint store: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace fingerprint store: %w", err)
	}
	return nil
}

// keyLock is a reference-counted mutex for one key.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// keyLocks hands out per-key mutexes and drops them when no holder remains.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			k.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(k.locks, key)
			}
			k.mu.Unlock()
		})
	}
}
