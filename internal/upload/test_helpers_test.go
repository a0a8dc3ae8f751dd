// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

package upload

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// fileSource is a Source backed by a file on disk.
type fileSource struct {
	name string
	path string
}

func (s fileSource) OutputFileName() string { return s.name }
func (s fileSource) OutputPath() string     { return s.path }

func newFileSource(t *testing.T, name, content string) fileSource {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write source: %v", err)
	}
	return fileSource{name: name, path: p}
}

var errBrokenPipe = errors.New("broken pipe")

// MockFTPServer is the shared state behind MockFTPConn sessions: a set of
// directories and stored files.
type MockFTPServer struct {
	mu    sync.Mutex
	dirs  map[string]bool
	files map[string]string
	log   []string
	dials int
	quits int

	// storFailures is the number of STOR commands that fail before one succeeds.
	storFailures int
	// mkdDenied lists directories the server refuses to create.
	mkdDenied map[string]bool
	// dialErr fails every dial when set.
	dialErr error
}

func newMockFTPServer() *MockFTPServer {
	return &MockFTPServer{
		dirs:      map[string]bool{"/": true},
		files:     make(map[string]string),
		mkdDenied: make(map[string]bool),
	}
}

func (s *MockFTPServer) dial(_ context.Context, _ FTPConfig) (ftpConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dials++
	if s.dialErr != nil {
		return nil, s.dialErr
	}
	return &MockFTPConn{srv: s, cwd: "/"}, nil
}

func (s *MockFTPServer) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.log...)
}

// MockFTPConn is one session against a MockFTPServer.
type MockFTPConn struct {
	srv    *MockFTPServer
	cwd    string
	closed bool
}

func (c *MockFTPConn) resolve(p string) string {
	if strings.HasPrefix(p, "/") {
		return filepath.ToSlash(filepath.Clean(p))
	}
	return filepath.ToSlash(filepath.Join(c.cwd, p))
}

func (c *MockFTPConn) ChangeDir(p string) error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	c.srv.log = append(c.srv.log, "CWD "+p)
	if c.closed {
		return errBrokenPipe
	}
	target := c.resolve(p)
	if !c.srv.dirs[target] {
		return errors.New("550 no such directory")
	}
	c.cwd = target
	return nil
}

func (c *MockFTPConn) MakeDir(p string) error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	c.srv.log = append(c.srv.log, "MKD "+p)
	if c.closed {
		return errBrokenPipe
	}
	target := c.resolve(p)
	if c.srv.mkdDenied[target] {
		return errors.New("550 permission denied")
	}
	if c.srv.dirs[target] {
		return errors.New("550 already exists")
	}
	c.srv.dirs[target] = true
	return nil
}

func (c *MockFTPConn) Stor(p string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	c.srv.log = append(c.srv.log, "STOR "+p)
	if c.closed {
		return errBrokenPipe
	}
	if c.srv.storFailures > 0 {
		c.srv.storFailures--
		return errBrokenPipe
	}
	c.srv.files[c.resolve(p)] = string(data)
	return nil
}

func (c *MockFTPConn) Quit() error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if !c.closed {
		c.srv.quits++
	}
	c.closed = true
	return nil
}

// MockPutter records object uploads.
type MockPutter struct {
	mu       sync.Mutex
	objects  map[string]string
	failures int
	calls    int
}

func (m *MockPutter) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failures > 0 {
		m.failures--
		return nil, errors.New("503 slow down")
	}
	if m.objects == nil {
		m.objects = make(map[string]string)
	}
	m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = string(data)
	return &manager.UploadOutput{ETag: aws.String(`"etag"`)}, nil
}

// MockUploader counts calls and returns a scripted error.
type MockUploader struct {
	name  string
	mu    sync.Mutex
	calls int
	err   error
	panic bool
}

func (m *MockUploader) Name() string { return m.name }

func (m *MockUploader) Upload(_ context.Context, _ Source, _ string) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.panic {
		panic("transport exploded")
	}
	return m.err
}

func (m *MockUploader) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func noBackoff(attempts int) RetryPolicy {
	return RetryPolicy{Attempts: attempts}
}
