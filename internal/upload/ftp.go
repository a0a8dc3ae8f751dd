// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

/*
ftp.go - FTP/FTPS Uploader

Session Lifecycle:
The control connection is opened lazily on the first upload and reused for
every later upload through the same uploader. Any failed attempt quits the
session so the next attempt (or the next upload) dials a fresh one.

Upload Sequence (per attempt):
 1. CWD /
 2. For each remote directory segment: CWD, else MKD then CWD
 3. STOR <file name>
 4. CWD / (on failure the session is dropped)

Concurrency:
One session cannot carry two transfers, so Upload holds the uploader's mutex
for the whole transfer including retries.
*/

//nolint:staticcheck // File documentation, not package doc
package upload

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rs/zerolog"

	"github.com/tomtom215/stowaway/internal/logging"
	"github.com/tomtom215/stowaway/internal/metrics"
)

// DefaultFTPTimeout bounds connection setup.
const DefaultFTPTimeout = 60 * time.Second

// FTPConfig holds connection parameters for an FTP uploader.
type FTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// Secure enables explicit TLS (AUTH TLS) with a protected data channel.
	Secure             bool
	InsecureSkipVerify bool
	// Passive requests passive data connections. The client only supports
	// passive mode; false is accepted with a warning.
	Passive bool
	// DisableEPSV falls back to PASV for servers that mishandle EPSV.
	DisableEPSV bool
	Timeout     time.Duration
	// BandwidthLimit caps upload throughput in bytes per second. 0 disables.
	BandwidthLimit int
	Retry          RetryPolicy
}

// ftpConn is the subset of *ftp.ServerConn the uploader drives.
type ftpConn interface {
	ChangeDir(path string) error
	MakeDir(path string) error
	Stor(path string, r io.Reader) error
	Quit() error
}

type ftpDialer func(ctx context.Context, cfg FTPConfig) (ftpConn, error)

// FTPUploader uploads over FTP or explicit FTPS.
type FTPUploader struct {
	name string
	cfg  FTPConfig
	dial ftpDialer
	log  zerolog.Logger

	mu   sync.Mutex
	conn ftpConn
}

// NewFTPUploader returns an FTP uploader. No connection is made until the
// first upload.
func NewFTPUploader(name string, cfg FTPConfig) *FTPUploader {
	if cfg.Port == 0 {
		cfg.Port = 21
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFTPTimeout
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}

	u := &FTPUploader{
		name: name,
		cfg:  cfg,
		dial: dialFTP,
		log:  logging.WithComponent("ftp").With().Str("uploader", name).Logger(),
	}
	if !cfg.Passive {
		u.log.Warn().Msg("Active mode is not supported, using passive mode")
	}
	return u
}

// Name implements Uploader.
func (u *FTPUploader) Name() string { return u.name }

// Upload implements Uploader.
func (u *FTPUploader) Upload(ctx context.Context, src Source, remoteDir string) error {
	if err := checkSource(src); err != nil {
		return err
	}
	remote := RemotePath(remoteDir, src.OutputFileName())
	local := src.OutputPath()

	u.mu.Lock()
	defer u.mu.Unlock()

	log := u.log.With().Str("remote", remote).Logger()
	return retry(ctx, log, u.cfg.Retry, func(ctx context.Context, _ int) error {
		conn, err := u.session(ctx)
		if err != nil {
			metrics.RecordUploadAttempt(u.name, 0, err)
			return err
		}
		n, err := u.transfer(ctx, conn, remote, local)
		metrics.RecordUploadAttempt(u.name, n, err)
		return err
	}, u.closeSession)
}

// Close quits the session if one is open.
func (u *FTPUploader) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closeSession()
	return nil
}

// session returns the open session or dials a new one. Callers hold u.mu.
func (u *FTPUploader) session(ctx context.Context) (ftpConn, error) {
	if u.conn != nil {
		return u.conn, nil
	}
	conn, err := u.dial(ctx, u.cfg)
	if err != nil {
		return nil, err
	}
	u.log.Debug().Str("host", u.cfg.Host).Msg("FTP session established")
	u.conn = conn
	return conn, nil
}

// closeSession quits and forgets the session. Callers hold u.mu.
func (u *FTPUploader) closeSession() {
	if u.conn == nil {
		return
	}
	if err := u.conn.Quit(); err != nil {
		u.log.Debug().Err(err).Msg("FTP quit failed")
	}
	u.conn = nil
}

// transfer runs one upload attempt on conn and returns the bytes sent.
func (u *FTPUploader) transfer(ctx context.Context, conn ftpConn, remote, local string) (int64, error) {
	// Closing the control connection unblocks a hung transfer when ctx ends.
	stop := context.AfterFunc(ctx, func() { conn.Quit() }) //nolint:errcheck,gosec // best effort abort
	defer stop()

	dir, name := path.Split(remote)
	if err := conn.ChangeDir("/"); err != nil {
		return 0, fmt.Errorf("failed to change to root: %w", err)
	}
	if err := ensureDir(conn, dir); err != nil {
		return 0, err
	}

	f, err := os.Open(local) //nolint:gosec // path recorded by the task
	if err != nil {
		return 0, permanent(fmt.Errorf("%w: %w", ErrSourceMissing, err))
	}
	defer f.Close() //nolint:errcheck // read-only file

	counter := &countingReader{r: throttle(ctx, f, u.cfg.BandwidthLimit)}
	if err := conn.Stor(name, counter); err != nil {
		return 0, fmt.Errorf("failed to store %s: %w", remote, err)
	}

	if err := conn.ChangeDir("/"); err != nil {
		u.log.Warn().Err(err).Msg("Failed to return to root, dropping session")
		u.closeSession()
	}

	u.log.Info().Str("remote", remote).Int64("bytes", counter.n).Msg("File uploaded")
	return counter.n, nil
}

// ensureDir walks dir from the current directory one segment at a time,
// creating missing segments. A failed MKD is tolerated when the directory
// can be entered afterwards (it already existed).
func ensureDir(conn ftpConn, dir string) error {
	for _, seg := range strings.Split(dir, "/") {
		if seg == "" || seg == "." {
			continue
		}
		if err := conn.ChangeDir(seg); err == nil {
			continue
		}
		mkErr := conn.MakeDir(seg)
		if err := conn.ChangeDir(seg); err != nil {
			if mkErr != nil {
				return fmt.Errorf("failed to create remote directory %q: %w", seg, mkErr)
			}
			return fmt.Errorf("failed to enter remote directory %q: %w", seg, err)
		}
	}
	return nil
}

// dialFTP connects and logs in.
func dialFTP(ctx context.Context, cfg FTPConfig) (ftpConn, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(cfg.Timeout),
		ftp.DialWithDisabledEPSV(cfg.DisableEPSV),
	}
	if cfg.Secure {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // operator opt-in for self-signed servers
			MinVersion:         tls.VersionTLS12,
		}))
	}

	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	user := cfg.Username
	if user == "" {
		user = "anonymous"
	}
	if err := conn.Login(user, cfg.Password); err != nil {
		conn.Quit() //nolint:errcheck,gosec // already failing
		return nil, fmt.Errorf("failed to log in to %s: %w", addr, err)
	}
	return conn, nil
}

// countingReader counts bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
