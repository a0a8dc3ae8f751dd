// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/tomtom215/stowaway/internal/logging"
	"github.com/tomtom215/stowaway/internal/metrics"
)

// ObjectStorageConfig holds credentials and addressing for an S3-compatible
// bucket (AWS S3, Aliyun OSS, MinIO).
type ObjectStorageConfig struct {
	AccessID  string
	AccessKey string
	Endpoint  string
	Bucket    string
	// Region defaults to "us-east-1" when empty; OSS and MinIO ignore it
	// but the SDK requires one for signing.
	Region string
	// PathStyle addresses the bucket as endpoint/bucket instead of
	// bucket.endpoint. MinIO needs it.
	PathStyle      bool
	BandwidthLimit int
	Retry          RetryPolicy
}

// objectPutter is the part of the S3 transfer manager the uploader uses.
type objectPutter interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type putterFactory func(ctx context.Context, cfg ObjectStorageConfig) (objectPutter, error)

// ObjectStorageUploader uploads to an S3-compatible bucket. The client is
// built on first use and shared by concurrent uploads.
type ObjectStorageUploader struct {
	name      string
	cfg       ObjectStorageConfig
	newPutter putterFactory
	log       zerolog.Logger

	mu     sync.Mutex
	putter objectPutter
}

// NewObjectStorageUploader returns an object storage uploader. Credentials
// are not checked until the first upload.
func NewObjectStorageUploader(name string, cfg ObjectStorageConfig) *ObjectStorageUploader {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &ObjectStorageUploader{
		name:      name,
		cfg:       cfg,
		newPutter: newS3Putter,
		log:       logging.WithComponent("oss").With().Str("uploader", name).Logger(),
	}
}

// Name implements Uploader.
func (u *ObjectStorageUploader) Name() string { return u.name }

// Upload implements Uploader.
func (u *ObjectStorageUploader) Upload(ctx context.Context, src Source, remoteDir string) error {
	if err := checkSource(src); err != nil {
		return err
	}
	key := strings.TrimLeft(RemotePath(remoteDir, src.OutputFileName()), "/")
	local := src.OutputPath()

	log := u.log.With().Str("key", key).Logger()
	return retry(ctx, log, u.cfg.Retry, func(ctx context.Context, _ int) error {
		n, err := u.put(ctx, key, local)
		metrics.RecordUploadAttempt(u.name, n, err)
		return err
	}, u.reset)
}

func (u *ObjectStorageUploader) put(ctx context.Context, key, local string) (int64, error) {
	putter, err := u.client(ctx)
	if err != nil {
		return 0, err
	}

	f, err := os.Open(local) //nolint:gosec // path recorded by the task
	if err != nil {
		return 0, permanent(fmt.Errorf("%w: %w", ErrSourceMissing, err))
	}
	defer f.Close() //nolint:errcheck // read-only file

	counter := &countingReader{r: throttle(ctx, f, u.cfg.BandwidthLimit)}
	out, err := putter.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(key),
		Body:   counter,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to put %s/%s: %w", u.cfg.Bucket, key, err)
	}

	ev := u.log.Info().Str("key", key).Int64("bytes", counter.n)
	if out != nil && out.ETag != nil {
		ev = ev.Str("etag", strings.Trim(*out.ETag, `"`))
	}
	ev.Msg("Object uploaded")
	return counter.n, nil
}

// client returns the shared putter, building it on first use.
func (u *ObjectStorageUploader) client(ctx context.Context) (objectPutter, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.putter != nil {
		return u.putter, nil
	}
	p, err := u.newPutter(ctx, u.cfg)
	if err != nil {
		return nil, err
	}
	u.putter = p
	return p, nil
}

// reset drops the client so the next attempt re-authenticates.
func (u *ObjectStorageUploader) reset() {
	u.mu.Lock()
	u.putter = nil
	u.mu.Unlock()
}

// ErrMissingCredentials is returned when an object storage uploader has no
// access key pair.
var ErrMissingCredentials = errors.New("object storage credentials not configured")

func newS3Putter(ctx context.Context, cfg ObjectStorageConfig) (objectPutter, error) {
	if cfg.AccessID == "" || cfg.AccessKey == "" {
		return nil, permanent(ErrMissingCredentials)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessID, cfg.AccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load object storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(normalizeEndpoint(cfg.Endpoint))
		}
		o.UsePathStyle = cfg.PathStyle
		// OSS and older MinIO releases reject the default CRC32 trailer.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	return manager.NewUploader(client), nil
}

// normalizeEndpoint adds https:// to bare host endpoints such as
// "oss-cn-hangzhou.aliyuncs.com".
func normalizeEndpoint(endpoint string) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	return "https://" + endpoint
}
