// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

// Package testinfra provides test infrastructure for integration testing with containers.
//
// This package uses testcontainers-go to manage Docker containers for integration tests,
// so uploaders are exercised against real servers instead of recorded responses.
// Every file carries the integration build tag:
//
//	go test -tags integration ./internal/testinfra/...
//
// # MinIO Container
//
// The MinIOContainer provides an S3-compatible server for the object storage uploader:
//
//	func TestUpload(t *testing.T) {
//	    ctx := context.Background()
//	    minio, err := testinfra.NewMinIOContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, minio.Container)
//
//	    u := upload.NewObjectStorageUploader("minio", upload.ObjectStorageConfig{
//	        AccessID:  minio.AccessKey,
//	        AccessKey: minio.SecretKey,
//	        Endpoint:  minio.Endpoint,
//	        Bucket:    "backups",
//	        PathStyle: true,
//	    })
//	    // ...
//	}
//
// # CI Considerations
//
// These tests require Docker and network access. They are skipped gracefully
// when Docker is unavailable or when running with -short.
package testinfra
