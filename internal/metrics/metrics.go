// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

/*
Package metrics provides Prometheus instrumentation for backup runs.

Stowaway is a one-shot process, so nothing scrapes it directly. At the end
of a run the default registry is written in text exposition format to a file
picked up by the node_exporter textfile collector:

	metrics_file: /var/lib/node_exporter/textfile/stowaway.prom

Metric families:
  - stowaway_tasks_total / stowaway_task_duration_seconds
  - stowaway_uploads_total / stowaway_upload_attempts_total / stowaway_upload_bytes_total
  - stowaway_fingerprint_entries / stowaway_fingerprint_saves_total
  - stowaway_breaker_state
  - stowaway_last_run_timestamp_seconds / stowaway_last_run_duration_seconds
*/
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Task Metrics
	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stowaway_tasks_total",
			Help: "Total number of task runs by outcome",
		},
		[]string{"task", "kind", "status"}, // status: "succeeded", "skipped", "failed"
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stowaway_task_duration_seconds",
			Help:    "Duration of task runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"kind"},
	)

	// Upload Metrics
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stowaway_uploads_total",
			Help: "Total number of upload bindings by outcome",
		},
		[]string{"uploader", "status"},
	)

	UploadAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stowaway_upload_attempts_total",
			Help: "Total number of single-file transfer attempts, including retries",
		},
		[]string{"uploader", "result"}, // result: "success", "failure"
	)

	UploadBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stowaway_upload_bytes_total",
			Help: "Total bytes of artifacts confirmed uploaded",
		},
		[]string{"uploader"},
	)

	UploadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stowaway_upload_duration_seconds",
			Help:    "Duration of upload bindings in seconds, including retries",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"uploader"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stowaway_breaker_state",
			Help: "Uploader circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"uploader"},
	)

	// Fingerprint Store Metrics
	FingerprintEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stowaway_fingerprint_entries",
			Help: "Number of entries in the fingerprint store after the run",
		},
	)

	FingerprintSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stowaway_fingerprint_saves_total",
			Help: "Fingerprint store persistence attempts by result",
		},
		[]string{"result"}, // "written", "clean", "error"
	)

	// Run Metrics
	LastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stowaway_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		},
	)

	LastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stowaway_last_run_duration_seconds",
			Help: "Wall time of the last run in seconds",
		},
	)

	LastRunFailures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stowaway_last_run_failures",
			Help: "Number of failed tasks and uploads in the last run",
		},
	)
)

// RecordTask records one finished task run.
func RecordTask(task, kind, status string, duration time.Duration) {
	TasksTotal.WithLabelValues(task, kind, status).Inc()
	TaskDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordUpload records one finished upload binding.
func RecordUpload(uploader, status string, duration time.Duration) {
	UploadsTotal.WithLabelValues(uploader, status).Inc()
	UploadDuration.WithLabelValues(uploader).Observe(duration.Seconds())
}

// RecordUploadAttempt records one transfer attempt and, on success, its size.
func RecordUploadAttempt(uploader string, bytes int64, err error) {
	if err != nil {
		UploadAttempts.WithLabelValues(uploader, "failure").Inc()
		return
	}
	UploadAttempts.WithLabelValues(uploader, "success").Inc()
	if bytes > 0 {
		UploadBytes.WithLabelValues(uploader).Add(float64(bytes))
	}
}

// RecordStoreSave records a fingerprint store persistence outcome.
func RecordStoreSave(written bool, err error) {
	switch {
	case err != nil:
		FingerprintSaves.WithLabelValues("error").Inc()
	case written:
		FingerprintSaves.WithLabelValues("written").Inc()
	default:
		FingerprintSaves.WithLabelValues("clean").Inc()
	}
}

// RecordRun records the end of a run.
func RecordRun(finished time.Time, duration time.Duration, failures int) {
	LastRunTimestamp.Set(float64(finished.Unix()))
	LastRunDuration.Set(duration.Seconds())
	LastRunFailures.Set(float64(failures))
}

// WriteTextfile writes every registered metric to path in the Prometheus
// text format. The write goes through a temp file and rename.
func WriteTextfile(path string) error {
	return WriteTextfileFrom(prometheus.DefaultGatherer, path)
}

// WriteTextfileFrom writes the metrics gathered from g to path.
func WriteTextfileFrom(g prometheus.Gatherer, path string) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
