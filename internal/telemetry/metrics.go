// Package telemetry exposes Prometheus metrics for the analysis pipeline.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsProcessedTotal counts jobs that reached a terminal state, by
	// final status (completed, failed).
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framelens_jobs_processed_total",
		Help: "Total number of jobs that reached a terminal state, by status",
	}, []string{"status"})

	// StageDuration observes per-stage wall time.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "framelens_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	// FramesSampledTotal counts frames written by the sampling stage.
	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framelens_frames_sampled_total",
		Help: "Total number of frames extracted across all jobs",
	})

	// FramesClassifiedTotal counts classification outcomes by label
	// (accepted, rejected, indeterminate).
	FramesClassifiedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framelens_frames_classified_total",
		Help: "Total number of classified frames, by outcome",
	}, []string{"outcome"})

	// OCRBatchesTotal counts vision engine batch calls by result
	// (ok, skipped, error).
	OCRBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framelens_ocr_batches_total",
		Help: "Total number of vision engine batch requests, by result",
	}, []string{"result"})

	// OCRRetriesTotal counts vision engine request retries.
	OCRRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framelens_ocr_retries_total",
		Help: "Total number of vision engine request retries",
	})

	// ActiveWorkers tracks workers currently running a job.
	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "framelens_active_workers",
		Help: "Number of workers currently processing a job",
	})
)
