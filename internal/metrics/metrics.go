// SPDX-License-Identifier: AGPL-3.0-or-later

/*

odcspipeline - a data-contract modelling pipeline that ingests semi-structured
records, infers and refines schemas, maps them onto target contracts, and
generates executable transformation scripts.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package metrics exposes optional Prometheus instrumentation for
// ingestion throughput and pipeline stage duration.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IngestRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "odcspipeline_ingest_records_total",
		Help: "Total records written to the staging store.",
	})

	IngestFilesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "odcspipeline_ingest_files_skipped_total",
		Help: "Total source files skipped during ingestion (dedup or resume).",
	})

	IngestErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "odcspipeline_ingest_errors_total",
		Help: "Total per-record parse errors encountered during ingestion.",
	})

	PipelineStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odcspipeline_pipeline_stage_duration_seconds",
		Help:    "Wall-clock duration of each pipeline stage.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	PipelineRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "odcspipeline_pipeline_runs_total",
		Help: "Total pipeline runs, partitioned by final status.",
	}, []string{"status"})
)

// RecordIngest updates the ingestion counters from one Run's stats.
func RecordIngest(recordsIngested int64, filesSkipped, errorsCount int) {
	IngestRecordsTotal.Add(float64(recordsIngested))
	IngestFilesSkippedTotal.Add(float64(filesSkipped))
	IngestErrorsTotal.Add(float64(errorsCount))
}

// ObserveStageDuration records how long a pipeline stage took.
func ObserveStageDuration(stage string, d time.Duration) {
	PipelineStageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordRunStatus increments the run counter for a terminal pipeline status.
func RecordRunStatus(status string) {
	PipelineRunsTotal.WithLabelValues(status).Inc()
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
