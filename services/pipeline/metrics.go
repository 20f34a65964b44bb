// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/retrochadsql/pkg/logging"
)

var (
	tracer = otel.Tracer("retrochad.pipeline")
	meter  = otel.Meter("retrochad.pipeline")
)

// ==============================================================================
// Prometheus Metrics
// ==============================================================================

var (
	// stageSuccessTotal counts completed stage actions by stage
	stageSuccessTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrochad_stage_success_total",
		Help: "Total successful stage actions by stage",
	}, []string{"stage"})

	// stageFailureTotal counts failed stage actions by failure category
	stageFailureTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrochad_stage_failure_total",
		Help: "Total failed stage actions by category",
	}, []string{"category"})

	// stageDuration tracks stage action latency
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "retrochad_stage_duration_seconds",
		Help:    "Stage action duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8), // 10ms to ~3min
	}, []string{"stage"})

	// reclaimedDirsTotal counts directories removed after successful runs
	reclaimedDirsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retrochad_reclaimed_dirs_total",
		Help: "Total directories removed by reclaim",
	})

	// runsTotal counts finished runs by terminal status
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrochad_runs_total",
		Help: "Total runs by terminal status",
	}, []string{"status"})
)

// WriteMetricsFile writes the default registry in the Prometheus text
// format, for collection by a node exporter textfile collector.
func WriteMetricsFile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics file: %w", err)
	}
	return nil
}

// ==============================================================================
// OpenTelemetry Instruments
// ==============================================================================

// instruments holds the OTel meter instruments, created on first use.
type instruments struct {
	once      sync.Once
	latency   metric.Float64Histogram
	successes metric.Int64Counter
	failures  metric.Int64Counter
}

var otelInstruments instruments

// get initializes the instruments once and returns them. Instruments that
// fail to initialize are left nil and skipped by callers; each failure is
// logged once to logger.
func (i *instruments) get(meter metric.Meter, logger *logging.Logger) *instruments {
	i.once.Do(func() {
		var err error
		i.latency, err = meter.Float64Histogram("retrochad_stage_duration_seconds",
			metric.WithDescription("Time spent executing each stage action"),
			metric.WithUnit("s"),
		)
		if err != nil {
			logger.Warn("otel instrument unavailable", "instrument", "stage_latency", "error", err)
		}

		i.successes, err = meter.Int64Counter("retrochad_stage_success_total",
			metric.WithDescription("Number of successful stage actions"),
		)
		if err != nil {
			logger.Warn("otel instrument unavailable", "instrument", "stage_successes", "error", err)
		}

		i.failures, err = meter.Int64Counter("retrochad_stage_failure_total",
			metric.WithDescription("Number of failed stage actions"),
		)
		if err != nil {
			logger.Warn("otel instrument unavailable", "instrument", "stage_failures", "error", err)
		}
	})
	return i
}
