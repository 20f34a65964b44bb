// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/AleutianAI/retrochadsql/pkg/logging"
)

// brokenMeter fails to create histograms.
type brokenMeter struct {
	noop.Meter
}

func (brokenMeter) Float64Histogram(string, ...metric.Float64HistogramOption) (metric.Float64Histogram, error) {
	return nil, errors.New("histogram rejected")
}

func TestInstruments_LogsInitFailureOnce(t *testing.T) {
	exporter := logging.NewBufferedExporter()
	logger := logging.New(logging.Config{Quiet: true, Exporter: exporter})

	var inst instruments
	got := inst.get(brokenMeter{}, logger)
	inst.get(brokenMeter{}, logger)

	assert.Nil(t, got.latency)
	assert.NotNil(t, got.successes)
	assert.NotNil(t, got.failures)

	entries := exporter.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "otel instrument unavailable", entries[0].Message)
	assert.Equal(t, logging.LevelWarn, entries[0].Level)
	assert.Equal(t, "stage_latency", entries[0].Attrs["instrument"])
}

func TestInstruments_NoWarningsWhenHealthy(t *testing.T) {
	exporter := logging.NewBufferedExporter()
	logger := logging.New(logging.Config{Quiet: true, Exporter: exporter})

	var inst instruments
	got := inst.get(noop.NewMeterProvider().Meter("test"), logger)

	assert.NotNil(t, got.latency)
	assert.NotNil(t, got.successes)
	assert.NotNil(t, got.failures)
	assert.Empty(t, exporter.Entries())
}

func TestWriteMetricsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retrochad.prom")
	runsTotal.WithLabelValues(string(StatusFinished)).Add(0)

	require.NoError(t, WriteMetricsFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "retrochad_runs_total")
}
