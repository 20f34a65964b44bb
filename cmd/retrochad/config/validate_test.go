// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Default(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *RetroChadConfig)
		want   string
	}{
		{"unknown stage", func(c *RetroChadConfig) { c.First = "Fetch" }, "first: failed stage"},
		{"reversed range", func(c *RetroChadConfig) { c.First, c.Last = "Load", "Download" }, "Load comes after Download"},
		{"bad table", func(c *RetroChadConfig) { c.Tables = []string{"events", "rosters"} }, "tables[1]: failed oneof"},
		{"duplicate table", func(c *RetroChadConfig) { c.Tables = []string{"games", "games"} }, "failed unique"},
		{"bad verbosity", func(c *RetroChadConfig) { c.Log.Verbosity = "loud" }, "log.verbosity: failed oneof"},
		{"bad exporter", func(c *RetroChadConfig) { c.Telemetry.TraceExporter = "zipkin" }, "telemetry.trace_exporter"},
		{"bad port", func(c *RetroChadConfig) { c.Database.Port = 70000 }, "database.port: failed lte"},
		{"bad years", func(c *RetroChadConfig) { c.Years = "1940-1938" }, "years: bad years input"},
		{"missing path", func(c *RetroChadConfig) { delete(c.Paths, "Define") }, "paths.Define: not configured"},
		{"no home", func(c *RetroChadConfig) { c.Home = "" }, "no RetroChadSql folder"},
		{"no database name", func(c *RetroChadConfig) { c.Database.Name = "" }, "database.name"},
		{"no client", func(c *RetroChadConfig) { c.Database.Client = "" }, "no SQL client selected"},
		{"template without year", func(c *RetroChadConfig) { c.Download.URLTemplate = "https://example.com/all.zip" }, "{year}"},
		{"template scheme", func(c *RetroChadConfig) { c.Download.URLTemplate = "ftp://example.com/{year}.zip" }, "unsupported scheme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_OnlySelectedStagesMatter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.First, cfg.Last = "Download", "Unzip"
	cfg.Database = DatabaseConfig{}
	cfg.Paths = map[string]PathConfig{
		"Download": {Path: "/tmp/zips"},
		"Unzip":    {Path: "/tmp/unzipped"},
	}
	cfg.Home = ""

	assert.NoError(t, cfg.Validate())
}

func TestValidate_DownloadTemplateIgnoredWithoutDownload(t *testing.T) {
	cfg := DefaultConfig()
	cfg.First = "Unzip"
	cfg.Download.URLTemplate = "not a url"

	assert.NoError(t, cfg.Validate())
}

func TestValidate_HistoryDirRequiredUnlessDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.History.Dir = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg.History.Disabled = true
	assert.NoError(t, cfg.Validate())
}
