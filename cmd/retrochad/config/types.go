// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"time"

	"github.com/AleutianAI/retrochadsql/services/pipeline/stages"
)

// AvailableYears are the seasons Retrosheet publishes play-by-play
// files for.
const AvailableYears = "1921 1922 1927 1931 1938-2012"

// RetroChadConfig is the on-disk configuration of retrochad.
type RetroChadConfig struct {
	// Years is a year spec such as "1931 1938-1940".
	Years string `yaml:"years" validate:"required"`

	// First and Last name the inclusive stage range.
	First string `yaml:"first" validate:"required,stage"`
	Last  string `yaml:"last" validate:"required,stage"`

	// Tables selects the Chadwick tables to build.
	Tables []string `yaml:"tables" validate:"required,min=1,unique,dive,oneof=events subs games"`

	// Home is the RetroChadSql folder that standard paths live under.
	Home string `yaml:"home"`

	// Paths configures each working location by path key name.
	Paths map[string]PathConfig `yaml:"paths" validate:"dive,keys,oneof=Download Unzip Assemble Define Chadwick,endkeys"`

	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	History   HistoryConfig   `yaml:"history"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Download  DownloadConfig  `yaml:"download"`
}

// PathConfig is one working location. Dir is a standard path under Home;
// Path is a custom location and wins when both are set.
type PathConfig struct {
	Dir  string `yaml:"dir,omitempty" validate:"required_without=Path"`
	Path string `yaml:"path,omitempty"`
	Keep bool   `yaml:"keep"`
}

// DatabaseConfig configures the SQL client.
type DatabaseConfig struct {
	Name         string `yaml:"name"`
	Client       string `yaml:"client"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port" validate:"gte=0,lte=65535"`
	DefaultsFile string `yaml:"defaults_file"`

	// ConnectArgs, when set, replace user, password, host and port. It is
	// split on whitespace.
	ConnectArgs string `yaml:"connect_args"`
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity string `yaml:"verbosity" validate:"oneof=silent normal verbose chatterbox"`
	Dir       string `yaml:"dir"`
	JSON      bool   `yaml:"json"`
}

// TelemetryConfig selects OpenTelemetry exporters and the metrics file.
type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string `yaml:"otlp_endpoint,omitempty"`

	// MetricsFile receives the Prometheus text format at the end of a run.
	MetricsFile string `yaml:"metrics_file"`
}

// HistoryConfig configures the run journal.
type HistoryConfig struct {
	Dir      string `yaml:"dir" validate:"required_if=Disabled false"`
	Disabled bool   `yaml:"disabled"`
}

// ScheduleConfig paces the scheduler.
type ScheduleConfig struct {
	// Interval is the minimum time between scheduler steps.
	Interval time.Duration `yaml:"interval" validate:"gte=0"`
}

// DownloadConfig configures the Download stage.
type DownloadConfig struct {
	URLTemplate string        `yaml:"url_template" validate:"required"`
	Timeout     time.Duration `yaml:"timeout" validate:"gt=0"`
}

// DefaultConfig returns the configuration written by `retrochad init`.
func DefaultConfig() RetroChadConfig {
	return RetroChadConfig{
		Years:  AvailableYears,
		First:  stages.StageDownload,
		Last:   stages.StageLoad,
		Tables: append([]string(nil), stages.KnownTables...),
		Home:   "~/RetroChadSql",
		Paths: map[string]PathConfig{
			"Download": {Dir: "zipped"},
			"Unzip":    {Dir: "unzipped"},
			"Assemble": {Dir: "CSV"},
			"Define":   {Dir: "SQL"},
			"Chadwick": {Path: "~/Chadwick", Keep: true},
		},
		Database: DatabaseConfig{
			Name:   stages.DefaultDatabaseName,
			Client: stages.DefaultSQLClient,
		},
		Log: LogConfig{Verbosity: "normal"},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "none",
		},
		History:  HistoryConfig{Dir: "~/.retrochadsql/history"},
		Schedule: ScheduleConfig{Interval: 10 * time.Millisecond},
		Download: DownloadConfig{
			URLTemplate: stages.DefaultURLTemplate,
			Timeout:     stages.DefaultHTTPTimeout,
		},
	}
}
