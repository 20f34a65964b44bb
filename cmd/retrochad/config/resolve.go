// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/retrochadsql/pkg/logging"
	"github.com/AleutianAI/retrochadsql/pkg/telemetry"
	"github.com/AleutianAI/retrochadsql/services/pipeline"
	"github.com/AleutianAI/retrochadsql/services/pipeline/stages"
)

// PasswordEnv, when set, supplies the database password instead of the
// configuration file.
const PasswordEnv = "RETROCHAD_DB_PASSWORD"

// Resolved is a validated configuration turned into the inputs of the
// pipeline, its stages and the ambient services.
type Resolved struct {
	Run    pipeline.RunConfig
	Stages stages.Options

	Level   logging.Level
	LogDir  string
	LogJSON bool

	Telemetry   telemetry.Config
	MetricsFile string

	HistoryDir      string
	HistoryDisabled bool

	Interval time.Duration
}

// Resolve validates c, expands ~, turns standard and custom paths into
// absolute locations and seals the database password.
//
// Stages.Logger is left nil for the caller to set.
func Resolve(c RetroChadConfig) (*Resolved, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	years, err := ParseYears(c.Years)
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseVerbosity(c.Log.Verbosity)
	if err != nil {
		return nil, err
	}

	paths := make(map[pipeline.PathKey]pipeline.PathSpec, len(c.Paths))
	locations := make(map[pipeline.PathKey]string, len(c.Paths))
	for name, pc := range c.Paths {
		loc, err := c.location(pc)
		if err != nil {
			return nil, fmt.Errorf("paths.%s: %w", name, err)
		}
		key := pipeline.PathKey(name)
		paths[key] = pipeline.PathSpec{Location: loc, Keep: pc.Keep}
		locations[key] = loc
	}

	password := c.Database.Password
	if env := os.Getenv(PasswordEnv); env != "" {
		password = env
	}

	tel := telemetry.DefaultConfig()
	tel.TraceExporter = c.Telemetry.TraceExporter
	tel.MetricExporter = c.Telemetry.MetricExporter
	if c.Telemetry.OTLPEndpoint != "" {
		tel.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	}

	r := &Resolved{
		Run: pipeline.RunConfig{
			Years: years,
			First: c.First,
			Last:  c.Last,
			Paths: paths,
		},
		Stages: stages.Options{
			Paths:       locations,
			Tables:      append([]string(nil), c.Tables...),
			URLTemplate: c.Download.URLTemplate,
			HTTPTimeout: c.Download.Timeout,
			Database: stages.Database{
				Name:         c.Database.Name,
				Client:       logging.ExpandPath(c.Database.Client),
				User:         c.Database.User,
				Host:         c.Database.Host,
				Port:         c.Database.Port,
				Password:     stages.SealPassword([]byte(password)),
				DefaultsFile: logging.ExpandPath(c.Database.DefaultsFile),
				ConnectArgs:  strings.Fields(c.Database.ConnectArgs),
			},
		},
		Level:           level,
		LogDir:          logging.ExpandPath(c.Log.Dir),
		LogJSON:         c.Log.JSON,
		Telemetry:       tel,
		MetricsFile:     logging.ExpandPath(c.Telemetry.MetricsFile),
		HistoryDir:      logging.ExpandPath(c.History.Dir),
		HistoryDisabled: c.History.Disabled,
		Interval:        c.Schedule.Interval,
	}
	return r, nil
}

// location returns the absolute directory for pc: the custom path when
// set, otherwise dir under Home.
func (c *RetroChadConfig) location(pc PathConfig) (string, error) {
	var loc string
	if pc.Path != "" {
		loc = logging.ExpandPath(pc.Path)
	} else {
		loc = filepath.Join(logging.ExpandPath(c.Home), pc.Dir)
	}
	return filepath.Abs(loc)
}
