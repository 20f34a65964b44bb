// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stages implements the five RetroChadSQL stage actions and wires
// them into a pipeline.Registry.
//
//	Download  GET the year's event archive from Retrosheet
//	Unzip     extract it into the shared unzip directory
//	Assemble  run Chadwick to produce one CSV per table
//	Define    write schema.sql once and <year>.sql per year
//	Load      feed both to the SQL client
//
// Every action reports failure through the typed errors the pipeline's
// classifier understands: *pipeline.FetchError, *pipeline.ArchiveError and
// *pipeline.ToolError.
package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/AleutianAI/retrochadsql/services/pipeline"
)

// Stage names, in execution order.
const (
	StageDownload = "Download"
	StageUnzip    = "Unzip"
	StageAssemble = "Assemble"
	StageDefine   = "Define"
	StageLoad     = "Load"
)

// Order lists the stage names in execution order.
var Order = []string{StageDownload, StageUnzip, StageAssemble, StageDefine, StageLoad}

// SchemaFile is the name of the schema script in the define directory.
const SchemaFile = "schema.sql"

// set holds the per-run state shared by the stage actions: the Chadwick
// catalog and the one-shot schema flags.
type set struct {
	opts    Options
	catalog *catalog

	mu            sync.Mutex
	schemaDefined bool
	schemaLoaded  bool
}

// NewRegistry builds the standard five-stage registry over opts.
//
// Each call creates fresh one-shot state, so use one registry per run.
func NewRegistry(opts Options) (*pipeline.Registry, error) {
	opts = opts.withDefaults()
	s := &set{opts: opts, catalog: newCatalog(opts)}
	return pipeline.NewRegistry(s.descriptors()...)
}

func (s *set) descriptors() []pipeline.StageDescriptor {
	return []pipeline.StageDescriptor{
		{
			Name:          StageDownload,
			Gerund:        "downloading",
			Action:        s.download,
			RequiredPaths: []pipeline.PathKey{pipeline.PathDownload},
		},
		{
			Name:          StageUnzip,
			Gerund:        "unzipping",
			Action:        s.unzip,
			RequiredPaths: []pipeline.PathKey{pipeline.PathDownload, pipeline.PathUnzip},
		},
		{
			Name:          StageAssemble,
			Gerund:        "assembling",
			Action:        s.assemble,
			Prepare:       s.catalog.describe,
			RequiredPaths: []pipeline.PathKey{pipeline.PathUnzip, pipeline.PathAssemble, pipeline.PathChadwick},
		},
		{
			Name:          StageDefine,
			Gerund:        "defining",
			Action:        s.define,
			Prepare:       s.catalog.describe,
			RequiredPaths: []pipeline.PathKey{pipeline.PathUnzip, pipeline.PathAssemble, pipeline.PathDefine, pipeline.PathChadwick},
		},
		{
			Name:          StageLoad,
			Gerund:        "loading",
			Action:        s.load,
			Prepare:       s.testConnection,
			RequiredPaths: []pipeline.PathKey{pipeline.PathAssemble, pipeline.PathDefine},
		},
	}
}

// assemble runs Chadwick once per selected table for a year.
func (s *set) assemble(ctx context.Context, year pipeline.Year) error {
	if err := s.catalog.describe(ctx); err != nil {
		return err
	}
	files, err := s.catalog.eventFiles(year)
	if err != nil {
		return err
	}
	for _, t := range s.catalog.tables {
		if err := s.catalog.assemble(ctx, t, year, files); err != nil {
			return fmt.Errorf("assemble %s: %w", t.name, err)
		}
	}
	s.opts.Logger.Debug("assembled", "year", int(year), "tables", len(s.catalog.tables), "event_files", len(files))
	return nil
}

// define writes schema.sql on the first call of a run, then <year>.sql.
// The year supplies Chadwick with event files to read the header from.
func (s *set) define(ctx context.Context, year pipeline.Year) error {
	dir := s.opts.Paths[pipeline.PathDefine]
	assembleDir := s.opts.Paths[pipeline.PathAssemble]
	dbName := s.opts.Database.Name

	s.mu.Lock()
	defined := s.schemaDefined
	s.mu.Unlock()

	if !defined {
		if err := s.catalog.describe(ctx); err != nil {
			return err
		}
		files, err := s.catalog.eventFiles(year)
		if err != nil {
			return err
		}
		for _, t := range s.catalog.tables {
			if err := s.catalog.loadFieldNames(ctx, t, year, files); err != nil {
				return fmt.Errorf("read %s header: %w", t.name, err)
			}
		}
		schema := renderSchema(dbName, s.catalog.tables, year, assembleDir, s.opts.LineSeparator)
		if err := os.WriteFile(filepath.Join(dir, SchemaFile), []byte(schema), 0o644); err != nil {
			return fmt.Errorf("write schema: %w", err)
		}
		s.mu.Lock()
		s.schemaDefined = true
		s.mu.Unlock()
		s.opts.Logger.Debug("schema defined", "path", filepath.Join(dir, SchemaFile))
	}

	script := renderYearLoad(dbName, s.catalog.tables, year, assembleDir, s.opts.LineSeparator)
	if err := os.WriteFile(filepath.Join(dir, year.String()+".sql"), []byte(script), 0o644); err != nil {
		return fmt.Errorf("write load script: %w", err)
	}
	return nil
}

// load pipes schema.sql into the client on the first call of a run, then
// <year>.sql.
func (s *set) load(ctx context.Context, year pipeline.Year) error {
	dir := s.opts.Paths[pipeline.PathDefine]

	s.mu.Lock()
	loaded := s.schemaLoaded
	s.mu.Unlock()

	if !loaded {
		if err := s.runScript(ctx, filepath.Join(dir, SchemaFile)); err != nil {
			return err
		}
		s.mu.Lock()
		s.schemaLoaded = true
		s.mu.Unlock()
	}
	return s.runScript(ctx, filepath.Join(dir, year.String()+".sql"))
}

// runScript feeds one SQL file to the client.
func (s *set) runScript(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	spec, err := s.opts.Database.clientCommand("--local-infile=1")
	if err != nil {
		return err
	}
	spec.Stdin = f
	if _, err := s.opts.Runner.Run(ctx, spec); err != nil {
		return err
	}
	s.opts.Logger.Debug("sql script loaded", "path", path)
	return nil
}

// testConnection checks that the SQL client starts and can connect.
func (s *set) testConnection(ctx context.Context) error {
	spec, err := s.opts.Database.clientCommand("-e", "SELECT 0;")
	if err != nil {
		return err
	}
	if _, err := s.opts.Runner.Run(ctx, spec); err != nil {
		return fmt.Errorf("can't access SQL client: %w", err)
	}
	return nil
}
