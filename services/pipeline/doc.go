// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline is the RetroChadSQL execution engine.
//
// For each selected year it runs an ordered range of stages (download,
// unzip, assemble, define, load), one unit of work per scheduler step.
//
// # Components
//
//   - Registry: the ordered stage descriptors and first..last selection.
//   - PathManager: provisions working directories before a run and
//     reclaims the non-kept ones after a fully successful run.
//   - Classify: maps raw action errors to categorized StageFailures.
//   - Scheduler: the explicit state machine advanced by a host loop.
//   - Driver: the rate-limited host loop with pause toggling.
//   - Runner: select, provision, preflight and start in one call.
//
// # Usage
//
//	registry, _ := pipeline.NewRegistry(descs...)
//	sched, err := pipeline.NewRunner(registry, logger).Start(ctx, runConfig)
//	if err != nil {
//	    return err // nothing ran
//	}
//	outcome := pipeline.NewDriver(pipeline.DriverConfig{Interval: 10 * time.Millisecond}).Run(ctx, sched)
//
// A failed action halts the run immediately and keeps every file. The
// engine never retries, never resumes across processes and never runs two
// actions at once.
package pipeline
