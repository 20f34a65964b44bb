// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/retrochadsql/pkg/logging"
)

// RunConfig is the resolved, read-only input of a run.
type RunConfig struct {
	// RunID identifies the run. Generated when empty.
	RunID string

	// Years in processing order, never sorted.
	Years []Year

	// First and Last name the inclusive stage range.
	First string
	Last  string

	// Paths maps every path key a selected stage may need to its location.
	Paths map[PathKey]PathSpec
}

// Runner turns a RunConfig into a started Scheduler.
type Runner struct {
	registry *Registry
	paths    *PathManager
	logger   *logging.Logger
}

// NewRunner creates a Runner over registry. A nil logger discards output.
func NewRunner(registry *Registry, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{
		registry: registry,
		paths:    NewPathManager(logger),
		logger:   logger,
	}
}

// Start selects the stage range, provisions paths, runs preflight checks
// and starts a scheduler.
//
// Description:
//
//	Nothing is run if any step before Process fails. Directories created
//	by provisioning are left in place in that case.
//
// Outputs:
//
//	*Scheduler - A started scheduler, ready for Advance.
//	error - ErrInvalidSelection, ErrInvalidConfig, *FatalIOError or
//	        *PreflightError.
func (r *Runner) Start(ctx context.Context, cfg RunConfig) (*Scheduler, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Runner.Start",
		trace.WithAttributes(
			attribute.String("first", cfg.First),
			attribute.String("last", cfg.Last),
			attribute.Int("years", len(cfg.Years)),
		),
	)
	defer span.End()

	sched, err := r.start(ctx, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return sched, nil
}

func (r *Runner) start(ctx context.Context, cfg RunConfig) (*Scheduler, error) {
	if len(cfg.Years) == 0 {
		return nil, fmt.Errorf("%w: no years", ErrInvalidConfig)
	}
	selection, err := r.registry.SelectRange(cfg.First, cfg.Last)
	if err != nil {
		return nil, err
	}

	keys := RequiredPaths(selection)
	ledger, err := r.paths.Provision(keys, cfg.Paths)
	if err != nil {
		return nil, err
	}
	for _, e := range ledger.Entries() {
		r.logger.Debug("path provisioned", "entry", e.String())
	}

	for _, st := range selection {
		if st.Prepare == nil {
			continue
		}
		r.logger.Debug("preflight", "stage", st.Name)
		if err := st.Prepare(ctx); err != nil {
			return nil, &PreflightError{Stage: st.Name, Err: err}
		}
	}

	sched, err := NewScheduler(SchedulerConfig{
		RunID:     cfg.RunID,
		Years:     cfg.Years,
		Stages:    selection,
		Ledger:    ledger,
		Paths:     cfg.Paths,
		Reclaimer: r.paths,
		Logger:    r.logger,
	})
	if err != nil {
		return nil, err
	}
	if err := sched.Process(); err != nil {
		return nil, err
	}
	return sched, nil
}
