// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/retrochadsql/pkg/logging"
)

// defaultPausePoll bounds how long a paused driver sleeps before checking
// the scheduler again.
const defaultPausePoll = 250 * time.Millisecond

// DriverConfig configures a Driver.
type DriverConfig struct {
	// Interval is the minimum time between steps. Zero means unpaced.
	Interval time.Duration

	// Burst is the number of steps allowed back to back. Default: 1.
	Burst int

	// PauseToggle, when set, flips the scheduler between paused and
	// running on every receive. Typically fed by signal.Notify.
	PauseToggle <-chan os.Signal

	// Logger receives driver messages. Default: discard.
	Logger *logging.Logger
}

// Driver is the host loop that resumes a Scheduler until it finishes.
//
// Description:
//
//	Between steps the driver waits on a token-bucket limiter so a run
//	never saturates the machine, and checks for pause toggles. It never
//	runs two actions at once.
type Driver struct {
	limiter *rate.Limiter
	toggle  <-chan os.Signal
	logger  *logging.Logger
}

// NewDriver creates a Driver.
func NewDriver(cfg DriverConfig) *Driver {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Driver{
		limiter: rate.NewLimiter(limit, burst),
		toggle:  cfg.PauseToggle,
		logger:  logger,
	}
}

// Run advances s until it finishes and returns its outcome.
//
// Description:
//
//	Cancelling ctx does not stop the loop directly: the next Advance
//	observes the cancellation and ends the run as interrupted, so the
//	returned outcome is always terminal for a started scheduler. A
//	scheduler that was never started returns immediately with a pending
//	outcome.
func (d *Driver) Run(ctx context.Context, s *Scheduler) Outcome {
	for {
		d.pollToggle(s)

		switch s.Advance(ctx) {
		case StepFinished, StepInterrupted, StepIdle:
			return s.Outcome()
		case StepPaused:
			d.waitWhilePaused(ctx, s)
			continue
		}

		// An error here means ctx is done; the next Advance reports it.
		_ = d.limiter.Wait(ctx)
	}
}

// pollToggle applies any pending pause toggle without blocking.
func (d *Driver) pollToggle(s *Scheduler) {
	for {
		select {
		case <-d.toggle:
			d.flip(s)
		default:
			return
		}
	}
}

// waitWhilePaused blocks until a toggle arrives, ctx is done, or the
// poll interval passes.
func (d *Driver) waitWhilePaused(ctx context.Context, s *Scheduler) {
	timer := time.NewTimer(defaultPausePoll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-d.toggle:
		d.flip(s)
	case <-timer.C:
	}
}

func (d *Driver) flip(s *Scheduler) {
	if s.Paused() {
		s.Unpause()
		d.logger.Debug("pause toggled off", "run_id", s.RunID())
		return
	}
	s.Pause()
	d.logger.Debug("pause toggled on", "run_id", s.RunID())
}
