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
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/retrochadsql/pkg/logging"
)

// =============================================================================
// States
// =============================================================================

// Phase is the scheduler's coarse state.
type Phase int

const (
	// PhaseRunning means (year, stage) pairs remain to be run.
	PhaseRunning Phase = iota

	// PhaseAborted means an action failed. The next Advance finishes.
	PhaseAborted

	// PhaseCleaningUp means every pair succeeded. The next Advance reclaims.
	PhaseCleaningUp

	// PhaseFinished is terminal.
	PhaseFinished
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "running"
	case PhaseAborted:
		return "aborted"
	case PhaseCleaningUp:
		return "cleaning_up"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Step reports what a single Advance call did.
type Step int

const (
	// StepIdle means nothing happened: the run is not started or finished.
	StepIdle Step = iota

	// StepPaused means the scheduler is paused and did nothing.
	StepPaused

	// StepScheduled means the next pair was announced; its action runs on
	// the next Advance.
	StepScheduled

	// StepRan means an action completed successfully.
	StepRan

	// StepFailed means an action failed and the run is aborting.
	StepFailed

	// StepCleaningUp means all pairs succeeded; reclaim runs next.
	StepCleaningUp

	// StepFinished means the run reached its terminal state.
	StepFinished

	// StepInterrupted means a cancelled context ended the run.
	StepInterrupted
)

// String returns the step name.
func (s Step) String() string {
	switch s {
	case StepIdle:
		return "idle"
	case StepPaused:
		return "paused"
	case StepScheduled:
		return "scheduled"
	case StepRan:
		return "ran"
	case StepFailed:
		return "failed"
	case StepCleaningUp:
		return "cleaning_up"
	case StepFinished:
		return "finished"
	case StepInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Status is the externally visible run status.
type Status string

const (
	StatusPending     Status = "pending"
	StatusRunning     Status = "running"
	StatusFinished    Status = "finished"
	StatusAborted     Status = "aborted"
	StatusInterrupted Status = "interrupted"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusAborted || s == StatusInterrupted
}

// Outcome is the result of a run, relayed to the user by the host.
type Outcome struct {
	RunID     string         `json:"run_id"`
	Status    Status         `json:"status"`
	Failure   *StageFailure  `json:"failure,omitempty"`
	Reclaim   *ReclaimReport `json:"reclaim,omitempty"`
	Completed int            `json:"completed"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
}

// Message is the final line shown to the user.
func (o Outcome) Message() string {
	switch o.Status {
	case StatusFinished:
		return "process complete"
	case StatusAborted:
		return "process ended, all files kept"
	case StatusInterrupted:
		return "process interrupted, all files kept"
	case StatusRunning:
		return "process running"
	default:
		return "process not started"
	}
}

// =============================================================================
// Scheduler
// =============================================================================

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	// RunID identifies the run. Generated when empty.
	RunID string

	// Years in processing order. Duplicates are dropped, order is kept.
	Years []Year

	// Stages is the selected, ordered stage range.
	Stages []StageDescriptor

	// Ledger is the provisioning record consulted by reclaim.
	Ledger *PathLedger

	// Paths carries the keep flags consulted by reclaim.
	Paths map[PathKey]PathSpec

	// Reclaimer removes non-kept directories after full success.
	// Default: a PathManager using Logger.
	Reclaimer Reclaimer

	// Logger receives progress reports. Default: discard.
	Logger *logging.Logger
}

// point is where inside a pair the scheduler is parked.
type point int

const (
	pointStart point = iota
	pointBeforeAction
	pointAfterAction
)

// runState is created by Process, mutated only by Advance and dropped at
// Finished.
type runState struct {
	yearIndex  int
	stageIndex int
	phase      Phase
	point      point
}

// Scheduler runs every selected stage for every year, one unit of work per
// Advance call.
//
// Description:
//
//	The scheduler is an explicit state machine. Each Advance performs the
//	work between two scheduling points: announcing a pair, running its
//	action, or moving on. The host decides when to call Advance, which is
//	what lets it stay responsive, pause, or stop between steps.
//
//	    Running --(action fails)--> Aborted --> Finished
//	    Running --(last pair ok)--> CleaningUp --> Finished
//	    any non-aborted phase --(ctx cancelled)--> Finished (interrupted)
//
//	Reclaim only ever runs from CleaningUp, so any failure or interruption
//	leaves every file in place.
//
// Thread Safety:
//
//	Advance calls are serialized. Pause, Unpause, Outcome and Phase may be
//	called from other goroutines at any time, including while an action is
//	running.
type Scheduler struct {
	cfg       SchedulerConfig
	logger    *logging.Logger
	reclaimer Reclaimer

	advanceMu sync.Mutex
	mu        sync.Mutex
	state     *runState
	phase     Phase
	outcome   Outcome
	paused    atomic.Bool
	done      chan struct{}

	runSpan trace.Span
}

// NewScheduler validates cfg and creates an unstarted scheduler.
//
// Outputs:
//
//	*Scheduler - The scheduler; call Process to start it.
//	error - ErrInvalidConfig when there are no years, no stages, a stage
//	        without an action, or no ledger.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if len(cfg.Stages) == 0 {
		return nil, fmt.Errorf("%w: no stages selected", ErrInvalidConfig)
	}
	for _, st := range cfg.Stages {
		if st.Action == nil {
			return nil, fmt.Errorf("%w: stage %s has no action", ErrInvalidConfig, st.Name)
		}
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("%w: no path ledger", ErrInvalidConfig)
	}
	cfg.Years = dedupeYears(cfg.Years)
	if len(cfg.Years) == 0 {
		return nil, fmt.Errorf("%w: no years", ErrInvalidConfig)
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	reclaimer := cfg.Reclaimer
	if reclaimer == nil {
		reclaimer = NewPathManager(cfg.Logger)
	}

	return &Scheduler{
		cfg:       cfg,
		logger:    cfg.Logger.With("run_id", cfg.RunID),
		reclaimer: reclaimer,
		outcome: Outcome{
			RunID:  cfg.RunID,
			Status: StatusPending,
		},
		done: make(chan struct{}),
	}, nil
}

// Process starts the run at the first year and first stage. No work is
// done until the first Advance.
func (s *Scheduler) Process() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.outcome.Status != StatusPending {
		return ErrAlreadyStarted
	}
	s.state = &runState{phase: PhaseRunning, point: pointStart}
	s.phase = PhaseRunning
	s.outcome.Status = StatusRunning
	s.outcome.StartedAt = time.Now()

	_, s.runSpan = tracer.Start(context.Background(), "pipeline.Scheduler.Run",
		trace.WithAttributes(
			attribute.String("run_id", s.cfg.RunID),
			attribute.Int("years", len(s.cfg.Years)),
			attribute.String("first_stage", s.cfg.Stages[0].Name),
			attribute.String("last_stage", s.cfg.Stages[len(s.cfg.Stages)-1].Name),
		),
	)

	s.logger.Info("run started",
		"years", len(s.cfg.Years),
		"first", s.cfg.Stages[0].Name,
		"last", s.cfg.Stages[len(s.cfg.Stages)-1].Name,
	)
	return nil
}

// Advance performs the work between the current scheduling point and the
// next one.
//
// Description:
//
//	Cancellation and pause are only observed here, at the start of a step.
//	A cancelled ctx ends a non-aborted run as interrupted without reclaim.
//	The running action receives ctx, but the scheduler never interrupts
//	an action on its own.
//
// Outputs:
//
//	Step - What happened. StepIdle before Process and after Finished.
func (s *Scheduler) Advance(ctx context.Context) Step {
	s.advanceMu.Lock()
	defer s.advanceMu.Unlock()

	s.mu.Lock()
	st := s.state
	if st == nil || st.phase == PhaseFinished {
		s.mu.Unlock()
		return StepIdle
	}
	if st.phase != PhaseAborted && ctx.Err() != nil {
		defer s.mu.Unlock()
		s.logger.Error(Outcome{Status: StatusInterrupted}.Message(), "reason", ctx.Err().Error())
		s.finishLocked(StatusInterrupted)
		return StepInterrupted
	}
	if s.paused.Load() {
		s.mu.Unlock()
		return StepPaused
	}

	switch st.phase {
	case PhaseRunning:
		return s.advanceRunning(ctx, st)

	case PhaseAborted:
		defer s.mu.Unlock()
		s.logger.Error(Outcome{Status: StatusAborted}.Message())
		s.finishLocked(StatusAborted)
		return StepFinished

	default: // PhaseCleaningUp
		s.mu.Unlock()
		report := s.reclaimer.Reclaim(s.cfg.Ledger, s.cfg.Paths)
		reclaimedDirsTotal.Add(float64(len(report.DirsRemoved)))

		s.mu.Lock()
		defer s.mu.Unlock()
		s.outcome.Reclaim = &report
		s.logger.Info(Outcome{Status: StatusFinished}.Message(),
			"completed", s.outcome.Completed,
			"files_removed", report.FilesRemoved,
			"dirs_removed", len(report.DirsRemoved),
		)
		s.finishLocked(StatusFinished)
		return StepFinished
	}
}

// advanceRunning handles one step of the Running phase. It is entered
// with s.mu held and releases it.
func (s *Scheduler) advanceRunning(ctx context.Context, st *runState) Step {
	switch st.point {
	case pointStart:
		defer s.mu.Unlock()
		s.announceLocked(st)
		st.point = pointBeforeAction
		return StepScheduled

	case pointBeforeAction:
		year := s.cfg.Years[st.yearIndex]
		stage := s.cfg.Stages[st.stageIndex]
		s.mu.Unlock()

		failure := s.runAction(ctx, year, stage)

		s.mu.Lock()
		defer s.mu.Unlock()
		if failure != nil {
			st.phase = PhaseAborted
			s.phase = PhaseAborted
			s.outcome.Failure = failure
			s.logger.Error("stage failed",
				"category", string(failure.Category),
				"year", int(failure.Year),
				"stage", failure.Stage,
				"notice", failure.Notice(),
			)
			return StepFailed
		}
		s.outcome.Completed++
		s.logger.Debug("stage complete", "year", int(year), "stage", stage.Name, "gerund", stage.Gerund)
		st.point = pointAfterAction
		return StepRan

	default: // pointAfterAction
		defer s.mu.Unlock()
		st.stageIndex++
		if st.stageIndex == len(s.cfg.Stages) {
			s.logger.Info("year complete", "year", int(s.cfg.Years[st.yearIndex]))
			st.stageIndex = 0
			st.yearIndex++
		}
		if st.yearIndex == len(s.cfg.Years) {
			st.phase = PhaseCleaningUp
			s.phase = PhaseCleaningUp
			s.logger.Debug("starting cleanup")
			return StepCleaningUp
		}
		s.announceLocked(st)
		st.point = pointBeforeAction
		return StepScheduled
	}
}

// announceLocked reports the pair about to run.
func (s *Scheduler) announceLocked(st *runState) {
	stage := s.cfg.Stages[st.stageIndex]
	s.logger.Trace("stage starting",
		"year", int(s.cfg.Years[st.yearIndex]),
		"stage", stage.Name,
		"gerund", stage.Gerund,
	)
}

// runAction invokes one action under a span and classifies its error.
func (s *Scheduler) runAction(ctx context.Context, year Year, stage StageDescriptor) (failure *StageFailure) {
	ctx = trace.ContextWithSpan(ctx, s.runSpan)
	ctx, span := tracer.Start(ctx, "pipeline.Scheduler.runAction",
		trace.WithAttributes(
			attribute.String("stage", stage.Name),
			attribute.Int("year", int(year)),
		),
	)
	defer span.End()

	inst := otelInstruments.get(meter, s.logger)
	attrs := metric.WithAttributes(attribute.String("stage", stage.Name))
	start := time.Now()

	defer func() {
		elapsed := time.Since(start).Seconds()
		stageDuration.WithLabelValues(stage.Name).Observe(elapsed)
		if inst.latency != nil {
			inst.latency.Record(ctx, elapsed, attrs)
		}
		if failure != nil {
			span.RecordError(failure.Err)
			span.SetStatus(codes.Error, failure.Detail)
			span.SetAttributes(attribute.String("category", string(failure.Category)))
			stageFailureTotal.WithLabelValues(string(failure.Category)).Inc()
			if inst.failures != nil {
				inst.failures.Add(ctx, 1, attrs)
			}
			return
		}
		span.SetStatus(codes.Ok, "")
		stageSuccessTotal.WithLabelValues(stage.Name).Inc()
		if inst.successes != nil {
			inst.successes.Add(ctx, 1, attrs)
		}
	}()

	// Cancellation is observed between actions, never inside one.
	err := callAction(context.WithoutCancel(ctx), stage.Action, year)
	failure = Classify(err, year, stage.Gerund)
	if failure != nil {
		failure.Stage = stage.Name
	}
	return failure
}

// callAction runs action, converting a panic into an error so that a
// misbehaving stage fails the run like any other error.
func callAction(ctx context.Context, action Action, year Year) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return action(ctx, year)
}

// finishLocked moves the run to Finished with the given status.
func (s *Scheduler) finishLocked(status Status) {
	s.state.phase = PhaseFinished
	s.state = nil
	s.phase = PhaseFinished
	s.outcome.Status = status
	s.outcome.EndedAt = time.Now()
	runsTotal.WithLabelValues(string(status)).Inc()

	if s.runSpan != nil {
		s.runSpan.SetAttributes(
			attribute.String("status", string(status)),
			attribute.Int("completed", s.outcome.Completed),
		)
		if status == StatusFinished {
			s.runSpan.SetStatus(codes.Ok, "")
		} else {
			s.runSpan.SetStatus(codes.Error, string(status))
		}
		s.runSpan.End()
	}
	close(s.done)
}

// Pause stops the run at the next scheduling point. An action already
// running completes first.
func (s *Scheduler) Pause() {
	if !s.paused.Swap(true) {
		s.logger.Info("run paused")
	}
}

// Unpause lets a paused run continue.
func (s *Scheduler) Unpause() {
	if s.paused.Swap(false) {
		s.logger.Info("run resumed")
	}
}

// Paused reports whether the run is paused.
func (s *Scheduler) Paused() bool {
	return s.paused.Load()
}

// Phase returns the current phase. Before Process it is PhaseRunning with
// a pending outcome.
func (s *Scheduler) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Outcome returns a snapshot of the run's result so far.
func (s *Scheduler) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Done is closed when the run reaches Finished.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// RunID returns the run identifier.
func (s *Scheduler) RunID() string {
	return s.cfg.RunID
}

// Years returns the deduplicated year sequence.
func (s *Scheduler) Years() []Year {
	return append([]Year(nil), s.cfg.Years...)
}

// Stages returns the selected stage range.
func (s *Scheduler) Stages() []StageDescriptor {
	return append([]StageDescriptor(nil), s.cfg.Stages...)
}

// dedupeYears drops repeated years, keeping first appearances in order.
func dedupeYears(years []Year) []Year {
	seen := make(map[Year]struct{}, len(years))
	out := make([]Year, 0, len(years))
	for _, y := range years {
		if _, ok := seen[y]; ok {
			continue
		}
		seen[y] = struct{}{}
		out = append(out, y)
	}
	return out
}
