// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/retrochadsql/cmd/retrochad/config"
	"github.com/AleutianAI/retrochadsql/pkg/logging"
	"github.com/AleutianAI/retrochadsql/pkg/telemetry"
	"github.com/AleutianAI/retrochadsql/pkg/ux"
	"github.com/AleutianAI/retrochadsql/services/pipeline"
	"github.com/AleutianAI/retrochadsql/services/pipeline/history"
	"github.com/AleutianAI/retrochadsql/services/pipeline/stages"
)

// shutdownTimeout bounds the telemetry flush at exit.
const shutdownTimeout = 5 * time.Second

// newRunCmd builds the run command.
//
// # Description
//
// Loads and validates the configuration, provisions the working
// directories, runs the preflight checks and drives every selected stage
// over every year. SIGINT or SIGTERM interrupts the run between steps.
// On Unix, SIGUSR1 toggles pause.
//
// # Exit Codes
//
//	0 - Every action finished
//	1 - Invalid configuration, failed preflight, stage failure or interrupt
//	2 - Invalid arguments
func newRunCmd(opts *globalOptions) *cobra.Command {
	var overrides config.Overrides

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the selected stages over the selected years",
		Long: `Run the selected stages over the selected years.

Examples:
  retrochad run                                  # Use the config file
  retrochad run --years 1998-2000                # Override the years
  retrochad run --first Assemble --last Load     # Skip the downloads
  retrochad run --verbosity chatterbox           # Log every step`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, opts, overrides)
		},
	}

	cmd.Flags().StringVar(&overrides.Years, "years", "",
		"Years to process, e.g. \"1998-2000 2004\"")
	cmd.Flags().StringVar(&overrides.First, "first", "",
		"First stage to run")
	cmd.Flags().StringVar(&overrides.Last, "last", "",
		"Last stage to run")
	cmd.Flags().StringVar(&overrides.Verbosity, "verbosity", "",
		"silent, normal, verbose or chatterbox")
	return cmd
}

// runPipeline executes the run command.
func runPipeline(cmd *cobra.Command, opts *globalOptions, overrides config.Overrides) error {
	printer := opts.printer(cmd)

	path, err := opts.path()
	if err != nil {
		return failure(err)
	}
	cfg, err := config.Load(path, cmd.ErrOrStderr())
	if err != nil {
		return failure(err)
	}
	cfg.Apply(overrides)
	res, err := config.Resolve(cfg)
	if err != nil {
		printer.ErrorBox("Invalid configuration", err.Error())
		return &ExitError{Code: ExitFailure}
	}

	logger := logging.New(logging.Config{
		Level:   res.Level,
		LogDir:  res.LogDir,
		JSON:    res.LogJSON,
		Service: "retrochad",
		Output:  cmd.ErrOrStderr(),
	})
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, res.Telemetry)
	if err != nil {
		return failure(fmt.Errorf("telemetry: %w", err))
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	res.Stages.Logger = logger
	registry, err := stages.NewRegistry(res.Stages)
	if err != nil {
		return failure(err)
	}

	journal := openJournal(res, logger)
	if journal != nil {
		defer journal.Close()
	}

	sched, err := pipeline.NewRunner(registry, logger).Start(ctx, res.Run)
	if err != nil {
		printer.ErrorBox("Could not start the run", err.Error())
		return &ExitError{Code: ExitFailure}
	}

	rec := history.Started(sched.RunID(), time.Now(), sched.Years(), sched.Stages())
	putRecord(ctx, journal, rec, logger)

	toggle := make(chan os.Signal, 1)
	if sigs := pauseSignals(); len(sigs) > 0 {
		signal.Notify(toggle, sigs...)
		defer signal.Stop(toggle)
	}

	driver := pipeline.NewDriver(pipeline.DriverConfig{
		Interval:    res.Interval,
		PauseToggle: toggle,
		Logger:      logger,
	})
	outcome := driver.Run(ctx, sched)

	rec.Finish(outcome)
	putRecord(context.Background(), journal, rec, logger)

	if res.MetricsFile != "" {
		if err := pipeline.WriteMetricsFile(res.MetricsFile); err != nil {
			logger.Warn("metrics file not written", "path", res.MetricsFile, "error", err)
		}
	}

	report(printer, outcome)
	if outcome.Status != pipeline.StatusFinished {
		return &ExitError{Code: ExitFailure}
	}
	return nil
}

// openJournal opens the run history, or returns nil when it is disabled
// or unavailable. A broken journal never stops a run.
func openJournal(res *config.Resolved, logger *logging.Logger) *history.Journal {
	if res.HistoryDisabled {
		return nil
	}
	hc := history.DefaultConfig(res.HistoryDir)
	hc.Logger = logger
	journal, err := history.Open(hc)
	if err != nil {
		logger.Warn("run history unavailable", "dir", res.HistoryDir, "error", err)
		return nil
	}
	return journal
}

func putRecord(ctx context.Context, journal *history.Journal, rec history.Record, logger *logging.Logger) {
	if journal == nil {
		return
	}
	if err := journal.Put(ctx, rec); err != nil {
		logger.Warn("run history not updated", "run_id", rec.RunID, "error", err)
	}
}

// report prints the final message for outcome.
func report(printer *ux.Printer, outcome pipeline.Outcome) {
	switch outcome.Status {
	case pipeline.StatusFinished:
		content := fmt.Sprintf("%d actions in %s", outcome.Completed,
			outcome.EndedAt.Sub(outcome.StartedAt).Round(time.Millisecond))
		if r := outcome.Reclaim; r != nil && len(r.DirsRemoved) > 0 {
			content += fmt.Sprintf("\n%d working directories removed", len(r.DirsRemoved))
		}
		printer.Box(capitalize(outcome.Message()), content)
	case pipeline.StatusAborted:
		notice := ""
		if outcome.Failure != nil {
			notice = outcome.Failure.Notice()
		}
		printer.ErrorBox(capitalize(outcome.Message()), notice)
	default:
		printer.Warning(capitalize(outcome.Message()))
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
