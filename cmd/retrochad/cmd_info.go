// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/retrochadsql/cmd/retrochad/config"
	"github.com/AleutianAI/retrochadsql/pkg/logging"
	"github.com/AleutianAI/retrochadsql/services/pipeline"
	"github.com/AleutianAI/retrochadsql/services/pipeline/history"
	"github.com/AleutianAI/retrochadsql/services/pipeline/stages"
)

// defaultHistoryLimit is how many runs `retrochad history` shows.
const defaultHistoryLimit = 20

// newInitCmd builds the init command, which writes the default config.
func newInitCmd(opts *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := opts.path()
			if err != nil {
				return failure(err)
			}
			if err := config.Init(path, force); err != nil {
				if errors.Is(err, config.ErrConfigExists) {
					return failure(fmt.Errorf("%w (use --force to replace it)", err))
				}
				return failure(err)
			}
			opts.printer(cmd).Success("Config written to " + path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing config file")
	return cmd
}

// newStagesCmd builds the stages command, which lists the registry.
func newStagesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List the pipeline stages in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := stages.NewRegistry(stages.Options{})
			if err != nil {
				return failure(err)
			}
			rows := make([][]string, 0, registry.Len())
			for _, st := range registry.Stages() {
				rows = append(rows, []string{st.Name, st.Gerund, joinPaths(st.RequiredPaths)})
			}
			opts.printer(cmd).Table([]string{"Stage", "Action", "Paths"}, rows)
			return nil
		},
	}
}

// newYearsCmd builds the years command, which prints a parsed year spec.
func newYearsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "years <spec>",
		Short: "Print the years a year spec selects, in processing order",
		Long: `Print the years a year spec selects, in processing order.

Examples:
  retrochad years 1998-2000
  retrochad years "2004 1998-1999"
  retrochad years all`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := strings.Join(args, " ")
			if spec == "all" {
				spec = config.AvailableYears
			}
			years, err := config.ParseYears(spec)
			if err != nil {
				return badArgs(err)
			}
			parts := make([]string, len(years))
			for i, y := range years {
				parts[i] = y.String()
			}
			opts.printer(cmd).Line(strings.Join(parts, " "))
			return nil
		},
	}
}

// newHistoryCmd builds the history command, which lists recorded runs.
func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := opts.path()
			if err != nil {
				return failure(err)
			}
			cfg, err := config.Load(path, cmd.ErrOrStderr())
			if err != nil {
				return failure(err)
			}
			printer := opts.printer(cmd)
			if cfg.History.Disabled {
				printer.Warning("Run history is disabled in " + path)
				return nil
			}

			journal, err := history.Open(history.DefaultConfig(logging.ExpandPath(cfg.History.Dir)))
			if err != nil {
				return failure(err)
			}
			defer journal.Close()

			records, err := journal.List(cmd.Context(), limit)
			if err != nil {
				return failure(err)
			}
			if len(records) == 0 {
				printer.Line("No runs recorded.")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, historyRow(r))
			}
			printer.Table([]string{"Started", "Run", "Stages", "Years", "Status", "Duration", "Detail"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", defaultHistoryLimit, "Maximum runs to show, 0 for all")
	return cmd
}

func historyRow(r history.Record) []string {
	detail := ""
	if f := r.Failure; f != nil {
		detail = fmt.Sprintf("%s on %d %s", f.Category, f.Year, f.Gerund)
	}
	duration := "-"
	if d := r.Duration(); d > 0 {
		duration = d.Round(time.Second).String()
	}
	return []string{
		r.StartedAt.Local().Format("2006-01-02 15:04"),
		shortID(r.RunID),
		r.First + "-" + r.Last,
		yearSummary(r.Years),
		r.Status,
		duration,
		detail,
	}
}

// yearSummary shows a single year as is and longer lists as first..last (n).
func yearSummary(years []int) string {
	switch len(years) {
	case 0:
		return "-"
	case 1:
		return strconv.Itoa(years[0])
	default:
		return fmt.Sprintf("%d..%d (%d)", years[0], years[len(years)-1], len(years))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func joinPaths(keys []pipeline.PathKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}
