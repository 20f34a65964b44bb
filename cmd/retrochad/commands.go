// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"

	"github.com/AleutianAI/retrochadsql/cmd/retrochad/config"
	"github.com/AleutianAI/retrochadsql/pkg/ux"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string // --config, default ~/.retrochadsql/retrochad.yaml
	output     string // --output rich|plain, default terminal detection
}

// path returns the config file to use.
func (o *globalOptions) path() (string, error) {
	if o.configPath != "" {
		return o.configPath, nil
	}
	return config.DefaultPath()
}

// printer returns the ux printer for cmd's stdout.
func (o *globalOptions) printer(cmd *cobra.Command) *ux.Printer {
	if o.output != "" {
		return ux.NewPrinterMode(cmd.OutOrStdout(), ux.ParseMode(o.output))
	}
	return ux.NewPrinter(cmd.OutOrStdout())
}

// newRootCmd builds the command tree. Each call returns fresh flag state.
func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "retrochad",
		Short: "Build a SQL database of Retrosheet play-by-play data",
		Long: `retrochad downloads Retrosheet event archives, unzips them,
converts them to CSV with the Chadwick tools, writes SQL scripts and loads
them into a MySQL-compatible database.

Stages run in order: Download Unzip Assemble Define Load.
Choose a range with first/last in the config file or with --first/--last.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return badArgs(err)
	})

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"Config file (default ~/.retrochadsql/retrochad.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.output, "output", "",
		"Output style: rich or plain (default: rich on a terminal)")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newInitCmd(opts),
		newStagesCmd(opts),
		newYearsCmd(opts),
		newHistoryCmd(opts),
	)
	return rootCmd
}
