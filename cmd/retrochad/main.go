// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command retrochad downloads Retrosheet event files, converts them with
// the Chadwick tools and loads them into a SQL database.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/awnumar/memguard"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	code := execute(os.Args[1:], os.Stdout, os.Stderr)
	// os.Exit skips deferred calls, so wipe sealed secrets first.
	memguard.Purge()
	os.Exit(code)
}

// execute runs the root command with args and maps its error to an exit
// code.
func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", exitErr.Err)
		}
		return exitErr.Code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return ExitFailure
}
