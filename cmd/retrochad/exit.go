// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import "fmt"

// Exit codes.
const (
	ExitSuccess = 0
	ExitFailure = 1
	ExitBadArgs = 2
)

// ExitError carries a process exit code through cobra's error return.
//
// # Description
//
// Commands return an ExitError when the code matters. A nil Err means the
// failure was already reported to the user and nothing more is printed.
//
// # Example
//
//	return &ExitError{Code: ExitBadArgs, Err: err}
type ExitError struct {
	// Code is the process exit code.
	Code int

	// Err is the underlying error, or nil when already reported.
	Err error
}

// Error returns a formatted error message.
func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit %d", e.Code)
	}
	return fmt.Sprintf("%v (exit %d)", e.Err, e.Code)
}

// Unwrap returns the underlying error.
func (e *ExitError) Unwrap() error {
	return e.Err
}

func failure(err error) error {
	return &ExitError{Code: ExitFailure, Err: err}
}

func badArgs(err error) error {
	return &ExitError{Code: ExitBadArgs, Err: err}
}
