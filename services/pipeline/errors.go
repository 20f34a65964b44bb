// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for pipeline operations.
var (
	// ErrEmptyRegistry is returned when a registry is built with no stages.
	ErrEmptyRegistry = errors.New("registry has no stages")

	// ErrInvalidStage is returned when a stage descriptor is malformed
	// (empty name or nil action).
	ErrInvalidStage = errors.New("invalid stage descriptor")

	// ErrDuplicateStage is returned when two descriptors share a name.
	ErrDuplicateStage = errors.New("duplicate stage name")

	// ErrInvalidSelection is returned when a first..last stage range does not
	// resolve to a non-empty contiguous slice of the registry.
	ErrInvalidSelection = errors.New("invalid stage selection")

	// ErrUnknownPath is returned when a required path key has no location.
	ErrUnknownPath = errors.New("no location configured for path")

	// ErrInvalidConfig is returned when a run is started with an unusable
	// configuration (no years, no stages, no ledger).
	ErrInvalidConfig = errors.New("invalid run configuration")

	// ErrAlreadyStarted is returned when Process is called twice.
	ErrAlreadyStarted = errors.New("run already started")
)

// FatalIOError reports a provisioning failure. It is raised before any
// stage runs and means nothing was attempted.
type FatalIOError struct {
	// Key is the path key being provisioned, if any.
	Key PathKey

	// Location is the filesystem location involved.
	Location string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *FatalIOError) Error() string {
	if e.Location == "" {
		return fmt.Sprintf("provision %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("provision %s (%s): %v", e.Key, e.Location, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *FatalIOError) Unwrap() error {
	return e.Err
}

// PreflightError reports a failed stage preflight check. Like FatalIOError
// it is raised before the run enters the state machine.
type PreflightError struct {
	Stage string
	Err   error
}

// Error implements the error interface.
func (e *PreflightError) Error() string {
	return fmt.Sprintf("preflight %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *PreflightError) Unwrap() error {
	return e.Err
}

// FetchError reports a failed network retrieval.
//
// Either StatusCode is set (the server answered with a non-2xx status) or
// Reason is set (the request never completed).
type FetchError struct {
	URL        string
	StatusCode int
	Reason     string
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Detail())
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Detail describes the failure for the user: "404 Not Found" for a status
// failure, otherwise the transport reason.
func (e *FetchError) Detail() string {
	if e.StatusCode > 0 {
		text := http.StatusText(e.StatusCode)
		if text == "" {
			return fmt.Sprintf("%d", e.StatusCode)
		}
		return fmt.Sprintf("%d %s", e.StatusCode, text)
	}
	if e.Reason != "" {
		return e.Reason
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown fetch failure"
}

// ArchiveError reports an unreadable or corrupt archive.
type ArchiveError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// ToolError reports an external program that exited unsuccessfully.
// Output holds whatever the program wrote to stdout and stderr.
type ToolError struct {
	Tool     string
	Args     []string
	ExitCode int
	Output   string
	Err      error
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	cmd := strings.TrimSpace(e.Tool + " " + strings.Join(e.Args, " "))
	return fmt.Sprintf("%s exited with code %d: %v", cmd, e.ExitCode, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ToolError) Unwrap() error {
	return e.Err
}
