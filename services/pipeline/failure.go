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
	"strings"
)

// Category groups stage failures by cause.
type Category string

const (
	CategoryNetworkFetch   Category = "NetworkFetch"
	CategoryArchiveCorrupt Category = "ArchiveCorrupt"
	CategoryExternalTool   Category = "ExternalTool"
	CategoryGeneric        Category = "Generic"
)

// corruptArchiveDetail is shown for every archive failure; the underlying
// zip error is rarely meaningful to the user.
const corruptArchiveDetail = "The file may have been corrupted during downloading."

// StageFailure is a classified action failure. It is reported once and
// never retried.
type StageFailure struct {
	Category Category `json:"category"`
	Year     Year     `json:"year"`
	Stage    string   `json:"stage,omitempty"`
	Gerund   string   `json:"gerund"`
	Detail   string   `json:"detail"`
	Err      error    `json:"-"`
}

// Error implements the error interface.
func (f *StageFailure) Error() string {
	return fmt.Sprintf("%s error on %d %s: %s", f.Category, f.Year, f.Gerund, f.Detail)
}

// Unwrap returns the raw action error.
func (f *StageFailure) Unwrap() error {
	return f.Err
}

// Notice renders the user-facing failure message.
func (f *StageFailure) Notice() string {
	return f.Error() + "\nAll files and directories will be kept."
}

// Classify maps a raw action error to a StageFailure.
//
// Description:
//
//	The first matching rule wins:
//
//	  *FetchError   -> NetworkFetch   (status text or transport reason)
//	  *ArchiveError -> ArchiveCorrupt (fixed corruption notice)
//	  *ToolError    -> ExternalTool   (captured program output)
//	  anything else -> Generic        (err.Error())
//
//	Classify is pure and never changes control flow. It returns nil for a
//	nil error.
func Classify(err error, year Year, gerund string) *StageFailure {
	if err == nil {
		return nil
	}
	f := &StageFailure{Year: year, Gerund: gerund, Err: err}

	var fetchErr *FetchError
	var archiveErr *ArchiveError
	var toolErr *ToolError
	switch {
	case errors.As(err, &fetchErr):
		f.Category = CategoryNetworkFetch
		f.Detail = fetchErr.Detail()
	case errors.As(err, &archiveErr):
		f.Category = CategoryArchiveCorrupt
		f.Detail = corruptArchiveDetail
	case errors.As(err, &toolErr):
		f.Category = CategoryExternalTool
		f.Detail = strings.TrimSpace(toolErr.Output)
		if f.Detail == "" {
			f.Detail = toolErr.Error()
		}
	default:
		f.Category = CategoryGeneric
		f.Detail = err.Error()
	}
	return f
}
