// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Mode controls how rich the CLI output is.
type Mode string

const (
	// ModeRich enables colors, icons and boxes.
	ModeRich Mode = "rich"

	// ModePlain outputs plain text suitable for scripting and log capture.
	ModePlain Mode = "plain"
)

// ModeEnv overrides terminal detection when set to "rich" or "plain".
const ModeEnv = "RETROCHAD_OUTPUT"

// ParseMode converts a string to a Mode. Unknown values are plain.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rich", "full", "color":
		return ModeRich
	default:
		return ModePlain
	}
}

// DetectMode picks rich output for a terminal and plain output for
// anything else: pipes, files, buffers.
func DetectMode(w io.Writer) Mode {
	if env := os.Getenv(ModeEnv); env != "" {
		return ParseMode(env)
	}
	if isTerminal(w) {
		return ModeRich
	}
	return ModePlain
}

// isTerminal checks whether w is a terminal file.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
