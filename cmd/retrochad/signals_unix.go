// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

//go:build !windows

package main

import (
	"os"
	"syscall"
)

// pauseSignals toggle pause on a running pipeline.
func pauseSignals() []os.Signal {
	return []os.Signal{syscall.SIGUSR1}
}
