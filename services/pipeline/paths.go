// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AleutianAI/retrochadsql/pkg/logging"
)

// PathSpec is the configured location for one path key.
type PathSpec struct {
	// Location is the directory. Relative locations are made absolute
	// against the working directory at provisioning time.
	Location string

	// Keep preserves the directory and its files after a successful run.
	Keep bool
}

// PathEntry records what provisioning found for one key.
type PathEntry struct {
	Key      PathKey
	Location string

	// Preexisted is true when Location already existed before the run.
	Preexisted bool

	// Anchor is the deepest ancestor of Location (or Location itself) that
	// existed before the run. Empty when nothing up to the root existed.
	Anchor string
}

// PathLedger is the immutable record of a run's provisioned locations.
// Reclaim never walks above anything recorded here as pre-existing.
type PathLedger struct {
	entries   []PathEntry
	byKey     map[PathKey]int
	protected map[string]struct{}
}

// Entries returns the ledger entries in provisioning order.
func (l *PathLedger) Entries() []PathEntry {
	out := make([]PathEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Lookup returns the entry for key.
func (l *PathLedger) Lookup(key PathKey) (PathEntry, bool) {
	i, ok := l.byKey[key]
	if !ok {
		return PathEntry{}, false
	}
	return l.entries[i], true
}

// Location returns the provisioned location for key, or "".
func (l *PathLedger) Location(key PathKey) string {
	e, _ := l.Lookup(key)
	return e.Location
}

// Protected reports whether dir was recorded as pre-existing.
func (l *PathLedger) Protected(dir string) bool {
	_, ok := l.protected[filepath.Clean(dir)]
	return ok
}

// ReclaimReport summarizes what Reclaim removed.
type ReclaimReport struct {
	FilesRemoved int      `json:"files_removed"`
	DirsRemoved  []string `json:"dirs_removed"`
}

// Reclaimer removes a run's non-kept working directories.
type Reclaimer interface {
	Reclaim(ledger *PathLedger, paths map[PathKey]PathSpec) ReclaimReport
}

// PathManager provisions and reclaims working directories.
//
// Thread Safety:
//
//	PathManager holds no mutable state and is safe for concurrent use,
//	though concurrent runs sharing locations will step on each other.
type PathManager struct {
	logger *logging.Logger
}

// NewPathManager creates a PathManager. A nil logger discards output.
func NewPathManager(logger *logging.Logger) *PathManager {
	if logger == nil {
		logger = logging.Discard()
	}
	return &PathManager{logger: logger}
}

// Provision records the pre-run state of every key and then creates
// missing directories.
//
// Description:
//
//	Existence and anchors are recorded for ALL keys before any directory is
//	created, so a directory made for one key is never mistaken for a
//	pre-existing ancestor of another.
//
// Outputs:
//
//	*PathLedger - The ledger, in key order.
//	error - *FatalIOError on an unknown key or a directory that cannot be
//	        created. No stage should run after an error.
func (m *PathManager) Provision(keys []PathKey, paths map[PathKey]PathSpec) (*PathLedger, error) {
	ledger := &PathLedger{
		entries:   make([]PathEntry, 0, len(keys)),
		byKey:     make(map[PathKey]int, len(keys)),
		protected: make(map[string]struct{}),
	}

	for _, key := range keys {
		if _, dup := ledger.byKey[key]; dup {
			continue
		}
		spec, ok := paths[key]
		if !ok || spec.Location == "" {
			return nil, &FatalIOError{Key: key, Err: ErrUnknownPath}
		}
		loc, err := filepath.Abs(spec.Location)
		if err != nil {
			return nil, &FatalIOError{Key: key, Location: spec.Location, Err: err}
		}
		anchor := deepestExisting(loc)
		entry := PathEntry{
			Key:        key,
			Location:   loc,
			Preexisted: anchor == loc,
			Anchor:     anchor,
		}
		if anchor != "" {
			ledger.protected[anchor] = struct{}{}
		}
		ledger.byKey[key] = len(ledger.entries)
		ledger.entries = append(ledger.entries, entry)
	}

	for _, e := range ledger.entries {
		if e.Preexisted {
			continue
		}
		if err := os.MkdirAll(e.Location, 0o755); err != nil {
			return nil, &FatalIOError{Key: e.Key, Location: e.Location, Err: err}
		}
		m.logger.Debug("created directory", "key", string(e.Key), "path", e.Location, "anchor", e.Anchor)
	}
	return ledger, nil
}

// Reclaim removes the files and directories of every non-kept location.
//
// Description:
//
//	First, every non-directory entry directly inside each non-kept location
//	is removed. Failures are swallowed and subdirectories are left alone.
//	Then each location is removed and its parents after it, walking up
//	until a protected directory, a directory that will not delete, or the
//	filesystem root. Keys absent from paths are kept.
func (m *PathManager) Reclaim(ledger *PathLedger, paths map[PathKey]PathSpec) ReclaimReport {
	report := ReclaimReport{}
	if ledger == nil {
		return report
	}

	var targets []string
	seen := make(map[string]struct{})
	for _, e := range ledger.entries {
		spec, ok := paths[e.Key]
		if !ok || spec.Keep {
			continue
		}
		if _, dup := seen[e.Location]; dup {
			continue
		}
		seen[e.Location] = struct{}{}
		targets = append(targets, e.Location)
	}

	for _, target := range targets {
		report.FilesRemoved += m.removeFiles(target)
	}

	for _, target := range targets {
		dir := target
		for {
			if ledger.Protected(dir) {
				break
			}
			if err := os.Remove(dir); err != nil {
				m.logger.Debug("stopped reclaiming", "path", dir, "error", err.Error())
				break
			}
			report.DirsRemoved = append(report.DirsRemoved, dir)
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	m.logger.Debug("reclaim complete",
		"files_removed", report.FilesRemoved,
		"dirs_removed", len(report.DirsRemoved),
	)
	return report
}

// removeFiles deletes the non-directory entries of dir and returns how
// many were removed.
func (m *PathManager) removeFiles(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		m.logger.Debug("cannot list directory", "path", dir, "error", err.Error())
		return 0
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		p := filepath.Join(dir, entry.Name())
		if err := os.Remove(p); err != nil {
			m.logger.Debug("cannot remove file", "path", p, "error", err.Error())
			continue
		}
		removed++
	}
	return removed
}

// deepestExisting returns path if it exists, else its deepest existing
// ancestor, else "" when nothing up to the root exists.
func deepestExisting(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		up := filepath.Dir(path)
		if up == path {
			return ""
		}
		path = up
	}
}

// String describes the entry for logs.
func (e PathEntry) String() string {
	return fmt.Sprintf("%s=%s (preexisted=%t, anchor=%s)", e.Key, e.Location, e.Preexisted, e.Anchor)
}

var _ Reclaimer = (*PathManager)(nil)
