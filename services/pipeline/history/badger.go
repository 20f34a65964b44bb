// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package history keeps a BadgerDB journal of pipeline runs.
//
// The journal is informational: the pipeline never reads it back to resume
// or skip work. It exists so `retrochad history` can show what ran, when,
// and how it ended.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package history

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/retrochadsql/pkg/logging"
)

// Config holds configuration for the journal's BadgerDB instance.
type Config struct {
	// Dir is the directory for BadgerDB files. Ignored when InMemory is true.
	Dir string

	// InMemory enables in-memory mode (no disk persistence). Used by tests.
	InMemory bool

	// SyncWrites makes every record durable before Put returns.
	SyncWrites bool

	// Logger receives BadgerDB's own messages. Nil disables them.
	Logger *logging.Logger
}

// DefaultConfig returns the on-disk configuration for dir.
func DefaultConfig(dir string) Config {
	return Config{Dir: dir, SyncWrites: true}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts logging.Logger to BadgerDB's Logger interface.
// BadgerDB is chatty at Info, so its Info and Debug both go to Trace.
type badgerLogger struct {
	logger *logging.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Trace(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace(fmt.Sprintf(format, args...))
}

// openDB opens BadgerDB per cfg, creating Dir if needed.
func openDB(cfg Config) (*badger.DB, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("history: dir is required for a persistent journal")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create history directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	return db, nil
}
