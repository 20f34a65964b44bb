// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides the leveled log sink for RetroChadSQL runs.
//
// The sink is built on Go's slog package with multi-destination output:
//
//   - Default: stderr output (follows Unix conventions)
//   - Optional: JSON file logging with automatic directory creation
//   - Optional: a LogExporter that receives every emitted entry
//
// # Verbosity
//
// Runs are configured with one of four verbosity names, inherited from the
// original reporter's "noisiness" setting:
//
//	silent      -> Error   (only failures and the terminal message)
//	normal      -> Info    (run and year milestones)
//	verbose     -> Debug   (every completed stage)
//	chatterbox  -> Trace   (every scheduling point)
//
// # Basic Usage
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    LogDir:  "~/.retrochadsql/logs",
//	    Service: "retrochad",
//	})
//	defer logger.Close()
//
//	logger.Info("run started", "run_id", runID)
//
// # Thread Safety
//
// Logger is safe for concurrent use. Internal state is protected
// by a mutex, and the underlying slog.Logger is thread-safe.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// Log Levels
// =============================================================================

// Level represents log severity levels.
//
// Levels are ordered by severity: Trace < Debug < Info < Warn < Error.
// Setting a minimum level filters out all logs below that level. The zero
// value is LevelInfo.
type Level int

const (
	// LevelTrace is for scheduling-point chatter.
	// Example: "starting 1998 unzipping"
	LevelTrace Level = iota - 2

	// LevelDebug is for per-stage progress.
	// Example: "1998 unzipping complete"
	LevelDebug

	// LevelInfo is for run and year milestones.
	// Example: "run started", "1998 complete"
	LevelInfo

	// LevelWarn is for recoverable issues.
	// Example: "could not remove file during reclaim"
	LevelWarn

	// LevelError is for failures and terminal notices.
	// Example: "ExternalTool error on 1998 assembling"
	LevelError
)

// slogLevelTrace sits below slog.LevelDebug so that trace output can be
// filtered independently by the standard handlers.
const slogLevelTrace = slog.Level(-8)

// String returns the human-readable name of the level.
//
// Returns "TRACE", "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// toSlogLevel converts our Level to slog.Level.
func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelTrace:
		return slogLevelTrace
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Verbosity names accepted by ParseVerbosity, in increasing order of output.
const (
	VerbositySilent     = "silent"
	VerbosityNormal     = "normal"
	VerbosityVerbose    = "verbose"
	VerbosityChatterbox = "chatterbox"
)

// ParseVerbosity maps a verbosity name to the minimum Level it shows.
//
// Matching is case-insensitive. An empty name means "normal".
func ParseVerbosity(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case VerbositySilent:
		return LevelError, nil
	case "", VerbosityNormal:
		return LevelInfo, nil
	case VerbosityVerbose:
		return LevelDebug, nil
	case VerbosityChatterbox:
		return LevelTrace, nil
	default:
		return LevelInfo, fmt.Errorf("unknown verbosity %q (want silent, normal, verbose or chatterbox)", name)
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Config configures the Logger behavior.
//
// A zero-value Config creates a logger that writes Info+ messages to
// stderr in text format.
type Config struct {
	// Level sets the minimum log level.
	// Default: LevelInfo
	Level Level

	// LogDir enables file logging to the specified directory.
	//
	// The file is named "{Service}_{YYYY-MM-DD}.log" and is always JSON.
	// Supports ~ for home directory expansion.
	// Default: "" (file logging disabled)
	LogDir string

	// Service is attached to every entry as the "service" attribute.
	Service string

	// JSON selects JSON output for the console destination.
	JSON bool

	// Quiet disables console output.
	Quiet bool

	// Output replaces stderr as the console destination.
	// Default: os.Stderr
	Output io.Writer

	// Exporter, when set, receives every entry at or above Level.
	Exporter LogExporter
}

// =============================================================================
// Exporter Interface
// =============================================================================

// LogExporter receives structured log entries in addition to the
// slog handlers.
//
// Export is called inline from the logging call, so implementations
// must not block. Flush and Close are called from Logger.Close.
type LogExporter interface {
	Export(ctx context.Context, entry LogEntry) error
	Flush(ctx context.Context) error
	Close() error
}

// LogEntry represents a structured log entry for export.
type LogEntry struct {
	Timestamp time.Time
	Level     Level
	Message   string
	Service   string
	Attrs     map[string]any
}

// =============================================================================
// Logger
// =============================================================================

// Logger provides structured logging with multi-destination output.
//
// Always call Close() when done with a logger that writes to a file:
//
//	logger := logging.New(config)
//	defer logger.Close()
//
// Use With() to derive a logger carrying extra attributes:
//
//	runLogger := logger.With("run_id", runID)
type Logger struct {
	slog     *slog.Logger
	config   Config
	file     *os.File
	exporter LogExporter
	attrs    []any
	mu       *sync.Mutex
}

// New creates a new Logger with the given configuration.
//
// File logging failures are not fatal: the logger falls back to the
// console destination only.
func New(config Config) *Logger {
	var handlers []slog.Handler

	opts := &slog.HandlerOptions{
		Level:       config.Level.toSlogLevel(),
		ReplaceAttr: renameTraceLevel,
	}

	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	if !config.Quiet {
		if config.JSON {
			handlers = append(handlers, slog.NewJSONHandler(out, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(out, opts))
		}
	}

	logger := &Logger{
		config:   config,
		exporter: config.Exporter,
		mu:       &sync.Mutex{},
	}

	if config.LogDir != "" {
		logDir := ExpandPath(config.LogDir)
		if err := os.MkdirAll(logDir, 0750); err == nil {
			serviceName := config.Service
			if serviceName == "" {
				serviceName = "retrochad"
			}
			filename := fmt.Sprintf("%s_%s.log", serviceName, time.Now().Format("2006-01-02"))
			file, err := os.OpenFile(filepath.Join(logDir, filename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
			if err == nil {
				logger.file = file
				handlers = append(handlers, slog.NewJSONHandler(file, opts))
			}
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}

	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{
			slog.String("service", config.Service),
		})
	}

	logger.slog = slog.New(handler)
	return logger
}

// Default returns an Info-level stderr logger for the retrochad service.
func Default() *Logger {
	return New(Config{
		Level:   LevelInfo,
		Service: "retrochad",
	})
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *Logger {
	return New(Config{Quiet: true})
}

// Trace logs a message at Trace level.
func (l *Logger) Trace(msg string, args ...any) {
	l.log(LevelTrace, msg, args...)
}

// Debug logs a message at Debug level.
func (l *Logger) Debug(msg string, args ...any) {
	l.log(LevelDebug, msg, args...)
}

// Info logs a message at Info level.
//
// Example:
//
//	logger.Info("year complete", "year", 1998)
func (l *Logger) Info(msg string, args ...any) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs a message at Warn level.
func (l *Logger) Warn(msg string, args ...any) {
	l.log(LevelWarn, msg, args...)
}

// Error logs a message at Error level.
func (l *Logger) Error(msg string, args ...any) {
	l.log(LevelError, msg, args...)
}

// Enabled reports whether messages at level would be emitted.
func (l *Logger) Enabled(level Level) bool {
	return l.slog.Enabled(context.Background(), level.toSlogLevel())
}

// With returns a new Logger with additional attributes.
//
// The parent logger is not modified; file handle and exporter are shared.
func (l *Logger) With(args ...any) *Logger {
	attrs := make([]any, 0, len(l.attrs)+len(args))
	attrs = append(attrs, l.attrs...)
	attrs = append(attrs, args...)
	return &Logger{
		slog:     l.slog.With(args...),
		config:   l.config,
		file:     l.file,
		exporter: l.exporter,
		attrs:    attrs,
		mu:       l.mu,
	}
}

// Slog returns the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close flushes the exporter and closes the log file.
//
// Returns the first error encountered during cleanup.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error

	if l.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.exporter.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush exporter: %w", err))
		}
		if err := l.exporter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close exporter: %w", err))
		}
		l.exporter = nil
	}

	if l.file != nil {
		if err := l.file.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("sync log file: %w", err))
		}
		if err := l.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log file: %w", err))
		}
		l.file = nil
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// log writes to the slog handlers and the exporter.
func (l *Logger) log(level Level, msg string, args ...any) {
	l.slog.Log(context.Background(), level.toSlogLevel(), msg, args...)

	if l.exporter != nil && level >= l.config.Level {
		attrs := argsToMap(l.attrs)
		for k, v := range argsToMap(args) {
			attrs[k] = v
		}
		entry := LogEntry{
			Timestamp: time.Now(),
			Level:     level,
			Message:   msg,
			Service:   l.config.Service,
			Attrs:     attrs,
		}
		_ = l.exporter.Export(context.Background(), entry)
	}
}

// renameTraceLevel prints the custom trace level as "TRACE" instead of
// slog's default "DEBUG-4".
func renameTraceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= slogLevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}

// =============================================================================
// Multi-Handler (Internal)
// =============================================================================

// multiHandler fans out log records to multiple slog handlers.
type multiHandler struct {
	handlers []slog.Handler
}

// Enabled returns true if any handler is enabled for the level.
func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle sends the record to all enabled handlers.
func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

// WithAttrs returns a new handler with additional attributes.
func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

// WithGroup returns a new handler with a group name.
func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// =============================================================================
// Helper Functions
// =============================================================================

// ExpandPath expands a leading ~ to the user's home directory.
//
// Examples:
//   - "~/.retrochadsql/logs" -> "/home/user/.retrochadsql/logs"
//   - "/var/log" -> "/var/log" (unchanged)
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// argsToMap converts slog-style key-value args to a map.
func argsToMap(args []any) map[string]any {
	result := make(map[string]any)
	for i := 0; i < len(args)-1; i += 2 {
		if key, ok := args[i].(string); ok {
			result[key] = args[i+1]
		}
	}
	return result
}

// =============================================================================
// Built-in Exporters
// =============================================================================

// BufferedExporter collects log entries in memory.
//
// Useful for tests that assert on what a run reported:
//
//	exporter := logging.NewBufferedExporter()
//	logger := logging.New(logging.Config{Quiet: true, Exporter: exporter})
type BufferedExporter struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewBufferedExporter creates a new BufferedExporter.
func NewBufferedExporter() *BufferedExporter {
	return &BufferedExporter{
		entries: make([]LogEntry, 0, 64),
	}
}

// Export adds the entry to the buffer.
func (e *BufferedExporter) Export(_ context.Context, entry LogEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append(e.entries, entry)
	return nil
}

// Flush is a no-op (entries are already in memory).
func (e *BufferedExporter) Flush(context.Context) error { return nil }

// Close is a no-op.
func (e *BufferedExporter) Close() error { return nil }

// Entries returns a copy of all collected entries.
func (e *BufferedExporter) Entries() []LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make([]LogEntry, len(e.entries))
	copy(result, e.entries)
	return result
}

// Messages returns the message of every collected entry, in order.
func (e *BufferedExporter) Messages() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	msgs := make([]string, len(e.entries))
	for i, entry := range e.entries {
		msgs[i] = entry.Message
	}
	return msgs
}

var _ LogExporter = (*BufferedExporter)(nil)
