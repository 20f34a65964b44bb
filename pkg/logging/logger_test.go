// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelTrace, "TRACE"},
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
		{Level(-9), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := tt.level.String()
			if got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  slog.Level
	}{
		{LevelTrace, slog.Level(-8)},
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{Level(99), slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			got := tt.level.toSlogLevel()
			if got != tt.want {
				t.Errorf("Level.toSlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_Ordering(t *testing.T) {
	if !(LevelTrace < LevelDebug && LevelDebug < LevelInfo && LevelInfo < LevelWarn && LevelWarn < LevelError) {
		t.Error("levels are not ordered Trace < Debug < Info < Warn < Error")
	}
	var zero Level
	if zero != LevelInfo {
		t.Errorf("zero Level = %v, want INFO", zero)
	}
}

func TestParseVerbosity(t *testing.T) {
	tests := []struct {
		name    string
		want    Level
		wantErr bool
	}{
		{"silent", LevelError, false},
		{"normal", LevelInfo, false},
		{"", LevelInfo, false},
		{"verbose", LevelDebug, false},
		{"Chatterbox", LevelTrace, false},
		{" VERBOSE ", LevelDebug, false},
		{"loud", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVerbosity(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseVerbosity(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseVerbosity(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Logger Constructor Tests
// =============================================================================

func TestNew_DefaultConfig(t *testing.T) {
	logger := New(Config{Quiet: true})
	if logger == nil || logger.slog == nil {
		t.Fatal("New() returned an unusable logger")
	}
	defer logger.Close()
}

func TestNew_WithLogDir(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir:  tmpDir,
		Service: "test",
		Quiet:   true,
	})
	defer logger.Close()

	if logger.file == nil {
		t.Fatal("logger.file is nil when LogDir specified")
	}

	logger.Info("written to file")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	files, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("Failed to read dir: %v", err)
	}
	if len(files) != 1 || !strings.HasPrefix(files[0].Name(), "test_") {
		t.Fatalf("expected one test_*.log file, got %v", files)
	}
	data, err := os.ReadFile(filepath.Join(tmpDir, files[0].Name()))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"written to file"`) {
		t.Errorf("log file missing JSON entry: %s", data)
	}
}

func TestNew_WithLogDir_NoService(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{LogDir: tmpDir, Quiet: true})
	defer logger.Close()

	files, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("Failed to read dir: %v", err)
	}
	if len(files) != 1 || !strings.HasPrefix(files[0].Name(), "retrochad_") {
		t.Errorf("expected a retrochad_*.log file, got %v", files)
	}
}

func TestNew_WithLogDir_Unwritable(t *testing.T) {
	tmpDir := t.TempDir()
	blocker := filepath.Join(tmpDir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	logger := New(Config{LogDir: filepath.Join(blocker, "logs"), Quiet: true})
	defer logger.Close()

	if logger.file != nil {
		t.Error("logger.file should be nil when the log dir cannot be created")
	}
}

func TestDefault(t *testing.T) {
	logger := Default()
	defer logger.Close()
	if logger.config.Level != LevelInfo {
		t.Errorf("Default level = %v, want LevelInfo", logger.config.Level)
	}
	if logger.config.Service != "retrochad" {
		t.Errorf("Default service = %v, want retrochad", logger.config.Service)
	}
}

// =============================================================================
// Logger Method Tests
// =============================================================================

func TestLogger_Methods(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Level: LevelTrace, Exporter: exporter, Quiet: true})
	defer logger.Close()

	logger.Trace("t")
	logger.Debug("d")
	logger.Info("i", "count", 42)
	logger.Warn("w")
	logger.Error("e")

	entries := exporter.Entries()
	if len(entries) != 5 {
		t.Fatalf("Expected 5 entries, got %d", len(entries))
	}
	wantLevels := []Level{LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError}
	for i, want := range wantLevels {
		if entries[i].Level != want {
			t.Errorf("entry %d level = %v, want %v", i, entries[i].Level, want)
		}
	}
	if entries[2].Attrs["count"] != 42 {
		t.Errorf("Attrs[count] = %v, want 42", entries[2].Attrs["count"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Level: LevelWarn, Exporter: exporter, Quiet: true})
	defer logger.Close()

	logger.Trace("trace")
	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	got := exporter.Messages()
	if strings.Join(got, ",") != "warn,error" {
		t.Errorf("exported messages = %v, want [warn error]", got)
	}
	if logger.Enabled(LevelInfo) {
		t.Error("Enabled(Info) should be false at Warn")
	}
	if !logger.Enabled(LevelError) {
		t.Error("Enabled(Error) should be true at Warn")
	}
}

func TestLogger_With(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Exporter: exporter, Quiet: true})
	defer logger.Close()

	child := logger.With("run_id", "abc123")
	child.Info("run started", "years", 3)

	entries := exporter.Entries()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].Attrs["run_id"] != "abc123" {
		t.Errorf("Attrs[run_id] = %v, want abc123", entries[0].Attrs["run_id"])
	}
	if entries[0].Attrs["years"] != 3 {
		t.Errorf("Attrs[years] = %v, want 3", entries[0].Attrs["years"])
	}
	if len(logger.attrs) != 0 {
		t.Error("With() modified the parent logger")
	}
}

func TestLogger_TextOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelTrace, Output: &buf, Service: "retrochad"})
	defer logger.Close()

	logger.Trace("starting 1998 unzipping")

	out := buf.String()
	if !strings.Contains(out, "level=TRACE") {
		t.Errorf("trace level not renamed: %s", out)
	}
	if !strings.Contains(out, "service=retrochad") {
		t.Errorf("service attribute missing: %s", out)
	}
}

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{JSON: true, Output: &buf})
	defer logger.Close()

	logger.Info("year complete", "year", 1998)

	if !strings.Contains(buf.String(), `"year":1998`) {
		t.Errorf("JSON output missing attribute: %s", buf.String())
	}
}

func TestLogger_Slog(t *testing.T) {
	logger := Discard()
	if logger.Slog() == nil {
		t.Error("Slog() returned nil")
	}
}

// =============================================================================
// Multi-Handler Tests
// =============================================================================

func TestMultiHandler_FansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	}}
	l := slog.New(h.WithAttrs([]slog.Attr{slog.String("k", "v")}))

	l.Info("info only")
	l.Error("both")

	if !strings.Contains(a.String(), "info only") || !strings.Contains(a.String(), "both") {
		t.Errorf("first handler output = %q", a.String())
	}
	if strings.Contains(b.String(), "info only") || !strings.Contains(b.String(), "k=v") {
		t.Errorf("second handler output = %q", b.String())
	}
	if !h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("Enabled(Info) should be true when any handler accepts it")
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		in   string
		want string
	}{
		{"~", home},
		{"~/RetroChadSql", filepath.Join(home, "RetroChadSql")},
		{"/var/log", "/var/log"},
		{"relative/dir", "relative/dir"},
		{"~user/x", "~user/x"},
	}
	for _, tt := range tests {
		if got := ExpandPath(tt.in); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestArgsToMap(t *testing.T) {
	got := argsToMap([]any{"a", 1, "b", "two", 3, "skipped", "dangling"})
	if len(got) != 2 || got["a"] != 1 || got["b"] != "two" {
		t.Errorf("argsToMap() = %v", got)
	}
}
