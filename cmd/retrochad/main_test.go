// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/retrochadsql/pkg/ux"
)

// cliResult is the captured outcome of one CLI invocation.
type cliResult struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, args ...string) cliResult {
	t.Helper()
	t.Setenv(ux.ModeEnv, "plain")
	var stdout, stderr bytes.Buffer
	code := execute(args, &stdout, &stderr)
	return cliResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

// writeConfig writes a config that keeps every location under root.
func writeConfig(t *testing.T, root, urlTemplate, extra string) string {
	t.Helper()
	path := filepath.Join(root, "retrochad.yaml")
	content := fmt.Sprintf(`years: "1998"
first: Download
last: Unzip
home: %s
paths:
  Unzip: {dir: unzipped, keep: true}
history:
  dir: %s
schedule:
  interval: 1ms
download:
  url_template: %s
  timeout: 5s
log:
  verbosity: silent
%s`, filepath.Join(root, "data"), filepath.Join(root, "history"), urlTemplate, extra)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func zipArchive(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExitError(t *testing.T) {
	inner := errors.New("boom")
	err := error(&ExitError{Code: ExitBadArgs, Err: inner})

	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "boom (exit 2)", err.Error())
	assert.Equal(t, "exit 1", (&ExitError{Code: ExitFailure}).Error())
}

func TestRoot_Help(t *testing.T) {
	res := runCLI(t, "--help")

	assert.Equal(t, ExitSuccess, res.code)
	for _, want := range []string{"Usage", "run", "init", "stages", "years", "history"} {
		assert.Contains(t, res.stdout, want)
	}
}

func TestRoot_UnknownFlag(t *testing.T) {
	res := runCLI(t, "years", "--bogus", "1998")

	assert.Equal(t, ExitBadArgs, res.code)
	assert.Contains(t, res.stderr, "bogus")
}

func TestRoot_UnknownCommand(t *testing.T) {
	res := runCLI(t, "pitch")

	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, "unknown command")
}

func TestYears(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"range", []string{"1998-2000"}, "1998 1999 2000\n"},
		{"first appearance order", []string{"2004 1998-1999 2004"}, "2004 1998 1999\n"},
		{"several arguments", []string{"1931", "1927"}, "1931 1927\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCLI(t, append([]string{"years"}, tt.args...)...)
			require.Equal(t, ExitSuccess, res.code, res.stderr)
			assert.Equal(t, tt.want, res.stdout)
		})
	}

	t.Run("all", func(t *testing.T) {
		res := runCLI(t, "years", "all")
		require.Equal(t, ExitSuccess, res.code)
		assert.True(t, strings.HasPrefix(res.stdout, "1921 1922 1927 1931 1938 "))
		assert.True(t, strings.HasSuffix(res.stdout, " 2012\n"))
	})

	t.Run("backwards range", func(t *testing.T) {
		res := runCLI(t, "years", "2000-1998")
		assert.Equal(t, ExitBadArgs, res.code)
		assert.Contains(t, res.stderr, "Error:")
	})

	t.Run("missing argument", func(t *testing.T) {
		res := runCLI(t, "years")
		assert.Equal(t, ExitFailure, res.code)
	})
}

func TestStages(t *testing.T) {
	res := runCLI(t, "stages")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	lines := strings.Split(strings.TrimSuffix(res.stdout, "\n"), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "Stage\tAction\tPaths", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "Download\tdownloading\t"))
	assert.True(t, strings.HasPrefix(lines[2], "Unzip\tunzipping\t"))
	assert.True(t, strings.HasPrefix(lines[3], "Assemble\t"))
	assert.Contains(t, lines[3], "Chadwick")
	assert.True(t, strings.HasPrefix(lines[4], "Define\t"))
	assert.True(t, strings.HasPrefix(lines[5], "Load\t"))
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "retrochad.yaml")

	res := runCLI(t, "init", "--config", path)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "OK: Config written to "+path+"\n", res.stdout)
	assert.FileExists(t, path)

	res = runCLI(t, "init", "--config", path)
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, "--force")

	res = runCLI(t, "init", "--config", path, "--force")
	assert.Equal(t, ExitSuccess, res.code)
}

func TestRun_DownloadAndUnzip(t *testing.T) {
	archive := zipArchive(t, map[string]string{"1998BAL.EVA": "id,BAL199804060", "TEAM1998": "BAL,A,Baltimore,Orioles"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/1998eve.zip" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	root := t.TempDir()
	metrics := filepath.Join(root, "retrochad.prom")
	path := writeConfig(t, root, srv.URL+"/{year}eve.zip", "telemetry:\n  metrics_file: "+metrics+"\n")

	res := runCLI(t, "run", "--config", path)

	require.Equal(t, ExitSuccess, res.code, res.stdout+res.stderr)
	assert.Contains(t, res.stdout, "Process complete")
	assert.FileExists(t, filepath.Join(root, "data", "unzipped", "1998BAL.EVA"))
	assert.FileExists(t, filepath.Join(root, "data", "unzipped", "TEAM1998"))
	assert.NoDirExists(t, filepath.Join(root, "data", "zipped"))

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), "retrochad_stage_success_total")

	hist := runCLI(t, "history", "--config", path)
	require.Equal(t, ExitSuccess, hist.code, hist.stderr)
	assert.Contains(t, hist.stdout, "Download-Unzip")
	assert.Contains(t, hist.stdout, "finished")
}

func TestRun_FetchFailureAborts(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	root := t.TempDir()
	path := writeConfig(t, root, srv.URL+"/{year}eve.zip", "")

	res := runCLI(t, "run", "--config", path, "--last", "Download")

	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stdout, "Process ended, all files kept")
	assert.Contains(t, res.stdout, "1998 downloading")
	assert.DirExists(t, filepath.Join(root, "data", "zipped"))

	hist := runCLI(t, "history", "--config", path, "--limit", "1")
	require.Equal(t, ExitSuccess, hist.code, hist.stderr)
	assert.Contains(t, hist.stdout, "aborted")
	assert.Contains(t, hist.stdout, "on 1998 downloading")
}

func TestRun_InvalidConfig(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, root, "http://localhost/{year}eve.zip", "")

	res := runCLI(t, "run", "--config", path, "--first", "Load", "--last", "Download")

	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stdout, "Invalid configuration")
}

func TestHistory_Empty(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, root, "http://localhost/{year}eve.zip", "")

	res := runCLI(t, "history", "--config", path)

	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "No runs recorded.\n", res.stdout)
}

func TestHistory_Disabled(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "retrochad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("history: {disabled: true}\n"), 0o600))

	res := runCLI(t, "history", "--config", path)

	require.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stdout, "WARN: Run history is disabled")
}

func TestYearSummary(t *testing.T) {
	assert.Equal(t, "-", yearSummary(nil))
	assert.Equal(t, "1998", yearSummary([]int{1998}))
	assert.Equal(t, "2004..1999 (3)", yearSummary([]int{2004, 1998, 1999}))
}
