// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/retrochadsql/pkg/logging"
	"github.com/AleutianAI/retrochadsql/services/pipeline"
)

func TestResolve(t *testing.T) {
	t.Setenv(PasswordEnv, "")
	home := t.TempDir()
	custom := t.TempDir()

	cfg := DefaultConfig()
	cfg.Years = "1998 1996-1997"
	cfg.Home = home
	cfg.Paths["Chadwick"] = PathConfig{Path: custom, Keep: true}
	cfg.Database.User = "chad"
	cfg.Database.Password = "s3cret"
	cfg.Database.ConnectArgs = "  --protocol=tcp   --compress "
	cfg.Log.Verbosity = "chatterbox"
	cfg.Download.Timeout = 30 * time.Second

	r, err := Resolve(cfg)
	require.NoError(t, err)

	assert.Equal(t, []pipeline.Year{1998, 1996, 1997}, r.Run.Years)
	assert.Equal(t, "Download", r.Run.First)
	assert.Equal(t, "Load", r.Run.Last)

	assert.Equal(t, pipeline.PathSpec{Location: filepath.Join(home, "zipped")}, r.Run.Paths[pipeline.PathDownload])
	assert.Equal(t, pipeline.PathSpec{Location: filepath.Join(home, "SQL")}, r.Run.Paths[pipeline.PathDefine])
	assert.Equal(t, pipeline.PathSpec{Location: custom, Keep: true}, r.Run.Paths[pipeline.PathChadwick])
	assert.Equal(t, filepath.Join(home, "CSV"), r.Stages.Paths[pipeline.PathAssemble])

	assert.Equal(t, []string{"events", "subs", "games"}, r.Stages.Tables)
	assert.Equal(t, 30*time.Second, r.Stages.HTTPTimeout)
	assert.Equal(t, []string{"--protocol=tcp", "--compress"}, r.Stages.Database.ConnectArgs)
	assert.Equal(t, "chad", r.Stages.Database.User)
	require.NotNil(t, r.Stages.Database.Password)
	buf, err := r.Stages.Database.Password.Open()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", buf.String())
	buf.Destroy()

	assert.Equal(t, logging.LevelTrace, r.Level)
	assert.Equal(t, "none", r.Telemetry.TraceExporter)
	assert.Equal(t, 10*time.Millisecond, r.Interval)
	assert.Nil(t, r.Stages.Logger)
}

func TestResolve_PasswordFromEnv(t *testing.T) {
	t.Setenv(PasswordEnv, "from-env")
	cfg := DefaultConfig()
	cfg.Home = t.TempDir()
	cfg.Database.Password = "from-file"

	r, err := Resolve(cfg)
	require.NoError(t, err)
	buf, err := r.Stages.Database.Password.Open()
	require.NoError(t, err)
	defer buf.Destroy()
	assert.Equal(t, "from-env", buf.String())
}

func TestResolve_NoPassword(t *testing.T) {
	t.Setenv(PasswordEnv, "")
	cfg := DefaultConfig()
	cfg.Home = t.TempDir()

	r, err := Resolve(cfg)
	require.NoError(t, err)
	assert.Nil(t, r.Stages.Database.Password)
}

func TestResolve_Invalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Years = ""
	_, err := Resolve(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestResolve_RelativeLocationsBecomeAbsolute(t *testing.T) {
	t.Setenv(PasswordEnv, "")
	dir := t.TempDir()
	t.Chdir(dir)

	cfg := DefaultConfig()
	cfg.Home = "work"

	r, err := Resolve(cfg)
	require.NoError(t, err)
	loc := r.Run.Paths[pipeline.PathUnzip].Location
	assert.True(t, filepath.IsAbs(loc))
	assert.Equal(t, "unzipped", filepath.Base(loc))
	assert.Equal(t, "work", filepath.Base(filepath.Dir(loc)))
}
