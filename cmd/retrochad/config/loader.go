// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrConfigExists is returned by Init when the file is already there.
var ErrConfigExists = errors.New("config file already exists")

// fileHeader is written above the generated YAML.
const fileHeader = "# retrochad configuration\n" +
	"# Stages: Download Unzip Assemble Define Load\n" +
	"# Verbosity: silent normal verbose chatterbox\n\n"

// DefaultPath returns ~/.retrochadsql/retrochad.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".retrochadsql", "retrochad.yaml"), nil
}

// Overrides are command-line values that win over the file.
type Overrides struct {
	Years     string
	First     string
	Last      string
	Verbosity string
}

// Apply copies every non-empty override into c.
func (c *RetroChadConfig) Apply(o Overrides) {
	if o.Years != "" {
		c.Years = o.Years
	}
	if o.First != "" {
		c.First = o.First
	}
	if o.Last != "" {
		c.Last = o.Last
	}
	if o.Verbosity != "" {
		c.Log.Verbosity = o.Verbosity
	}
}

// Load reads the configuration at path, creating the default file first
// when none exists. Values missing from the file keep their defaults.
//
// A first-run notice is written to notice, which may be nil.
func Load(path string, notice io.Writer) (RetroChadConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if notice != nil {
			fmt.Fprintf(notice, "First run detected, creating the config at %s\n", path)
		}
		if err := createDefault(path); err != nil {
			return RetroChadConfig{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return RetroChadConfig{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return RetroChadConfig{}, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	return cfg, nil
}

// Init writes the default configuration to path. An existing file is
// only replaced when force is set.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}
	return createDefault(path)
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	// The file may later hold a database password.
	return os.WriteFile(path, append([]byte(fileHeader), data...), 0o600)
}
