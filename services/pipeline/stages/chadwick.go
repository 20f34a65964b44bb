// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stages

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/retrochadsql/services/pipeline"
)

// ErrNoEventFiles is returned when the unzip directory holds no event
// files for a year.
var ErrNoEventFiles = errors.New("no event files")

// ErrNoFields is returned when a Chadwick tool describes no fields.
var ErrNoFields = errors.New("chadwick described no fields")

// descriptionLine matches one line of `cw<tool> -d` output: an index and
// a label, with a trailing '*' marking fields not output by default.
var descriptionLine = regexp.MustCompile(`^(\d+)\s+(.+[^*])\*?$`)

// table is one Chadwick output table and what Chadwick told us about it.
type table struct {
	// name is the SQL table name: events, subs or games.
	name string

	// tool is the Chadwick tool suffix: event, sub or game.
	tool string

	// standardMax and extendedMax are the highest field indexes. An
	// extendedMax of -1 means the tool has no extended fields.
	standardMax int
	extendedMax int

	// comments are the field labels in output order.
	comments []string

	// fields are the CSV header names, filled in by Define.
	fields []string
}

// catalog runs Chadwick on behalf of the assemble and define stages.
//
// Thread Safety:
//
//	describe is guarded and runs the tools concurrently, one goroutine
//	per table; the rest is only called from the scheduler goroutine.
type catalog struct {
	opts   Options
	tables []*table

	mu        sync.Mutex
	described bool
}

func newCatalog(opts Options) *catalog {
	c := &catalog{opts: opts}
	for _, name := range orderedTables(opts.Tables) {
		c.tables = append(c.tables, &table{
			name:        name,
			tool:        strings.TrimSuffix(name, "s"),
			extendedMax: -1,
		})
	}
	return c
}

// orderedTables returns the selected tables in schema order.
func orderedTables(selected []string) []string {
	want := make(map[string]bool, len(selected))
	for _, t := range selected {
		want[t] = true
	}
	var out []string
	for _, t := range KnownTables {
		if want[t] {
			out = append(out, t)
		}
	}
	return out
}

// program returns the executable for a tool: inside the Chadwick
// directory when the binary is there, otherwise the bare name for a PATH
// lookup.
func (c *catalog) program(t *table) string {
	name := "cw" + t.tool
	dir := c.opts.Paths[pipeline.PathChadwick]
	if dir == "" {
		return name
	}
	for _, candidate := range []string{name, name + ".exe"} {
		full := filepath.Join(dir, candidate)
		if info, err := os.Stat(full); err == nil && !info.IsDir() {
			return full
		}
	}
	return name
}

// describe asks every tool for its field description, once per run. It
// doubles as the Chadwick preflight check.
func (c *catalog) describe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.described {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range c.tables {
		g.Go(func() error {
			out, err := c.opts.Runner.Run(gctx, CommandSpec{
				Name: c.program(t),
				Args: []string{"-d"},
				Dir:  c.opts.Paths[pipeline.PathUnzip],
			})
			if err != nil {
				return fmt.Errorf("describe %s: %w", t.name, err)
			}
			if err := t.parseDescription(out); err != nil {
				return fmt.Errorf("describe %s: %w", t.name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, t := range c.tables {
		c.opts.Logger.Debug("chadwick fields described",
			"table", t.name,
			"standard_max", t.standardMax,
			"extended_max", t.extendedMax,
		)
	}
	c.described = true
	return nil
}

// parseDescription reads `-d` output. Indexes restart at 0 for the
// extended block.
func (t *table) parseDescription(out []byte) error {
	t.comments = nil
	t.standardMax, t.extendedMax = -1, -1
	extended := false

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		m := descriptionLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if idx == 0 && len(t.comments) > 0 {
			extended = true
		}
		if extended {
			t.extendedMax = idx
		} else {
			t.standardMax = idx
		}
		t.comments = append(t.comments, strings.TrimRight(m[2], " \t"))
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if len(t.comments) == 0 {
		return ErrNoFields
	}
	return nil
}

// fieldArgs are the field selection switches for a year.
func (t *table) fieldArgs(year pipeline.Year) []string {
	args := []string{"-q", "-n", "-f", fmt.Sprintf("0-%d", t.standardMax)}
	if t.extendedMax >= 0 {
		args = append(args, "-x", fmt.Sprintf("0-%d", t.extendedMax))
	}
	return append(args, "-y", year.String())
}

// eventFiles returns the year's event files in the unzip directory,
// relative to it.
func (c *catalog) eventFiles(year pipeline.Year) ([]string, error) {
	dir := c.opts.Paths[pipeline.PathUnzip]
	matches, err := filepath.Glob(filepath.Join(dir, year.String()+"*.EV*"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w for %d in %s", ErrNoEventFiles, year, dir)
	}
	files := make([]string, len(matches))
	for i, m := range matches {
		files[i] = filepath.Base(m)
	}
	return files, nil
}

// assemble writes "<Assemble>/<year> <tool>.csv" for one table.
func (c *catalog) assemble(ctx context.Context, t *table, year pipeline.Year, files []string) error {
	csvPath := filepath.Join(c.opts.Paths[pipeline.PathAssemble], csvName(year, t))
	out, err := os.Create(csvPath)
	if err != nil {
		return err
	}

	args := append(t.fieldArgs(year), files...)
	_, runErr := c.opts.Runner.Run(ctx, CommandSpec{
		Name:   c.program(t),
		Args:   args,
		Dir:    c.opts.Paths[pipeline.PathUnzip],
		Stdout: out,
	})
	closeErr := out.Close()
	if runErr != nil {
		return runErr
	}
	return closeErr
}

// loadFieldNames reads the CSV header Chadwick would write for a year by
// selecting a game id that matches nothing.
func (c *catalog) loadFieldNames(ctx context.Context, t *table, year pipeline.Year, files []string) error {
	args := append(t.fieldArgs(year), "-i", "0")
	args = append(args, files...)
	out, err := c.opts.Runner.Run(ctx, CommandSpec{
		Name: c.program(t),
		Args: args,
		Dir:  c.opts.Paths[pipeline.PathUnzip],
	})
	if err != nil {
		return err
	}
	header, _, _ := strings.Cut(string(out), "\n")
	header = strings.TrimSpace(header)
	if header == "" {
		return fmt.Errorf("%s: empty header row", t.name)
	}
	parts := strings.Split(header, ",")
	t.fields = make([]string, len(parts))
	for i, p := range parts {
		t.fields[i] = strings.Trim(strings.TrimSpace(p), `"`)
	}
	if len(t.fields) != len(t.comments) {
		c.opts.Logger.Warn("header and description disagree",
			"table", t.name,
			"fields", len(t.fields),
			"descriptions", len(t.comments),
		)
	}
	return nil
}

// csvName is the assembled file name for a table and year.
func csvName(year pipeline.Year, t *table) string {
	return fmt.Sprintf("%d %s.csv", year, t.tool)
}
