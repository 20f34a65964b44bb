// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stages

import (
	"archive/zip"
	"compress/flate"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/AleutianAI/retrochadsql/services/pipeline"
)

// ErrUnsafeEntry is returned for archive entries that would land outside
// the extraction directory.
var ErrUnsafeEntry = errors.New("archive entry escapes target directory")

// unzip extracts a year's archive into the shared unzip directory.
func (s *set) unzip(_ context.Context, year pipeline.Year) error {
	src := zipPath(s.opts.Paths[pipeline.PathDownload], year)
	if _, err := os.Stat(src); err != nil {
		return err
	}

	r, err := zip.OpenReader(src)
	if err != nil {
		return &pipeline.ArchiveError{Path: src, Err: err}
	}
	defer r.Close()

	dest := s.opts.Paths[pipeline.PathUnzip]
	extracted := 0
	for _, f := range r.File {
		if err := extractEntry(f, dest); err != nil {
			if isArchiveFault(err) {
				return &pipeline.ArchiveError{Path: src, Err: err}
			}
			return fmt.Errorf("extract %s: %w", f.Name, err)
		}
		extracted++
	}
	s.opts.Logger.Debug("unzipped", "year", int(year), "entries", extracted)
	return nil
}

// extractEntry writes one archive entry below dest.
func extractEntry(f *zip.File, dest string) error {
	name := filepath.FromSlash(f.Name)
	if !filepath.IsLocal(name) {
		return fmt.Errorf("%w: %s", ErrUnsafeEntry, f.Name)
	}
	target := filepath.Join(dest, name)

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// isArchiveFault reports whether err comes from the archive's content
// rather than from the local filesystem.
func isArchiveFault(err error) bool {
	var corrupt flate.CorruptInputError
	return errors.Is(err, zip.ErrFormat) ||
		errors.Is(err, zip.ErrChecksum) ||
		errors.Is(err, zip.ErrAlgorithm) ||
		errors.Is(err, ErrUnsafeEntry) ||
		errors.Is(err, zip.ErrInsecurePath) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.As(err, &corrupt)
}
