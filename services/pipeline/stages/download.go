// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stages

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/retrochadsql/services/pipeline"
)

// zipPath is where the download stage stores a year's archive.
func zipPath(dir string, year pipeline.Year) string {
	return filepath.Join(dir, year.String()+".zip")
}

// yearURL expands the {year} placeholder.
func yearURL(template string, year pipeline.Year) string {
	return strings.ReplaceAll(template, "{year}", year.String())
}

// download fetches a year's event archive into the download directory.
func (s *set) download(ctx context.Context, year pipeline.Year) error {
	target := yearURL(s.opts.URLTemplate, year)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return &pipeline.FetchError{URL: target, Reason: err.Error(), Err: err}
	}

	resp, err := s.opts.HTTPClient.Do(req)
	if err != nil {
		reason := err.Error()
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Err != nil {
			reason = urlErr.Err.Error()
		}
		return &pipeline.FetchError{URL: target, Reason: reason, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &pipeline.FetchError{URL: target, StatusCode: resp.StatusCode}
	}

	dest := zipPath(s.opts.Paths[pipeline.PathDownload], year)
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return fmt.Errorf("create download file: %w", err)
	}
	n, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil {
		_ = os.Remove(tmp.Name())
		return &pipeline.FetchError{URL: target, Reason: copyErr.Error(), Err: copyErr}
	}
	if closeErr != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", dest, closeErr)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("store %s: %w", dest, err)
	}

	s.opts.Logger.Debug("downloaded", "year", int(year), "url", target, "bytes", n)
	return nil
}
