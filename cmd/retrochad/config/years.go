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
	"regexp"
	"strconv"
	"strings"

	"github.com/AleutianAI/retrochadsql/services/pipeline"
)

var (
	// ErrNoYears is returned for an empty year spec.
	ErrNoYears = errors.New("no years given")

	// ErrBadYears is returned for a malformed year spec.
	ErrBadYears = errors.New("bad years input")
)

// yearToken is "nnnn" or "nnnn-mmmm".
var yearToken = regexp.MustCompile(`^(\d{4})(?:-(\d{4}))?$`)

// ParseYears expands a year spec such as "1931 1938-1940 1939".
//
// Tokens are separated by whitespace. A range is inclusive and must not
// run backwards. Years keep the order they first appear in; repeats are
// dropped. "1931 1938-1940 1939" gives 1931 1938 1939 1940.
func ParseYears(spec string) ([]pipeline.Year, error) {
	tokens := strings.Fields(spec)
	if len(tokens) == 0 {
		return nil, ErrNoYears
	}

	seen := make(map[pipeline.Year]bool)
	var years []pipeline.Year
	add := func(y pipeline.Year) {
		if !seen[y] {
			seen[y] = true
			years = append(years, y)
		}
	}

	for _, tok := range tokens {
		m := yearToken.FindStringSubmatch(tok)
		if m == nil {
			return nil, fmt.Errorf("%w: %q", ErrBadYears, tok)
		}
		first, _ := strconv.Atoi(m[1])
		last := first
		if m[2] != "" {
			last, _ = strconv.Atoi(m[2])
		}
		if last < first {
			return nil, fmt.Errorf("%w: range %q runs backwards", ErrBadYears, tok)
		}
		for y := first; y <= last; y++ {
			add(pipeline.Year(y))
		}
	}
	return years, nil
}
