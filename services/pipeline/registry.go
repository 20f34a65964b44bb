// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"fmt"
	"strconv"
)

// Year is a Retrosheet season, e.g. 1998.
type Year int

// String returns the four-digit year.
func (y Year) String() string {
	return strconv.Itoa(int(y))
}

// PathKey names a working location. Stage names double as path keys for
// the directories their outputs land in; Chadwick is the extra key for the
// converter installation.
type PathKey string

// Standard path keys.
const (
	PathDownload PathKey = "Download"
	PathUnzip    PathKey = "Unzip"
	PathAssemble PathKey = "Assemble"
	PathDefine   PathKey = "Define"
	PathChadwick PathKey = "Chadwick"
)

// Action performs one stage for one year. A nil return is success; any
// error is a stage failure and ends the run. ctx carries the run's values
// and span but is never cancelled while the action runs.
type Action func(ctx context.Context, year Year) error

// StageDescriptor describes one pipeline stage.
//
// Description:
//
//	Descriptors are immutable values. The registry keeps them in an ordered
//	slice, and that order is the execution order within each year.
//
// Example:
//
//	pipeline.StageDescriptor{
//	    Name:          "Unzip",
//	    Gerund:        "unzipping",
//	    Action:        unzip,
//	    RequiredPaths: []pipeline.PathKey{pipeline.PathDownload, pipeline.PathUnzip},
//	}
type StageDescriptor struct {
	// Name is the unique stage key, used for first/last selection.
	Name string

	// Gerund is the display label, e.g. "downloading".
	Gerund string

	// Action does the stage's work for one year.
	Action Action

	// Prepare is an optional preflight check, run once after paths are
	// provisioned and before the first action.
	Prepare func(ctx context.Context) error

	// RequiredPaths lists every location the stage touches. It may name
	// locations owned by other stages.
	RequiredPaths []PathKey
}

// Registry is the ordered list of stages.
//
// Thread Safety:
//
//	Registry is immutable after construction and safe for concurrent use.
type Registry struct {
	stages []StageDescriptor
	index  map[string]int
}

// NewRegistry builds a registry from descriptors in execution order.
//
// Outputs:
//
//	*Registry - The registry.
//	error - ErrEmptyRegistry, ErrInvalidStage or ErrDuplicateStage.
func NewRegistry(descs ...StageDescriptor) (*Registry, error) {
	if len(descs) == 0 {
		return nil, ErrEmptyRegistry
	}
	r := &Registry{
		stages: make([]StageDescriptor, 0, len(descs)),
		index:  make(map[string]int, len(descs)),
	}
	for i, d := range descs {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: stage %d has no name", ErrInvalidStage, i)
		}
		if d.Action == nil {
			return nil, fmt.Errorf("%w: stage %s has no action", ErrInvalidStage, d.Name)
		}
		if _, dup := r.index[d.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStage, d.Name)
		}
		if d.Gerund == "" {
			d.Gerund = d.Name
		}
		d.RequiredPaths = append([]PathKey(nil), d.RequiredPaths...)
		r.index[d.Name] = len(r.stages)
		r.stages = append(r.stages, d)
	}
	return r, nil
}

// SelectRange returns the stages from first through last inclusive, in
// registry order.
//
// Outputs:
//
//	[]StageDescriptor - A fresh slice; callers may keep it.
//	error - ErrInvalidSelection if either name is unknown or first comes
//	        after last.
func (r *Registry) SelectRange(first, last string) ([]StageDescriptor, error) {
	lo, ok := r.index[first]
	if !ok {
		return nil, fmt.Errorf("%w: unknown first stage %q", ErrInvalidSelection, first)
	}
	hi, ok := r.index[last]
	if !ok {
		return nil, fmt.Errorf("%w: unknown last stage %q", ErrInvalidSelection, last)
	}
	if lo > hi {
		return nil, fmt.Errorf("%w: %s comes after %s", ErrInvalidSelection, first, last)
	}
	out := make([]StageDescriptor, hi-lo+1)
	copy(out, r.stages[lo:hi+1])
	return out, nil
}

// Stage returns the descriptor with the given name.
func (r *Registry) Stage(name string) (StageDescriptor, bool) {
	i, ok := r.index[name]
	if !ok {
		return StageDescriptor{}, false
	}
	return r.stages[i], true
}

// Names returns every stage name in execution order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.stages))
	for i, s := range r.stages {
		names[i] = s.Name
	}
	return names
}

// Stages returns a copy of every descriptor in execution order.
func (r *Registry) Stages() []StageDescriptor {
	out := make([]StageDescriptor, len(r.stages))
	copy(out, r.stages)
	return out
}

// Len returns the number of stages.
func (r *Registry) Len() int {
	return len(r.stages)
}

// RequiredPaths returns the union of the selection's required paths in
// first-seen order. Keys owned by unselected stages are included when a
// selected stage needs them.
func RequiredPaths(selection []StageDescriptor) []PathKey {
	seen := make(map[PathKey]struct{})
	var keys []PathKey
	for _, s := range selection {
		for _, k := range s.RequiredPaths {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}
