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
	"sync"
)

// recorder collects "<year> <stage>" for every action invoked.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(year Year, stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf("%d %s", year, stage))
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// failures maps stage name -> year -> error returned by that action.
type failures map[string]map[Year]error

// fiveStages returns the standard five stages with recording actions.
func fiveStages(rec *recorder, fail failures) []StageDescriptor {
	mk := func(name string) Action {
		return func(_ context.Context, year Year) error {
			rec.record(year, name)
			if byYear, ok := fail[name]; ok {
				return byYear[year]
			}
			return nil
		}
	}
	return []StageDescriptor{
		{Name: "Download", Gerund: "downloading", Action: mk("Download"),
			RequiredPaths: []PathKey{PathDownload}},
		{Name: "Unzip", Gerund: "unzipping", Action: mk("Unzip"),
			RequiredPaths: []PathKey{PathDownload, PathUnzip}},
		{Name: "Assemble", Gerund: "assembling", Action: mk("Assemble"),
			RequiredPaths: []PathKey{PathUnzip, PathAssemble, PathChadwick}},
		{Name: "Define", Gerund: "defining", Action: mk("Define"),
			RequiredPaths: []PathKey{PathUnzip, PathAssemble, PathDefine, PathChadwick}},
		{Name: "Load", Gerund: "loading", Action: mk("Load"),
			RequiredPaths: []PathKey{PathAssemble, PathDefine}},
	}
}

// fakeReclaimer counts Reclaim calls.
type fakeReclaimer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeReclaimer) Reclaim(*PathLedger, map[PathKey]PathSpec) ReclaimReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return ReclaimReport{DirsRemoved: []string{"/fake"}}
}

func (f *fakeReclaimer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// emptyLedger is a ledger with no entries, for scheduler tests that do not
// touch the filesystem.
func emptyLedger() *PathLedger {
	return &PathLedger{
		byKey:     map[PathKey]int{},
		protected: map[string]struct{}{},
	}
}

// drain advances s until it stops making progress and returns every step.
func drain(ctx context.Context, s *Scheduler) []Step {
	var steps []Step
	for i := 0; i < 1000; i++ {
		step := s.Advance(ctx)
		steps = append(steps, step)
		if step == StepFinished || step == StepInterrupted || step == StepIdle {
			return steps
		}
	}
	return steps
}
