// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/retrochadsql/services/pipeline"
)

// ErrNoRunID is returned by Put for a record without a run id.
var ErrNoRunID = errors.New("history: record has no run id")

// keyPrefix namespaces run records.
const keyPrefix = "run/"

// Failure is the stored form of a stage failure.
type Failure struct {
	Category string `json:"category"`
	Year     int    `json:"year"`
	Stage    string `json:"stage,omitempty"`
	Gerund   string `json:"gerund"`
	Detail   string `json:"detail"`
}

// Record is one run as seen by the journal.
type Record struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
	Years     []int     `json:"years"`
	Stages    []string  `json:"stages"`
	First     string    `json:"first"`
	Last      string    `json:"last"`
	Status    string    `json:"status"`
	Failure   *Failure  `json:"failure,omitempty"`

	// Reclaimed is the number of directories removed by cleanup.
	Reclaimed int `json:"reclaimed"`
}

// Started returns the record written when a run begins. stages is the
// selected range in order.
func Started(runID string, at time.Time, years []pipeline.Year, stages []pipeline.StageDescriptor) Record {
	ys := make([]int, len(years))
	for i, y := range years {
		ys[i] = int(y)
	}
	names := make([]string, len(stages))
	for i, st := range stages {
		names[i] = st.Name
	}
	r := Record{
		RunID:     runID,
		StartedAt: at,
		Years:     ys,
		Stages:    names,
		Status:    string(pipeline.StatusRunning),
	}
	if len(names) > 0 {
		r.First = names[0]
		r.Last = names[len(names)-1]
	}
	return r
}

// Finish copies a terminal outcome into the record.
func (r *Record) Finish(o pipeline.Outcome) {
	r.Status = string(o.Status)
	r.EndedAt = o.EndedAt
	if r.EndedAt.IsZero() {
		r.EndedAt = time.Now()
	}
	if f := o.Failure; f != nil {
		r.Failure = &Failure{
			Category: string(f.Category),
			Year:     int(f.Year),
			Stage:    f.Stage,
			Gerund:   f.Gerund,
			Detail:   f.Detail,
		}
	}
	if o.Reclaim != nil {
		r.Reclaimed = len(o.Reclaim.DirsRemoved)
	}
}

// Duration is EndedAt - StartedAt, or zero for an unfinished run.
func (r Record) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// key orders records by start time, then run id.
func (r Record) key() []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", keyPrefix, r.StartedAt.UnixNano(), r.RunID))
}

// Journal stores run records in BadgerDB.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Journal struct {
	db *badger.DB
}

// Open opens the journal described by cfg.
func Open(cfg Config) (*Journal, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Put writes a record, replacing any earlier version of the same run.
func (j *Journal) Put(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if r.RunID == "" {
		return ErrNoRunID
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode run record: %w", err)
	}
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(r.key(), data)
	})
}

// List returns up to limit records, newest first. A limit <= 0 returns
// every record.
func (j *Journal) List(ctx context.Context, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	var out []Record
	prefix := []byte(keyPrefix)
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the last key with our prefix.
		for it.Seek(append(append([]byte{}, prefix...), 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var r Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
