// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stageNames(stages []StageDescriptor) []string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	return names
}

func TestNewRegistry(t *testing.T) {
	noop := func(context.Context, Year) error { return nil }

	t.Run("keeps order", func(t *testing.T) {
		r, err := NewRegistry(fiveStages(&recorder{}, nil)...)
		require.NoError(t, err)
		assert.Equal(t, []string{"Download", "Unzip", "Assemble", "Define", "Load"}, r.Names())
		assert.Equal(t, 5, r.Len())
	})

	t.Run("empty", func(t *testing.T) {
		_, err := NewRegistry()
		assert.ErrorIs(t, err, ErrEmptyRegistry)
	})

	t.Run("missing name", func(t *testing.T) {
		_, err := NewRegistry(StageDescriptor{Action: noop})
		assert.ErrorIs(t, err, ErrInvalidStage)
	})

	t.Run("nil action", func(t *testing.T) {
		_, err := NewRegistry(StageDescriptor{Name: "Download"})
		assert.ErrorIs(t, err, ErrInvalidStage)
	})

	t.Run("duplicate", func(t *testing.T) {
		_, err := NewRegistry(
			StageDescriptor{Name: "Download", Action: noop},
			StageDescriptor{Name: "Download", Action: noop},
		)
		assert.ErrorIs(t, err, ErrDuplicateStage)
	})

	t.Run("gerund defaults to name", func(t *testing.T) {
		r, err := NewRegistry(StageDescriptor{Name: "Download", Action: noop})
		require.NoError(t, err)
		st, ok := r.Stage("Download")
		require.True(t, ok)
		assert.Equal(t, "Download", st.Gerund)
	})
}

func TestRegistry_SelectRange(t *testing.T) {
	r, err := NewRegistry(fiveStages(&recorder{}, nil)...)
	require.NoError(t, err)

	tests := []struct {
		first, last string
		want        []string
		wantErr     bool
	}{
		{"Assemble", "Define", []string{"Assemble", "Define"}, false},
		{"Download", "Load", []string{"Download", "Unzip", "Assemble", "Define", "Load"}, false},
		{"Load", "Load", []string{"Load"}, false},
		{"Define", "Assemble", nil, true},
		{"Fetch", "Load", nil, true},
		{"Download", "Store", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.first+"-"+tt.last, func(t *testing.T) {
			got, err := r.SelectRange(tt.first, tt.last)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSelection)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, stageNames(got))
		})
	}
}

func TestRegistry_SelectRangeReturnsCopy(t *testing.T) {
	r, err := NewRegistry(fiveStages(&recorder{}, nil)...)
	require.NoError(t, err)

	sel, err := r.SelectRange("Download", "Unzip")
	require.NoError(t, err)
	sel[0].Name = "Mutated"

	st, ok := r.Stage("Download")
	require.True(t, ok)
	assert.Equal(t, "Download", st.Name)
}

func TestRequiredPaths(t *testing.T) {
	r, err := NewRegistry(fiveStages(&recorder{}, nil)...)
	require.NoError(t, err)

	define, err := r.SelectRange("Define", "Define")
	require.NoError(t, err)
	assert.Equal(t,
		[]PathKey{PathUnzip, PathAssemble, PathDefine, PathChadwick},
		RequiredPaths(define))

	all := r.Stages()
	assert.Equal(t,
		[]PathKey{PathDownload, PathUnzip, PathAssemble, PathChadwick, PathDefine},
		RequiredPaths(all))

	assert.Empty(t, RequiredPaths(nil))
}
