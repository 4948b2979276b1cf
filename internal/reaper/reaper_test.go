// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reaper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCases keeps completed_at per case and deletes like the store does.
type fakeCases struct {
	completed map[int64]time.Time
	err       error
}

func (f *fakeCases) DeleteCompletedBefore(_ context.Context, cutoff time.Time) ([]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	var ids []int64
	for id, at := range f.completed {
		if at.Before(cutoff) {
			ids = append(ids, id)
			delete(f.completed, id)
		}
	}
	return ids, nil
}

type fakeFiles struct {
	removed []int64
	err     error
}

func (f *fakeFiles) RemoveCase(id int64) error {
	f.removed = append(f.removed, id)
	return f.err
}

// TestRunOnce_StrictCutoff verifies a case exactly at the retention boundary
// survives and older ones are removed with their files.
func TestRunOnce_StrictCutoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := &fakeCases{completed: map[int64]time.Time{
		1: now.Add(-10 * time.Minute),
		2: now.Add(-5 * time.Minute),
		3: now.Add(-time.Minute),
	}}
	files := &fakeFiles{}

	n, err := New(cases, files, 5*time.Minute).RunOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{1}, files.removed)
	assert.Contains(t, cases.completed, int64(2))
	assert.Contains(t, cases.completed, int64(3))
}

func TestRunOnce_FileErrorsDoNotFail(t *testing.T) {
	now := time.Now()
	cases := &fakeCases{completed: map[int64]time.Time{7: now.Add(-time.Hour)}}

	n, err := New(cases, &fakeFiles{err: errors.New("busy")}, time.Minute).RunOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunOnce_StoreError(t *testing.T) {
	_, err := New(&fakeCases{err: errors.New("db down")}, nil, 0).RunOnce(context.Background(), time.Now())
	assert.ErrorContains(t, err, "db down")
}

func TestNew_DefaultRetention(t *testing.T) {
	assert.Equal(t, DefaultRetention, New(&fakeCases{}, nil, 0).retention)
}
