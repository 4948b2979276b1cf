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

// Package reaper deletes completed cases once their retention window has
// passed, together with their stored attachment files.
package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bcem/supportdesk/internal/metrics"
)

// DefaultRetention is how long a completed case is kept.
const DefaultRetention = 5 * time.Minute

// CaseDeleter removes completed cases.
type CaseDeleter interface {
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) ([]int64, error)
}

// FileRemover removes a case's stored files.
type FileRemover interface {
	RemoveCase(caseID int64) error
}

// Reaper sweeps completed cases.
type Reaper struct {
	cases     CaseDeleter
	files     FileRemover
	retention time.Duration
	now       func() time.Time
}

// New creates a Reaper. files may be nil.
func New(cases CaseDeleter, files FileRemover, retention time.Duration) *Reaper {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Reaper{cases: cases, files: files, retention: retention, now: time.Now}
}

// Run performs one sweep at the current time.
func (r *Reaper) Run(ctx context.Context) error {
	_, err := r.RunOnce(ctx, r.now())
	return err
}

// RunOnce deletes cases completed strictly before now minus the retention
// and returns how many were removed. File cleanup failures are logged.
func (r *Reaper) RunOnce(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-r.retention)
	ids, err := r.cases.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete completed cases: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if r.files != nil {
		for _, id := range ids {
			if err := r.files.RemoveCase(id); err != nil {
				slog.Warn("failed to remove case files", "case_id", id, "error", err)
			}
		}
	}

	metrics.CasesReaped.Add(float64(len(ids)))
	slog.Info("completed cases reaped", "count", len(ids), "cutoff", cutoff.UTC().Format(time.RFC3339))
	return len(ids), nil
}
