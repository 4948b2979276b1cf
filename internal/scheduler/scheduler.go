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

// Package scheduler runs the periodic background jobs (mailbox poll and
// lifecycle reaper) on a cron engine. A job never overlaps with itself.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one periodic unit of work.
type Job func(ctx context.Context) error

// Scheduler wraps a cron engine in UTC.
type Scheduler struct {
	cron     *cron.Cron
	parser   cron.Parser
	rootCtx  context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	timeout  time.Duration
}

// New creates a Scheduler. Jobs receive a context derived from ctx that is
// cancelled by Stop; each run is additionally bounded by jobTimeout when it
// is positive.
func New(ctx context.Context, jobTimeout time.Duration) *Scheduler {
	rootCtx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		rootCtx: rootCtx,
		cancel:  cancel,
		timeout: jobTimeout,
	}
}

// Add registers job under name with a cron spec such as "@every 1m" or
// "*/5 * * * *".
func (s *Scheduler) Add(name, spec string, job Job) error {
	schedule, err := s.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("parse schedule %q for %s: %w", spec, name, err)
	}
	s.cron.Schedule(schedule, cron.FuncJob(func() { s.run(name, job) }))
	slog.Info("scheduled job registered", "job", name, "schedule", spec)
	return nil
}

func (s *Scheduler) run(name string, job Job) {
	ctx := s.rootCtx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		err = job(ctx)
	}()

	if err != nil {
		slog.Error("scheduled job failed", "job", name, "duration_ms", time.Since(start).Milliseconds(), "error", err)
		return
	}
	slog.Debug("scheduled job finished", "job", name, "duration_ms", time.Since(start).Milliseconds())
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling, cancels running jobs and waits up to wait for them
// to return.
func (s *Scheduler) Stop(wait time.Duration) {
	s.stopOnce.Do(func() {
		done := s.cron.Stop()
		s.cancel()
		select {
		case <-done.Done():
		case <-time.After(wait):
			slog.Warn("timed out waiting for scheduled jobs to finish")
		}
	})
}
