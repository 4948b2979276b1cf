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

// Package tasks runs per-case background work on a fixed worker pool. All
// jobs for one case are routed to the same worker, so they never overlap.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/go-pkgz/pool"

	"github.com/bcem/supportdesk/internal/metrics"
)

var (
	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("tasks: dispatcher closed")

	// ErrQueueFull is returned by Enqueue when the backlog is at capacity.
	// The case stays pending and is picked up by the next requeue.
	ErrQueueFull = errors.New("tasks: queue full")
)

const (
	defaultWorkers = 4

	// DefaultMaxQueued bounds jobs queued or running across all workers.
	DefaultMaxQueued = 1024
)

// Handler processes one case.
type Handler func(ctx context.Context, caseID int64) error

// Dispatcher queues case ids for background processing.
type Dispatcher struct {
	mu        sync.Mutex
	closed    bool
	group     *pool.WorkerGroup[int64]
	queued    atomic.Int64
	maxQueued int64
}

// Start creates a Dispatcher with the given number of workers and starts
// it. Jobs run detached from ctx cancellation; use Close to drain.
func Start(ctx context.Context, workers int, handler Handler) (*Dispatcher, error) {
	return start(ctx, workers, DefaultMaxQueued, handler)
}

func start(ctx context.Context, workers, maxQueued int, handler Handler) (*Dispatcher, error) {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if maxQueued <= 0 {
		maxQueued = DefaultMaxQueued
	}

	d := &Dispatcher{maxQueued: int64(maxQueued)}
	worker := pool.WorkerFunc[int64](func(ctx context.Context, caseID int64) error {
		defer d.queued.Add(-1)
		runJob(ctx, caseID, handler)
		return nil
	})

	// Every worker channel can hold the whole backlog, so Submit never
	// blocks while the queued count is under maxQueued.
	group := pool.New[int64](workers, worker).
		WithBatchSize(1).
		WithWorkerChanSize(maxQueued).
		WithChunkFn(func(caseID int64) string { return strconv.FormatInt(caseID, 10) }).
		WithContinueOnError()

	if err := group.Go(context.WithoutCancel(ctx)); err != nil {
		return nil, fmt.Errorf("start worker pool: %w", err)
	}

	d.group = group
	slog.Info("task dispatcher started", "workers", workers, "max_queued", maxQueued)
	return d, nil
}

// runJob calls handler and contains any failure at the task boundary.
func runJob(ctx context.Context, caseID int64, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			metrics.TaskPanics.Inc()
			slog.Error("task panicked",
				"case_id", caseID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	if err := handler(ctx, caseID); err != nil {
		slog.Error("task failed", "case_id", caseID, "error", err)
	}
}

// Enqueue schedules caseID without blocking. It returns ErrQueueFull when
// the backlog is at capacity.
func (d *Dispatcher) Enqueue(caseID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.queued.Add(1) > d.maxQueued {
		d.queued.Add(-1)
		metrics.TasksRejected.Inc()
		return ErrQueueFull
	}
	d.group.Submit(caseID)
	return nil
}

// Queued reports jobs waiting or running.
func (d *Dispatcher) Queued() int64 {
	return d.queued.Load()
}

// Close stops intake and waits for queued jobs to finish or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	if err := d.group.Close(ctx); err != nil {
		return fmt.Errorf("drain worker pool: %w", err)
	}
	slog.Info("task dispatcher stopped")
	return nil
}
