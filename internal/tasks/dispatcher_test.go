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

package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDispatcher_RunsAllJobs verifies Close drains every queued job.
func TestDispatcher_RunsAllJobs(t *testing.T) {
	var mu sync.Mutex
	seen := map[int64]int{}

	d, err := Start(context.Background(), 3, func(_ context.Context, id int64) error {
		mu.Lock()
		seen[id]++
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	for i := int64(1); i <= 20; i++ {
		require.NoError(t, d.Enqueue(i))
	}
	require.NoError(t, d.Close(context.Background()))

	assert.Len(t, seen, 20)
	for id, n := range seen {
		assert.Equal(t, 1, n, "case %d", id)
	}
}

// TestDispatcher_SerializesPerCase verifies jobs for one case never overlap.
func TestDispatcher_SerializesPerCase(t *testing.T) {
	var mu sync.Mutex
	inFlight := map[int64]bool{}
	var overlaps atomic.Int32
	var runs atomic.Int32

	d, err := Start(context.Background(), 4, func(_ context.Context, id int64) error {
		mu.Lock()
		if inFlight[id] {
			overlaps.Add(1)
		}
		inFlight[id] = true
		mu.Unlock()

		time.Sleep(2 * time.Millisecond)

		mu.Lock()
		inFlight[id] = false
		mu.Unlock()
		runs.Add(1)
		return nil
	})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, d.Enqueue(7))
		require.NoError(t, d.Enqueue(8))
	}
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, int32(20), runs.Load())
	assert.Zero(t, overlaps.Load())
}

// TestDispatcher_ContainsFailures verifies errors and panics do not stop
// later jobs.
func TestDispatcher_ContainsFailures(t *testing.T) {
	var done atomic.Int32
	d, err := Start(context.Background(), 1, func(_ context.Context, id int64) error {
		switch id {
		case 1:
			panic("boom")
		case 2:
			return errors.New("model down")
		}
		done.Add(1)
		return nil
	})
	require.NoError(t, err)

	for _, id := range []int64{1, 2, 3, 4} {
		require.NoError(t, d.Enqueue(id))
	}
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, int32(2), done.Load())
}

func TestDispatcher_EnqueueAfterClose(t *testing.T) {
	d, err := Start(context.Background(), 1, func(context.Context, int64) error { return nil })
	require.NoError(t, err)
	require.NoError(t, d.Close(context.Background()))

	assert.ErrorIs(t, d.Enqueue(1), ErrClosed)
	assert.NoError(t, d.Close(context.Background()))
}

// TestDispatcher_DetachedFromStartContext verifies cancelling the start
// context does not cancel running jobs.
func TestDispatcher_DetachedFromStartContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ctxErr atomic.Value

	d, err := Start(ctx, 1, func(jobCtx context.Context, _ int64) error {
		cancel()
		time.Sleep(5 * time.Millisecond)
		if jobCtx.Err() != nil {
			ctxErr.Store(jobCtx.Err())
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, d.Enqueue(1))
	require.NoError(t, d.Close(context.Background()))
	assert.Nil(t, ctxErr.Load())
}

// TestDispatcher_EnqueueNeverBlocks verifies a full backlog is refused
// immediately instead of stalling the caller behind running jobs.
func TestDispatcher_EnqueueNeverBlocks(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var runs atomic.Int32

	d, err := start(context.Background(), 1, 2, func(context.Context, int64) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		runs.Add(1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, d.Enqueue(1))
	<-started
	require.NoError(t, d.Enqueue(2))

	done := make(chan error, 1)
	go func() { done <- d.Enqueue(3) }()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrQueueFull)
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full backlog")
	}
	assert.Equal(t, int64(2), d.Queued())

	close(release)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, int32(2), runs.Load())
	assert.Zero(t, d.Queued())
}
