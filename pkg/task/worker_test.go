// Copyright 2025 Tom Barlow
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

package task

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/substrate/pkg/result"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition never satisfied")
}

func TestWorkerSingleRunsOnce(t *testing.T) {
	w := NewWorker(testLogger())
	var runs atomic.Int32
	require.NoError(t, w.Init(WorkerDescriptor{Name: "once", Type: WorkerSingle}, func() error {
		runs.Add(1)
		return nil
	}))
	require.Equal(t, WorkerReady, w.Status().State)

	require.NoError(t, w.Start())
	waitFor(t, time.Second, func() bool { return w.Status().State == WorkerStopped })
	assert.Equal(t, int32(1), runs.Load())
}

func TestWorkerLoopPauseResume(t *testing.T) {
	w := NewWorker(testLogger())
	var runs atomic.Int32
	require.NoError(t, w.Init(WorkerDescriptor{
		Name:      "looper",
		Type:      WorkerLoop,
		LoopSleep: time.Millisecond,
	}, func() error {
		runs.Add(1)
		return nil
	}))
	require.NoError(t, w.Start())
	defer w.Stop()

	waitFor(t, time.Second, func() bool { return runs.Load() >= 3 })

	require.NoError(t, w.Pause())
	waitFor(t, time.Second, func() bool { return w.Status().Paused })
	// Allow any in-flight iteration to finish, then verify no progress.
	time.Sleep(20 * time.Millisecond)
	paused := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, runs.Load(), paused+1, "paused loop must not keep iterating")

	require.NoError(t, w.Resume())
	waitFor(t, time.Second, func() bool { return runs.Load() > paused+1 })
}

func TestWorkerPauseOutsideLoop(t *testing.T) {
	w := NewWorker(testLogger())
	require.NoError(t, w.Init(WorkerDescriptor{Name: "ev", Type: WorkerEvent}, func() error { return nil }))

	assert.Equal(t, result.NotSupported, result.CodeOf(w.Pause()))
	assert.Equal(t, result.NotSupported, result.CodeOf(w.Resume()))
}

func TestWorkerEventWake(t *testing.T) {
	w := NewWorker(testLogger())
	var runs atomic.Int32
	require.NoError(t, w.Init(WorkerDescriptor{Name: "ev", Type: WorkerEvent}, func() error {
		runs.Add(1)
		return nil
	}))
	require.NoError(t, w.Start())
	defer w.Stop()

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(0), runs.Load(), "event worker must wait for events")

	require.NoError(t, w.Event())
	waitFor(t, time.Second, func() bool { return runs.Load() == 1 })

	require.NoError(t, w.Event())
	waitFor(t, time.Second, func() bool { return runs.Load() == 2 })
}

func TestWorkerEventOnOtherTypesIsNoop(t *testing.T) {
	w := NewWorker(testLogger())
	require.NoError(t, w.Init(WorkerDescriptor{Name: "s", Type: WorkerSingle}, func() error { return nil }))
	assert.NoError(t, w.Event())
}

func TestWorkerStopIdempotent(t *testing.T) {
	w := NewWorker(testLogger())
	require.NoError(t, w.Init(WorkerDescriptor{
		Name:      "looper",
		Type:      WorkerLoop,
		LoopSleep: time.Millisecond,
	}, func() error { return nil }))
	require.NoError(t, w.Start())

	for i := 0; i < 3; i++ {
		require.NoError(t, w.Stop())
	}
	assert.Equal(t, WorkerStopped, w.Status().State)
}

func TestWorkerRunFailureStops(t *testing.T) {
	w := NewWorker(testLogger())
	var completions atomic.Int32
	require.NoError(t, w.Init(WorkerDescriptor{
		Name:      "failing",
		Type:      WorkerLoop,
		LoopSleep: time.Millisecond,
	}, func() error {
		return result.New(result.InternalError, "broken")
	}))
	w.SetHooks(WorkerHooks{OnCompleted: func(err error) {
		completions.Add(1)
	}})
	require.NoError(t, w.Start())

	waitFor(t, time.Second, func() bool { return w.Status().State == WorkerStopped })
	assert.True(t, w.Status().StopRequested)
	assert.Equal(t, int32(1), completions.Load())
}

func TestWorkerPanicStops(t *testing.T) {
	w := NewWorker(testLogger())
	require.NoError(t, w.Init(WorkerDescriptor{Name: "p", Type: WorkerSingle}, func() error {
		panic("boom")
	}))
	require.NoError(t, w.Start())
	waitFor(t, time.Second, func() bool { return w.Status().State == WorkerStopped })
	assert.True(t, w.Status().StopRequested)
}

func TestWorkerReinitAfterStopped(t *testing.T) {
	w := NewWorker(testLogger())
	var runs atomic.Int32
	run := func() error { runs.Add(1); return nil }

	require.NoError(t, w.Init(WorkerDescriptor{Name: "re", Type: WorkerSingle}, run))
	require.NoError(t, w.Start())
	waitFor(t, time.Second, func() bool { return w.Status().State == WorkerStopped })

	require.NoError(t, w.Init(WorkerDescriptor{Name: "re", Type: WorkerSingle}, run))
	require.NoError(t, w.Start())
	waitFor(t, time.Second, func() bool { return runs.Load() == 2 })
}

func TestWorkerHooksOrder(t *testing.T) {
	w := NewWorker(testLogger())
	var order []string
	require.NoError(t, w.Init(WorkerDescriptor{Name: "hooked", Type: WorkerSingle}, func() error {
		return nil
	}))
	w.SetHooks(WorkerHooks{
		PreStart:  func() error { order = append(order, "pre_start"); return nil },
		PostStart: func() { order = append(order, "post_start") },
		PreStop:   func() { order = append(order, "pre_stop") },
		PostStop:  func() { order = append(order, "post_stop") },
	})
	require.NoError(t, w.Start())
	waitFor(t, time.Second, func() bool { return w.Status().State == WorkerStopped })
	require.NoError(t, w.Stop())

	// Single workers stop on their own; Stop afterwards is a no-op, so only
	// the start hooks are guaranteed here.
	assert.Equal(t, []string{"pre_start", "post_start"}, order[:2])
}
