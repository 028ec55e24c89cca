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
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tombee/substrate/pkg/result"
)

// AsyncTask schedules each descriptor onto a fresh goroutine. Cancellation is
// cooperative: Stop only refuses future submissions; an in-flight task runs
// to completion and its result is still delivered to the completion callback.
// Affinity is not supported.
type AsyncTask struct {
	id     uint64
	logger *slog.Logger

	stopped atomic.Bool
	busy    atomic.Bool

	mu      sync.Mutex
	doneCh  chan struct{}
	lastErr error
}

// NewAsyncTask creates an async unit.
func NewAsyncTask(logger *slog.Logger) *AsyncTask {
	if logger == nil {
		logger = slog.Default()
	}
	a := &AsyncTask{id: nextUnitID()}
	a.logger = logger.With(slog.String("component", "async_task"), slog.Uint64("unit", a.id))
	return a
}

// Mode identifies the unit variant.
func (a *AsyncTask) Mode() ExecutionMode { return ModeAsync }

// ID returns the unit's stable identifier.
func (a *AsyncTask) ID() uint64 { return a.id }

// Init clears the stop flag. In-flight work, if any, must have drained.
func (a *AsyncTask) Init() error {
	if a.busy.Load() {
		return result.New(result.ResourceBusy, "async task still in flight")
	}
	a.stopped.Store(false)
	return nil
}

// Execute launches the descriptor on the async executor.
func (a *AsyncTask) Execute(desc Descriptor) error {
	if a.stopped.Load() {
		return result.New(result.InvalidState, "async task is stopped")
	}
	if desc.Func == nil {
		return result.New(result.InvalidArgument, "task func is required")
	}
	if !a.busy.CompareAndSwap(false, true) {
		return result.New(result.ResourceBusy, "async task already running")
	}

	done := make(chan struct{})
	a.mu.Lock()
	a.doneCh = done
	a.mu.Unlock()

	go func() {
		err := a.invoke(&desc)

		a.mu.Lock()
		a.lastErr = err
		a.mu.Unlock()

		if desc.OnComplete != nil {
			desc.OnComplete(err)
		}
		a.busy.Store(false)
		close(done)
	}()
	return nil
}

func (a *AsyncTask) invoke(desc *Descriptor) (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("async task panicked", slog.String("task", desc.Name), slog.Any("panic", r))
			err = result.Errorf(result.InternalError, "task %q panicked: %v", desc.Name, r)
		}
	}()
	return desc.Func()
}

// Stop refuses future submissions. The in-flight task, if any, continues.
func (a *AsyncTask) Stop() error {
	a.stopped.Store(true)
	return nil
}

// Wait blocks until the in-flight task completes or the timeout elapses.
func (a *AsyncTask) Wait(timeout time.Duration) error {
	a.mu.Lock()
	done := a.doneCh
	a.mu.Unlock()
	if done == nil || !a.busy.Load() {
		return nil
	}
	if timeout < 0 {
		<-done
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return result.New(result.Timeout, "async wait timeout")
	}
}

// Join waits for the in-flight task to complete.
func (a *AsyncTask) Join() error { return a.Wait(-1) }

// Detach is a no-op; goroutines need no detachment.
func (a *AsyncTask) Detach() error { return nil }

// Stopped reports whether a stop has been requested.
func (a *AsyncTask) Stopped() bool { return a.stopped.Load() }

// Running reports whether a task is in flight.
func (a *AsyncTask) Running() bool { return a.busy.Load() }

// Idle reports whether the unit can accept work.
func (a *AsyncTask) Idle() bool { return !a.busy.Load() }

// SetAffinity is not meaningful for the async executor.
func (a *AsyncTask) SetAffinity([]int) error {
	return result.New(result.NotSupported, "async tasks do not support affinity")
}

// Affinity always reports an empty set.
func (a *AsyncTask) Affinity() []int { return nil }

// Err returns the result of the most recent task.
func (a *AsyncTask) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}
