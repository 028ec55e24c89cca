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
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tombee/substrate/pkg/result"
)

// ThreadTask owns one dedicated OS thread. The thread loops on a condition
// variable waiting for a descriptor, executes it, records the result, invokes
// the completion callback outside the task lock, and becomes idle again.
//
// Execute acts as a one-deep mailbox: a submission while the mailbox is full
// returns result.ResourceBusy. Stop is cooperative; the in-flight task runs
// to completion.
type ThreadTask struct {
	id     uint64
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond // work arrival / stop
	hasTask bool
	running bool // task currently executing
	desc    Descriptor
	doneCh  chan struct{} // completion of the task in flight / in mailbox

	stop    atomic.Bool
	alive   atomic.Bool // loop thread running
	started bool
	exited  chan struct{}

	tid   atomic.Int64
	attrs *threadAttrs

	resMu   sync.Mutex
	lastErr error
}

// NewThreadTask creates an uninitialized thread unit.
func NewThreadTask(logger *slog.Logger) *ThreadTask {
	if logger == nil {
		logger = slog.Default()
	}
	t := &ThreadTask{
		id:    nextUnitID(),
		attrs: newThreadAttrs(),
	}
	t.logger = logger.With(slog.String("component", "thread_task"), slog.Uint64("unit", t.id))
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Mode identifies the unit variant.
func (t *ThreadTask) Mode() ExecutionMode { return ModeThread }

// ID returns the unit's stable identifier.
func (t *ThreadTask) ID() uint64 { return t.id }

// Init starts the owned thread. Re-initializing a live unit is an error.
func (t *ThreadTask) Init() error {
	t.mu.Lock()
	if t.started && t.alive.Load() {
		t.mu.Unlock()
		return result.New(result.InvalidState, "thread task already initialized")
	}
	t.stop.Store(false)
	t.hasTask = false
	t.running = false
	t.started = true
	t.exited = make(chan struct{})
	exited := t.exited
	t.mu.Unlock()

	ready := make(chan struct{})
	go t.loop(ready, exited)
	<-ready
	return nil
}

// Execute submits a descriptor to the mailbox and wakes the thread.
// Attribute changes relative to the last applied state are flagged dirty and
// applied (or retried) before the task is picked up.
func (t *ThreadTask) Execute(desc Descriptor) error {
	if t.stop.Load() || !t.alive.Load() {
		return result.New(result.InvalidState, "thread task is stopped")
	}
	if desc.Func == nil {
		return result.New(result.InvalidArgument, "task func is required")
	}

	t.mu.Lock()
	if t.hasTask || t.running {
		t.mu.Unlock()
		return result.New(result.ResourceBusy, "thread task already has a task")
	}
	t.desc = desc
	t.hasTask = true
	t.doneCh = make(chan struct{})
	t.mu.Unlock()

	t.attrs.markDesired(&desc)
	t.attrs.applyIfDirty(int(t.tid.Load()), t.logger)
	t.cond.Signal()
	return nil
}

// Stop requests a cooperative stop and wakes all waiters. Idempotent; safe
// from any goroutine.
func (t *ThreadTask) Stop() error {
	t.stop.Store(true)
	t.cond.Broadcast()
	return nil
}

// Err returns the result of the most recent task.
func (t *ThreadTask) Err() error {
	t.resMu.Lock()
	defer t.resMu.Unlock()
	return t.lastErr
}

// Stopped reports whether a stop has been requested.
func (t *ThreadTask) Stopped() bool { return t.stop.Load() }

// Running reports whether the owned thread is alive.
func (t *ThreadTask) Running() bool { return t.alive.Load() }

// Idle reports whether the unit can accept a task right now.
func (t *ThreadTask) Idle() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.hasTask && !t.running
}

// Wait blocks until the current task (queued or executing) completes.
// A negative timeout waits indefinitely; on deadline it returns
// result.Timeout.
func (t *ThreadTask) Wait(timeout time.Duration) error {
	t.mu.Lock()
	if !t.hasTask && !t.running {
		t.mu.Unlock()
		return nil
	}
	done := t.doneCh
	t.mu.Unlock()

	if timeout < 0 {
		<-done
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return result.New(result.Timeout, "thread wait timeout")
	}
}

// Join waits for the owned thread to exit. Call Stop first; Join alone does
// not request a stop.
func (t *ThreadTask) Join() error {
	t.mu.Lock()
	exited := t.exited
	t.mu.Unlock()
	if exited != nil {
		<-exited
	}
	return nil
}

// Detach releases interest in the owned thread without waiting. The thread
// still exits on Stop; this only documents that nobody will Join.
func (t *ThreadTask) Detach() error { return nil }

// SetAffinity binds the owned thread to the given cores. On syscall failure
// the request is retained and retried at the next opportunity.
func (t *ThreadTask) SetAffinity(cores []int) error {
	if !t.alive.Load() {
		return result.New(result.InvalidState, "thread task not initialized")
	}
	return t.attrs.requestAffinity(int(t.tid.Load()), cores)
}

// Affinity returns the last successfully applied core set.
func (t *ThreadTask) Affinity() []int { return t.attrs.affinity() }

// Scheduler returns the last successfully applied policy and priority.
func (t *ThreadTask) Scheduler() (policy, priority int) { return t.attrs.scheduler() }

func (t *ThreadTask) loop(ready chan<- struct{}, exited chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(exited)

	t.tid.Store(int64(currentTID()))
	t.alive.Store(true)
	defer t.alive.Store(false)
	close(ready)

	for !t.stop.Load() {
		t.mu.Lock()
		for !t.hasTask && !t.stop.Load() {
			t.cond.Wait()
		}
		if t.stop.Load() {
			t.mu.Unlock()
			break
		}
		desc := t.desc
		done := t.doneCh
		t.desc = Descriptor{}
		t.hasTask = false
		t.running = true
		t.mu.Unlock()

		// Late attribute retries land here, on the owned thread.
		t.attrs.applyIfDirty(int(t.tid.Load()), t.logger)

		err := t.invoke(&desc)

		t.resMu.Lock()
		t.lastErr = err
		t.resMu.Unlock()

		if desc.OnComplete != nil {
			desc.OnComplete(err)
		}

		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
		close(done)
	}
}

func (t *ThreadTask) invoke(desc *Descriptor) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("task panicked", slog.String("task", desc.Name), slog.Any("panic", r))
			err = result.Errorf(result.InternalError, "task %q panicked: %v", desc.Name, r)
		}
	}()
	return desc.Func()
}
