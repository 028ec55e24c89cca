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
	"time"

	"github.com/tombee/substrate/pkg/result"
)

// WorkerState is the lifecycle state of a Worker.
type WorkerState int

const (
	WorkerInit WorkerState = iota
	WorkerReady
	WorkerRunning
	WorkerStopping
	WorkerStopped
)

// String returns the lowercase state name.
func (s WorkerState) String() string {
	switch s {
	case WorkerInit:
		return "init"
	case WorkerReady:
		return "ready"
	case WorkerRunning:
		return "running"
	case WorkerStopping:
		return "stopping"
	case WorkerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// WorkerType selects the run discipline.
type WorkerType int

const (
	// WorkerSingle runs the callable once.
	WorkerSingle WorkerType = iota
	// WorkerLoop runs the callable repeatedly, sleeping between iterations.
	WorkerLoop
	// WorkerEvent runs the callable once per delivered event.
	WorkerEvent
)

// WorkerDescriptor configures a Worker.
type WorkerDescriptor struct {
	Name      string
	Affinity  []int
	Policy    int
	Priority  int
	Type      WorkerType
	LoopSleep time.Duration
}

// WorkerStatus is a consistent snapshot of worker state.
type WorkerStatus struct {
	State         WorkerState
	Type          WorkerType
	Paused        bool
	Sleeping      bool
	StopRequested bool
}

// WorkerHooks are the lifecycle extension points. Pools integrate through
// these rather than through subclassing.
type WorkerHooks struct {
	// PreStart runs before the owned thread starts; a failure aborts Start.
	PreStart func() error
	// PostStart runs after the worker has transitioned to Running.
	PostStart func()
	// PreStop runs before the stop is requested.
	PreStop func()
	// PostStop runs after the owned thread has joined.
	PostStop func()
	// OnCompleted receives the result of each run invocation.
	OnCompleted func(error)
}

// Worker wraps one ThreadTask with a lifecycle and a run discipline.
//
// Transitions: Init → Ready on Init, Ready → Running on Start,
// Running → Stopping on Stop, Stopping → Stopped once the owned thread
// joins. When the run entry returns on its own (a Single run finishing, a
// run failure or a panic) the worker goes from Running straight to Stopped
// with the stop flag set; it does not pass through Stopping and the owned
// thread is not joined. A fully Stopped worker may be re-initialized.
type Worker struct {
	mu   sync.Mutex
	cond *sync.Cond

	state         WorkerState
	typ           WorkerType
	paused        bool
	sleeping      bool
	stopRequested bool
	eventPending  bool
	sleepCh       chan struct{}

	desc   WorkerDescriptor
	run    func() error
	hooks  WorkerHooks
	thread *ThreadTask
	logger *slog.Logger
}

// NewWorker creates a worker in the Init state.
func NewWorker(logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		state:  WorkerInit,
		logger: logger.With(slog.String("component", "worker")),
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Init binds the descriptor and run callable; Init → Ready. A fully Stopped
// worker may be re-initialized.
func (w *Worker) Init(desc WorkerDescriptor, run func() error) error {
	if run == nil {
		return result.New(result.InvalidArgument, "worker run func is required")
	}
	w.mu.Lock()
	if w.state != WorkerInit && w.state != WorkerStopped {
		w.mu.Unlock()
		return result.Errorf(result.InvalidState, "worker already initialized (state %s)", w.state)
	}
	w.desc = desc
	w.typ = desc.Type
	w.run = run
	w.state = WorkerReady
	w.paused = false
	w.sleeping = false
	w.stopRequested = false
	w.eventPending = false
	w.mu.Unlock()

	if desc.Name != "" {
		w.logger = w.logger.With(slog.String("worker", desc.Name))
	}
	return nil
}

// SetHooks installs the lifecycle hooks. Must be called before Start.
func (w *Worker) SetHooks(hooks WorkerHooks) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hooks = hooks
}

// Start launches the owned thread; Ready → Running.
func (w *Worker) Start() error {
	w.mu.Lock()
	if w.state == WorkerRunning {
		w.mu.Unlock()
		return result.New(result.InvalidState, "worker already running")
	}
	if w.state != WorkerReady {
		w.mu.Unlock()
		return result.Errorf(result.InvalidState, "worker not ready (state %s)", w.state)
	}
	typ := w.typ
	w.mu.Unlock()

	if w.hooks.PreStart != nil {
		if err := w.hooks.PreStart(); err != nil {
			return err
		}
	}

	thread := NewThreadTask(w.logger)
	if err := thread.Init(); err != nil {
		return err
	}
	w.mu.Lock()
	w.thread = thread
	w.mu.Unlock()

	var entry func() error
	switch typ {
	case WorkerLoop:
		entry = w.loopEntry
	case WorkerEvent:
		entry = w.eventEntry
	default:
		entry = w.singleEntry
	}
	err := thread.Execute(Descriptor{
		Name:     w.desc.Name,
		Affinity: w.desc.Affinity,
		Policy:   w.desc.Policy,
		Priority: w.desc.Priority,
		Func:     entry,
	})
	if err != nil {
		thread.Stop()
		return err
	}

	w.mu.Lock()
	w.state = WorkerRunning
	w.cond.Broadcast()
	w.mu.Unlock()

	if w.hooks.PostStart != nil {
		w.hooks.PostStart()
	}
	return nil
}

// Stop requests a stop and joins the owned thread; idempotent.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.state != WorkerRunning && w.state != WorkerStopping {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	if w.hooks.PreStop != nil {
		w.hooks.PreStop()
	}

	w.mu.Lock()
	w.stopRequested = true
	w.paused = false
	w.state = WorkerStopping
	if w.sleepCh != nil {
		close(w.sleepCh)
		w.sleepCh = nil
	}
	w.cond.Broadcast()
	thread := w.thread
	w.mu.Unlock()

	if thread != nil {
		thread.Stop()
		thread.Join()
	}

	w.mu.Lock()
	w.state = WorkerStopped
	w.paused = false
	w.sleeping = false
	w.mu.Unlock()

	if w.hooks.PostStop != nil {
		w.hooks.PostStop()
	}
	return nil
}

// Pause suspends a Loop worker between iterations.
func (w *Worker) Pause() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.typ != WorkerLoop {
		return result.New(result.NotSupported, "pause is only available for loop workers")
	}
	w.paused = true
	return nil
}

// Resume releases a paused Loop worker.
func (w *Worker) Resume() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.typ != WorkerLoop {
		return result.New(result.NotSupported, "resume is only available for loop workers")
	}
	w.paused = false
	w.cond.Broadcast()
	return nil
}

// Event delivers one event to an Event worker. A no-op for other types.
func (w *Worker) Event() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.typ != WorkerEvent {
		return nil
	}
	w.eventPending = true
	w.cond.Broadcast()
	return nil
}

// Sleep blocks the calling run for up to d; Wakeup or Stop cut it short.
func (w *Worker) Sleep(d time.Duration) error {
	w.mu.Lock()
	if w.stopRequested {
		w.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	w.sleepCh = ch
	w.sleeping = true
	w.mu.Unlock()

	select {
	case <-time.After(d):
	case <-ch:
	}

	w.mu.Lock()
	w.sleeping = false
	if w.sleepCh == ch {
		w.sleepCh = nil
	}
	w.mu.Unlock()
	return nil
}

// Wakeup cuts a Sleep short.
func (w *Worker) Wakeup() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sleepCh != nil {
		close(w.sleepCh)
		w.sleepCh = nil
	}
	w.sleeping = false
	return nil
}

// StopRequested reports whether a stop has been requested. The flag is
// monotonic until the worker reaches Stopped.
func (w *Worker) StopRequested() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopRequested
}

// Initialized reports whether the worker is Ready or Running.
func (w *Worker) Initialized() bool {
	s := w.Status().State
	return s == WorkerReady || s == WorkerRunning
}

// Status returns a consistent snapshot.
func (w *Worker) Status() WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WorkerStatus{
		State:         w.state,
		Type:          w.typ,
		Paused:        w.paused,
		Sleeping:      w.sleeping,
		StopRequested: w.stopRequested,
	}
}

// waitRunning blocks the entry until Start completes or a stop arrives.
// Returns false when the worker should exit without running.
func (w *Worker) waitRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.state != WorkerRunning && !w.stopRequested {
		w.cond.Wait()
	}
	return !w.stopRequested
}

func (w *Worker) markStopped() {
	w.mu.Lock()
	w.stopRequested = true
	w.state = WorkerStopped
	thread := w.thread
	w.cond.Broadcast()
	w.mu.Unlock()
	if thread != nil {
		// Safe from the owned thread: only sets the stop flag, the loop
		// exits once this entry returns.
		thread.Stop()
	}
}

func (w *Worker) invoke() error {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("worker run panicked", slog.Any("panic", r))
				err = result.Errorf(result.InternalError, "worker run panicked: %v", r)
			}
		}()
		return w.run()
	}()
	if w.hooks.OnCompleted != nil {
		w.hooks.OnCompleted(err)
	}
	return err
}

func (w *Worker) singleEntry() error {
	defer w.markStopped()
	if !w.waitRunning() {
		return nil
	}
	return w.invoke()
}

func (w *Worker) loopEntry() error {
	defer w.markStopped()
	if !w.waitRunning() {
		return nil
	}
	for {
		w.mu.Lock()
		for w.paused && !w.stopRequested {
			w.cond.Wait()
		}
		if w.stopRequested || w.state != WorkerRunning {
			w.mu.Unlock()
			return nil
		}
		w.mu.Unlock()

		if err := w.invoke(); err != nil {
			w.logger.Warn("worker run failed, stopping", slog.Any("error", err))
			return err
		}
		if w.StopRequested() {
			return nil
		}
		w.Sleep(w.desc.LoopSleep)
	}
}

func (w *Worker) eventEntry() error {
	defer w.markStopped()
	if !w.waitRunning() {
		return nil
	}
	for {
		w.mu.Lock()
		for !w.eventPending && !w.stopRequested {
			w.cond.Wait()
		}
		if w.stopRequested {
			w.mu.Unlock()
			return nil
		}
		w.eventPending = false
		w.mu.Unlock()

		if err := w.invoke(); err != nil {
			w.logger.Warn("worker run failed, stopping", slog.Any("error", err))
			return err
		}
	}
}
