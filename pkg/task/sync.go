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

// SyncTask executes the callable on the caller's goroutine and returns
// synchronously. Affinity and scheduling are not meaningful here.
type SyncTask struct {
	id     uint64
	logger *slog.Logger

	stopped atomic.Bool
	busy    atomic.Bool

	mu      sync.Mutex
	lastErr error
}

// NewSyncTask creates a sync unit.
func NewSyncTask(logger *slog.Logger) *SyncTask {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SyncTask{id: nextUnitID()}
	s.logger = logger.With(slog.String("component", "sync_task"), slog.Uint64("unit", s.id))
	return s
}

// Mode identifies the unit variant.
func (s *SyncTask) Mode() ExecutionMode { return ModeSync }

// ID returns the unit's stable identifier.
func (s *SyncTask) ID() uint64 { return s.id }

// Init clears the stop flag.
func (s *SyncTask) Init() error {
	s.stopped.Store(false)
	return nil
}

// Execute runs the descriptor inline and returns its result.
func (s *SyncTask) Execute(desc Descriptor) error {
	if s.stopped.Load() {
		return result.New(result.InvalidState, "sync task is stopped")
	}
	if desc.Func == nil {
		return result.New(result.InvalidArgument, "task func is required")
	}
	if !s.busy.CompareAndSwap(false, true) {
		return result.New(result.ResourceBusy, "sync task already running")
	}
	defer s.busy.Store(false)

	err := s.invoke(&desc)

	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()

	if desc.OnComplete != nil {
		desc.OnComplete(err)
	}
	return err
}

func (s *SyncTask) invoke(desc *Descriptor) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sync task panicked", slog.String("task", desc.Name), slog.Any("panic", r))
			err = result.Errorf(result.InternalError, "task %q panicked: %v", desc.Name, r)
		}
	}()
	return desc.Func()
}

// Stop refuses future submissions.
func (s *SyncTask) Stop() error {
	s.stopped.Store(true)
	return nil
}

// Wait returns immediately; sync execution leaves nothing pending.
func (s *SyncTask) Wait(time.Duration) error { return nil }

// Join returns immediately.
func (s *SyncTask) Join() error { return nil }

// Detach returns immediately.
func (s *SyncTask) Detach() error { return nil }

// Stopped reports whether a stop has been requested.
func (s *SyncTask) Stopped() bool { return s.stopped.Load() }

// Running reports whether a call is executing right now.
func (s *SyncTask) Running() bool { return s.busy.Load() }

// Idle reports whether the unit can accept work.
func (s *SyncTask) Idle() bool { return !s.busy.Load() }

// SetAffinity is not meaningful for caller-context execution.
func (s *SyncTask) SetAffinity([]int) error {
	return result.New(result.NotSupported, "sync tasks do not support affinity")
}

// Affinity always reports an empty set.
func (s *SyncTask) Affinity() []int { return nil }

// Err returns the result of the most recent task.
func (s *SyncTask) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
