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

package composition

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tombee/substrate/pkg/task"
)

// Restart policies from the manifest.
const (
	RestartNever     = "never"
	RestartOnFailure = "on_failure"
	RestartAlways    = "always"
)

type retryState struct {
	ctrl     *Controller
	attempts int
	nextAt   time.Time
}

// Supervisor owns restart policy execution: controllers never retry, so
// subsystems whose start failed land here and are re-driven per their
// manifest restart_policy, restart_delay_ms, and max_retries. It runs as a
// Loop worker, receiving the same lifecycle discipline as everything else.
type Supervisor struct {
	worker *task.Worker
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*retryState
}

// NewSupervisor creates a stopped supervisor.
func NewSupervisor(logger *slog.Logger) (*Supervisor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Supervisor{
		worker:  task.NewWorker(logger),
		logger:  logger.With(slog.String("component", "supervisor")),
		pending: make(map[string]*retryState),
	}
	err := s.worker.Init(task.WorkerDescriptor{
		Name:      "supervisor",
		Type:      task.WorkerLoop,
		LoopSleep: 100 * time.Millisecond,
	}, s.tick)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins supervising.
func (s *Supervisor) Start() error { return s.worker.Start() }

// Stop stops the supervisor loop.
func (s *Supervisor) Stop() error { return s.worker.Stop() }

// OnStartFailure is the Manager hook: a failed start is scheduled for
// restart according to its policy.
func (s *Supervisor) OnStartFailure(ctrl *Controller, err error) {
	info := ctrl.Info()
	policy := info.RestartPolicy
	if policy == "" || policy == RestartNever {
		return
	}
	delay := time.Duration(info.RestartDelayMS) * time.Millisecond

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pending[ctrl.Name()]; exists {
		return
	}
	s.pending[ctrl.Name()] = &retryState{
		ctrl:   ctrl,
		nextAt: time.Now().Add(delay),
	}
	s.logger.Info("subsystem scheduled for restart",
		slog.String("subsystem", ctrl.Name()),
		slog.String("policy", policy),
		slog.Duration("delay", delay))
}

// Pending returns the names currently scheduled for restart.
func (s *Supervisor) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.pending))
	for name := range s.pending {
		out = append(out, name)
	}
	return out
}

// tick retries every due entry once.
func (s *Supervisor) tick() error {
	now := time.Now()

	s.mu.Lock()
	var due []*retryState
	for _, st := range s.pending {
		if !st.nextAt.After(now) {
			due = append(due, st)
		}
	}
	s.mu.Unlock()

	for _, st := range due {
		name := st.ctrl.Name()
		info := st.ctrl.Info()
		err := st.ctrl.Start()

		s.mu.Lock()
		if err == nil {
			delete(s.pending, name)
			s.mu.Unlock()
			s.logger.Info("subsystem restarted", slog.String("subsystem", name),
				slog.Int("attempts", st.attempts+1))
			continue
		}
		st.attempts++
		if info.MaxRetries > 0 && st.attempts >= info.MaxRetries {
			delete(s.pending, name)
			s.mu.Unlock()
			s.logger.Error("subsystem restart abandoned",
				slog.String("subsystem", name),
				slog.Int("attempts", st.attempts),
				slog.Any("error", err))
			continue
		}
		st.nextAt = now.Add(time.Duration(info.RestartDelayMS) * time.Millisecond)
		s.mu.Unlock()
		s.logger.Warn("subsystem restart failed",
			slog.String("subsystem", name),
			slog.Int("attempt", st.attempts),
			slog.Any("error", err))
	}
	return nil
}
