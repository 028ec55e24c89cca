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

// Package sample is the reference subsystem: a small acquisition domain
// behind the subsystem ABI, exercising the platform's worker, IoC, and
// command surfaces the way a real subsystem would.
package sample

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tombee/substrate/pkg/abi"
	"github.com/tombee/substrate/pkg/task"
)

// Query codes this subsystem answers. Codes are subsystem-local; the host
// treats them as opaque.
const (
	QuerySampleCount uint32 = 1
	QueryLastValue   uint32 = 2
)

// Subsystem is the sample acquisition domain: a loop worker produces one
// reading per tick while started.
type Subsystem struct {
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	paused  bool
	mode    abi.SystemMode
	count   uint64
	last    float64

	worker *task.Worker
}

// newSubsystem builds an unstarted instance.
func newSubsystem(logger *slog.Logger) (*Subsystem, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Subsystem{
		logger: logger.With(slog.String("subsystem", "sample")),
		mode:   abi.ModeNormal,
	}
	s.worker = task.NewWorker(s.logger)
	err := s.worker.Init(task.WorkerDescriptor{
		Name:      "sample-domain",
		Type:      task.WorkerLoop,
		LoopSleep: 250 * time.Millisecond,
	}, s.acquire)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// acquire produces one reading per loop tick.
func (s *Subsystem) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	// A synthetic reading; a real domain would talk to a device accessor
	// resolved from the device container.
	s.last = float64(s.count%100) / 100.0
	return nil
}

func (s *Subsystem) init() int {
	s.logger.Info("sample init")
	return abi.OK
}

func (s *Subsystem) selfTest() int {
	return abi.OK
}

func (s *Subsystem) configure() int {
	return abi.OK
}

func (s *Subsystem) ready() int {
	return abi.OK
}

func (s *Subsystem) start() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return abi.OK
	}
	if err := s.worker.Start(); err != nil {
		s.logger.Error("sample worker start failed", slog.Any("error", err))
		return abi.Err
	}
	s.started = true
	return abi.OK
}

func (s *Subsystem) pause() int {
	if err := s.worker.Pause(); err != nil {
		return abi.Err
	}
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	return abi.OK
}

func (s *Subsystem) stop() int {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()
	if !started {
		return abi.OK
	}
	if err := s.worker.Stop(); err != nil {
		return abi.Err
	}
	return abi.OK
}

func (s *Subsystem) recovery() int {
	s.mu.Lock()
	s.count = 0
	s.last = 0
	s.mu.Unlock()
	return abi.OK
}

func (s *Subsystem) safe() int {
	return s.stop()
}

// systemMode rejects acquisition during firmware update.
func (s *Subsystem) systemMode(mode abi.SystemMode) int {
	if mode == abi.ModeUpdate {
		s.logger.Warn("sample rejects update mode while acquiring")
		return abi.Err
	}
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
	return abi.OK
}

func (s *Subsystem) query(code uint32, _, out any) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch code {
	case QuerySampleCount:
		if p, ok := out.(*uint64); ok {
			*p = s.count
			return abi.OK
		}
	case QueryLastValue:
		if p, ok := out.(*float64); ok {
			*p = s.last
			return abi.OK
		}
	}
	return abi.InvalidArg
}

// snapshot returns the current counters for the service layer.
func (s *Subsystem) snapshot() (count uint64, last float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count, s.last
}

func (s *Subsystem) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count = 0
	s.last = 0
}
