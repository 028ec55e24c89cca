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

// Package task provides the execution primitives of the platform: one-shot
// task units (sync, async, thread-backed), the lifecycle Worker that wraps a
// thread unit, and the priority-queued pools that dispatch descriptors over a
// fleet of units.
package task

import (
	"time"

	"github.com/tombee/substrate/pkg/result"
)

// DispatchPolicy controls how a pool admits a descriptor.
type DispatchPolicy int

const (
	// DispatchImmediate admits the descriptor unconditionally (subject to
	// queue capacity).
	DispatchImmediate DispatchPolicy = iota

	// DispatchThrottled admits at most one descriptor per task name within
	// the descriptor's Throttle window.
	DispatchThrottled

	// DispatchDeferred delays admission by the descriptor's Throttle
	// duration.
	DispatchDeferred
)

// ExecutionMode identifies the kind of task unit.
type ExecutionMode int

const (
	ModeSync ExecutionMode = iota
	ModeAsync
	ModeThread
)

// Descriptor describes one unit of work.
type Descriptor struct {
	// Name identifies the task for logging, thread naming, and throttling.
	Name string

	// Func is the work to run. Required on submission.
	Func func() error

	// OnComplete, if set, is invoked with the task's result after Func
	// returns. It is called outside the unit's task lock.
	OnComplete func(error)

	// Dispatch selects the pool admission policy.
	Dispatch DispatchPolicy

	// Throttle is the throttle window (Throttled) or delay (Deferred).
	Throttle time.Duration

	// Affinity is the set of CPU indices the task prefers. Entries must be
	// non-negative.
	Affinity []int

	// Policy is the OS scheduling policy (0 means leave unchanged).
	Policy int

	// Priority is the OS scheduling priority (0 means leave unchanged).
	Priority int
}

// Validate checks the descriptor invariants for submission.
func (d *Descriptor) Validate() error {
	if d.Func == nil {
		return result.New(result.InvalidArgument, "task func is required")
	}
	for _, core := range d.Affinity {
		if core < 0 {
			return result.Errorf(result.InvalidArgument, "negative affinity core %d", core)
		}
	}
	if d.Dispatch == DispatchThrottled && d.Throttle <= 0 {
		return result.New(result.InvalidArgument, "throttled dispatch requires a throttle window")
	}
	return nil
}

// Builder assembles a Descriptor fluently.
type Builder struct {
	desc Descriptor
}

// NewBuilder returns an empty descriptor builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Name sets the task name.
func (b *Builder) Name(name string) *Builder {
	b.desc.Name = name
	return b
}

// Func sets the work callable.
func (b *Builder) Func(fn func() error) *Builder {
	b.desc.Func = fn
	return b
}

// OnComplete sets the completion callback.
func (b *Builder) OnComplete(fn func(error)) *Builder {
	b.desc.OnComplete = fn
	return b
}

// Dispatch sets the admission policy.
func (b *Builder) Dispatch(p DispatchPolicy) *Builder {
	b.desc.Dispatch = p
	return b
}

// Throttle sets the throttle window.
func (b *Builder) Throttle(d time.Duration) *Builder {
	b.desc.Throttle = d
	return b
}

// Affinity sets the preferred CPU cores.
func (b *Builder) Affinity(cores ...int) *Builder {
	b.desc.Affinity = cores
	return b
}

// Policy sets the OS scheduling policy.
func (b *Builder) Policy(p int) *Builder {
	b.desc.Policy = p
	return b
}

// Priority sets the OS scheduling priority.
func (b *Builder) Priority(p int) *Builder {
	b.desc.Priority = p
	return b
}

// Build validates and returns the descriptor.
func (b *Builder) Build() (Descriptor, error) {
	if err := b.desc.Validate(); err != nil {
		return Descriptor{}, err
	}
	return b.desc, nil
}
