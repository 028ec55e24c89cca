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
	"time"
)

// Unit is a single execution primitive. The three implementations share the
// capability set; operations that a variant cannot support return
// result.NotSupported.
type Unit interface {
	// Init prepares the unit for execution. For the thread variant this
	// starts the owned OS thread.
	Init() error

	// Execute submits a descriptor. Returns result.ResourceBusy if the unit
	// already holds a task, result.InvalidArgument if the callable is nil.
	Execute(desc Descriptor) error

	// Stop requests a cooperative stop. Idempotent. Running callables are
	// not interrupted; only future submissions are refused.
	Stop() error

	// Wait blocks until the current task completes or the timeout elapses
	// (result.Timeout). A negative timeout waits indefinitely.
	Wait(timeout time.Duration) error

	// Join waits for the owned execution context to exit.
	Join() error

	// Detach releases the owned execution context without waiting.
	Detach() error

	// Stopped reports whether a stop has been requested.
	Stopped() bool

	// Running reports whether the execution context is alive.
	Running() bool

	// Idle reports whether the unit can accept work right now.
	Idle() bool

	// SetAffinity binds the unit to the given CPU cores. Not supported by
	// the sync and async variants.
	SetAffinity(cores []int) error

	// Affinity returns the last successfully applied affinity.
	Affinity() []int

	// ID returns the unit's stable identifier.
	ID() uint64

	// Err returns the result of the most recent task.
	Err() error

	// Mode identifies the unit variant.
	Mode() ExecutionMode
}

// The three variants realize one capability set.
var (
	_ Unit = (*SyncTask)(nil)
	_ Unit = (*AsyncTask)(nil)
	_ Unit = (*ThreadTask)(nil)
)

var unitIDs atomic.Uint64

// nextUnitID hands out process-unique unit identifiers starting at 1.
func nextUnitID() uint64 {
	return unitIDs.Add(1)
}
