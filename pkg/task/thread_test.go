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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/substrate/pkg/result"
)

func TestThreadTaskExecute(t *testing.T) {
	unit := NewThreadTask(nil)
	require.NoError(t, unit.Init())
	defer func() {
		unit.Stop()
		unit.Join()
	}()

	done := make(chan error, 1)
	err := unit.Execute(Descriptor{
		Name: "hello",
		Func: func() error { return nil },
		OnComplete: func(err error) {
			done <- err
		},
	})
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("completion callback never fired")
	}
	require.NoError(t, unit.Wait(time.Second))
	assert.True(t, unit.Idle())
}

func TestThreadTaskRejectsNilFunc(t *testing.T) {
	unit := NewThreadTask(nil)
	require.NoError(t, unit.Init())
	defer func() {
		unit.Stop()
		unit.Join()
	}()

	err := unit.Execute(Descriptor{Name: "empty"})
	assert.Equal(t, result.InvalidArgument, result.CodeOf(err))
}

func TestThreadTaskBusy(t *testing.T) {
	unit := NewThreadTask(nil)
	require.NoError(t, unit.Init())
	defer func() {
		unit.Stop()
		unit.Join()
	}()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, unit.Execute(Descriptor{
		Name: "blocker",
		Func: func() error {
			close(started)
			<-release
			return nil
		},
	}))
	<-started

	err := unit.Execute(Descriptor{Name: "second", Func: func() error { return nil }})
	assert.Equal(t, result.ResourceBusy, result.CodeOf(err))

	close(release)
	require.NoError(t, unit.Wait(time.Second))
}

func TestThreadTaskWaitTimeout(t *testing.T) {
	unit := NewThreadTask(nil)
	require.NoError(t, unit.Init())
	defer func() {
		unit.Stop()
		unit.Join()
	}()

	release := make(chan struct{})
	require.NoError(t, unit.Execute(Descriptor{
		Name: "slow",
		Func: func() error { <-release; return nil },
	}))

	err := unit.Wait(20 * time.Millisecond)
	assert.Equal(t, result.Timeout, result.CodeOf(err))

	close(release)
	require.NoError(t, unit.Wait(time.Second))
}

func TestThreadTaskStopIdempotent(t *testing.T) {
	unit := NewThreadTask(nil)
	require.NoError(t, unit.Init())

	for i := 0; i < 3; i++ {
		require.NoError(t, unit.Stop())
	}
	require.NoError(t, unit.Join())
	assert.False(t, unit.Running())

	err := unit.Execute(Descriptor{Name: "late", Func: func() error { return nil }})
	assert.Equal(t, result.InvalidState, result.CodeOf(err))
}

func TestThreadTaskRecordsResult(t *testing.T) {
	unit := NewThreadTask(nil)
	require.NoError(t, unit.Init())
	defer func() {
		unit.Stop()
		unit.Join()
	}()

	boom := errors.New("boom")
	require.NoError(t, unit.Execute(Descriptor{Name: "fails", Func: func() error { return boom }}))
	require.NoError(t, unit.Wait(time.Second))
	assert.ErrorIs(t, unit.Err(), boom)
}

func TestThreadTaskPanicBecomesInternalError(t *testing.T) {
	unit := NewThreadTask(nil)
	require.NoError(t, unit.Init())
	defer func() {
		unit.Stop()
		unit.Join()
	}()

	var got error
	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, unit.Execute(Descriptor{
		Name: "panics",
		Func: func() error { panic("kaboom") },
		OnComplete: func(err error) {
			got = err
			wg.Done()
		},
	}))
	wg.Wait()
	assert.Equal(t, result.InternalError, result.CodeOf(got))
	assert.True(t, unit.Running(), "thread survives a panicking task")
}

// fakeAttrOps fails each attribute call until its corresponding allow flag
// flips, capturing the dirty-retry protocol without real privileges.
type fakeAttrOps struct {
	mu          sync.Mutex
	allowSched  bool
	schedCalls  int
	appliedPol  int
	appliedPrio int
}

func (f *fakeAttrOps) setName(int, string) error { return nil }

func (f *fakeAttrOps) setAffinity(int, []int) error { return nil }

func (f *fakeAttrOps) setScheduler(_ int, policy, priority int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schedCalls++
	if !f.allowSched {
		return result.New(result.PermissionDenied, "sched_setattr: operation not permitted")
	}
	f.appliedPol, f.appliedPrio = policy, priority
	return nil
}

func TestThreadAttrsRetainDirtyOnFailure(t *testing.T) {
	ops := &fakeAttrOps{}
	attrs := newThreadAttrs()
	attrs.ops = ops

	desc := Descriptor{Name: "rt", Policy: 1, Priority: 10}
	attrs.markDesired(&desc)
	attrs.applyIfDirty(42, testLogger())

	require.Equal(t, 1, ops.schedCalls)
	require.True(t, attrs.dirtySched, "dirty flag must be retained after a failed syscall")

	// Privilege arrives: the next opportunity self-heals.
	ops.mu.Lock()
	ops.allowSched = true
	ops.mu.Unlock()
	attrs.applyIfDirty(42, testLogger())

	assert.False(t, attrs.dirtySched)
	assert.Equal(t, 1, ops.appliedPol)
	assert.Equal(t, 10, ops.appliedPrio)

	// Unchanged attributes do not re-issue the syscall.
	attrs.markDesired(&desc)
	attrs.applyIfDirty(42, testLogger())
	assert.Equal(t, 2, ops.schedCalls)
}
