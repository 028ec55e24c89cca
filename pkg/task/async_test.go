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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/substrate/pkg/result"
)

func TestAsyncTaskExecute(t *testing.T) {
	unit := NewAsyncTask(testLogger())
	require.NoError(t, unit.Init())

	done := make(chan error, 1)
	require.NoError(t, unit.Execute(Descriptor{
		Name:       "work",
		Func:       func() error { return nil },
		OnComplete: func(err error) { done <- err },
	}))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("completion callback never fired")
	}
	require.NoError(t, unit.Wait(time.Second))
	assert.True(t, unit.Idle())
}

func TestAsyncTaskBusy(t *testing.T) {
	unit := NewAsyncTask(testLogger())
	require.NoError(t, unit.Init())

	release := make(chan struct{})
	require.NoError(t, unit.Execute(Descriptor{
		Name: "blocker",
		Func: func() error { <-release; return nil },
	}))

	err := unit.Execute(Descriptor{Name: "second", Func: func() error { return nil }})
	assert.Equal(t, result.ResourceBusy, result.CodeOf(err))

	close(release)
	require.NoError(t, unit.Wait(time.Second))
}

func TestAsyncTaskAffinityNotSupported(t *testing.T) {
	unit := NewAsyncTask(testLogger())
	err := unit.SetAffinity([]int{0, 1})
	assert.Equal(t, result.NotSupported, result.CodeOf(err))
	assert.Empty(t, unit.Affinity())
}

func TestAsyncTaskWaitTimeout(t *testing.T) {
	unit := NewAsyncTask(testLogger())
	require.NoError(t, unit.Init())

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

func TestAsyncTaskStopIsCooperative(t *testing.T) {
	// Stop only refuses future submissions; the in-flight task completes
	// and still delivers its result.
	unit := NewAsyncTask(testLogger())
	require.NoError(t, unit.Init())

	release := make(chan struct{})
	completed := make(chan error, 1)
	require.NoError(t, unit.Execute(Descriptor{
		Name:       "inflight",
		Func:       func() error { <-release; return nil },
		OnComplete: func(err error) { completed <- err },
	}))

	require.NoError(t, unit.Stop())
	err := unit.Execute(Descriptor{Name: "late", Func: func() error { return nil }})
	assert.Equal(t, result.InvalidState, result.CodeOf(err))

	close(release)
	select {
	case err := <-completed:
		assert.NoError(t, err, "in-flight async must run to completion after stop")
	case <-time.After(time.Second):
		t.Fatal("in-flight task never completed")
	}
}

func TestAsyncTaskRejectsNilFunc(t *testing.T) {
	unit := NewAsyncTask(testLogger())
	require.NoError(t, unit.Init())
	err := unit.Execute(Descriptor{Name: "empty"})
	assert.Equal(t, result.InvalidArgument, result.CodeOf(err))
}

func TestSyncTaskExecutesInline(t *testing.T) {
	unit := NewSyncTask(testLogger())
	require.NoError(t, unit.Init())

	ran := false
	require.NoError(t, unit.Execute(Descriptor{
		Name: "inline",
		Func: func() error { ran = true; return nil },
	}))
	assert.True(t, ran, "sync execution returns only after the callable ran")
	assert.NoError(t, unit.Err())

	err := unit.SetAffinity([]int{0})
	assert.Equal(t, result.NotSupported, result.CodeOf(err))
}

func TestBuilderRequiresFunc(t *testing.T) {
	_, err := NewBuilder().Name("incomplete").Build()
	assert.Equal(t, result.InvalidArgument, result.CodeOf(err))

	desc, err := NewBuilder().
		Name("full").
		Func(func() error { return nil }).
		Dispatch(DispatchThrottled).
		Throttle(50 * time.Millisecond).
		Affinity(0, 1).
		Policy(1).
		Priority(5).
		Build()
	require.NoError(t, err)
	assert.Equal(t, "full", desc.Name)
	assert.Equal(t, []int{0, 1}, desc.Affinity)
}

func TestDescriptorValidate(t *testing.T) {
	noop := func() error { return nil }
	tests := []struct {
		name string
		desc Descriptor
		want result.Code
	}{
		{name: "nil func", desc: Descriptor{Name: "x"}, want: result.InvalidArgument},
		{name: "negative affinity", desc: Descriptor{Name: "x", Func: noop, Affinity: []int{-2}}, want: result.InvalidArgument},
		{name: "throttled without window", desc: Descriptor{Name: "x", Func: noop, Dispatch: DispatchThrottled}, want: result.InvalidArgument},
		{name: "valid", desc: Descriptor{Name: "x", Func: noop}, want: result.OK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, result.CodeOf(tt.desc.Validate()))
		})
	}
}
