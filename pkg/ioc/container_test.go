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

package ioc

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/substrate/pkg/result"
)

type greeter interface {
	Greet() string
}

type englishGreeter struct {
	serial int
}

func (g *englishGreeter) Greet() string { return "hello" }

var greeterSerials atomic.Int32

func newGreeter() *englishGreeter {
	return &englishGreeter{serial: int(greeterSerials.Add(1))}
}

func testContainer() *Container {
	return NewContainer(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSingletonResolvesSameInstance(t *testing.T) {
	c := testContainer()
	require.NoError(t, RegisterSingleton[greeter](c, "", newGreeter))

	a, err := Resolve[greeter](c, "")
	require.NoError(t, err)
	b, err := Resolve[greeter](c, "")
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestSingletonLazyConstructsOnce(t *testing.T) {
	c := testContainer()
	var built atomic.Int32
	require.NoError(t, RegisterSingletonLazy[greeter](c, "lazy", func() *englishGreeter {
		built.Add(1)
		return newGreeter()
	}))
	require.Equal(t, int32(0), built.Load(), "lazy singleton must not build at registration")

	a, err := Resolve[greeter](c, "lazy")
	require.NoError(t, err)
	b, err := Resolve[greeter](c, "lazy")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, int32(1), built.Load())
}

func TestTransientResolvesFreshInstances(t *testing.T) {
	c := testContainer()
	require.NoError(t, RegisterTransient[greeter](c, "", newGreeter))

	a, _ := Resolve[greeter](c, "")
	b, _ := Resolve[greeter](c, "")
	assert.NotSame(t, a, b)
}

func TestScopedLifetime(t *testing.T) {
	// Same scope resolves the same instance; a fresh scope after expiry
	// resolves a new one.
	c := testContainer()
	require.NoError(t, RegisterScoped[greeter](c, "", newGreeter))

	s1 := NewScope(c)
	first, err := ResolveScoped[greeter](c, "", s1.ID())
	require.NoError(t, err)
	again, err := ResolveScoped[greeter](c, "", s1.ID())
	require.NoError(t, err)
	assert.Same(t, first, again)

	s1.Close()

	s2 := NewScope(c)
	defer s2.Close()
	fresh, err := ResolveScoped[greeter](c, "", s2.ID())
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)

	// Resolving the expired id again yields a new instance, not the old one.
	revived, err := ResolveScoped[greeter](c, "", s1.ID())
	require.NoError(t, err)
	assert.NotSame(t, first, revived)
}

func TestScopedZeroKeyIsTransient(t *testing.T) {
	c := testContainer()
	require.NoError(t, RegisterScoped[greeter](c, "", newGreeter))

	a, _ := ResolveScoped[greeter](c, "", 0)
	b, _ := ResolveScoped[greeter](c, "", 0)
	assert.NotSame(t, a, b)
}

func TestScopeCloseIdempotent(t *testing.T) {
	c := testContainer()
	require.NoError(t, RegisterScoped[greeter](c, "", newGreeter))

	s := NewScope(c)
	_, err := ResolveScoped[greeter](c, "", s.ID())
	require.NoError(t, err)
	s.Close()
	s.Close() // second close is a no-op
}

func TestDestroyInstanceOnMissingKeyIsNoop(t *testing.T) {
	f := newScopedFactory(func() any { return newGreeter() })
	f.destroyInstance(12345) // nothing held for this key
	f.destroyInstance(0)     // zero reserved, no-op by contract
}

func TestDuplicateRegistrationKeepsFirst(t *testing.T) {
	c := testContainer()
	require.NoError(t, RegisterSingleton[greeter](c, "g", newGreeter))
	first, _ := Resolve[greeter](c, "g")

	err := RegisterSingleton[greeter](c, "g", newGreeter)
	assert.Equal(t, result.DuplicateIgnored, result.CodeOf(err))
	assert.True(t, result.Succeeded(err), "duplicate registration counts as success")

	still, _ := Resolve[greeter](c, "g")
	assert.Same(t, first, still, "first registration stays authoritative")
}

func TestResolveUnregistered(t *testing.T) {
	c := testContainer()
	got, err := Resolve[greeter](c, "nope")
	assert.Equal(t, result.NotFound, result.CodeOf(err))
	assert.Nil(t, got)
}

func TestRegisterInstance(t *testing.T) {
	c := testContainer()
	inst := newGreeter()
	require.NoError(t, RegisterInstance[greeter](c, "pre", inst))

	got, err := Resolve[greeter](c, "pre")
	require.NoError(t, err)
	assert.Same(t, inst, got)
}

func TestNamedRegistrationsAreIndependent(t *testing.T) {
	c := testContainer()
	require.NoError(t, RegisterSingleton[greeter](c, "a", newGreeter))
	require.NoError(t, RegisterSingleton[greeter](c, "b", newGreeter))

	a, _ := Resolve[greeter](c, "a")
	b, _ := Resolve[greeter](c, "b")
	assert.NotSame(t, a, b)
}

func TestDeregister(t *testing.T) {
	c := testContainer()
	require.NoError(t, RegisterSingleton[greeter](c, "gone", newGreeter))
	c.Deregister(typeOf[greeter](), "gone")

	_, err := Resolve[greeter](c, "gone")
	assert.Equal(t, result.NotFound, result.CodeOf(err))
}

func TestConcurrentResolve(t *testing.T) {
	c := testContainer()
	require.NoError(t, RegisterScoped[greeter](c, "", newGreeter))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := NewScope(c)
			defer s.Close()
			for j := 0; j < 50; j++ {
				if _, err := ResolveScoped[greeter](c, "", s.ID()); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
