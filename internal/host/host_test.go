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

package host

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/substrate/internal/command"
	"github.com/tombee/substrate/internal/composition"
	"github.com/tombee/substrate/pkg/abi"
	"github.com/tombee/substrate/pkg/ioc"
	"github.com/tombee/substrate/pkg/result"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// hostFixture is a minimal in-process subsystem for host tests. Its
// Registry hook registers a command service the dispatcher can reach.
type hostFixture struct {
	mu      sync.Mutex
	calls   []string
	invoked []string
}

func (f *hostFixture) record(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	return abi.OK
}

func (f *hostFixture) Invoke(_ context.Context, cmd string, _ command.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoked = append(f.invoked, cmd)
	return nil
}

func (f *hostFixture) callNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *hostFixture) invokedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.invoked))
	copy(out, f.invoked)
	return out
}

type hostFixtureLoader struct {
	f *hostFixture
}

func (l hostFixtureLoader) Load(name string, params *abi.Params) (*composition.Loaded, error) {
	if name != "bench" {
		return nil, result.Errorf(result.NotFound, "no fixture %q", name)
	}
	f := l.f
	vt := &abi.VTable{
		ABIVersion: abi.Version,
		Init:       func(abi.Handle) int { return f.record("init") },
		SelfTest:   func(abi.Handle) int { return f.record("self_test") },
		Configure:  func(abi.Handle) int { return f.record("configure") },
		Ready:      func(abi.Handle) int { return f.record("ready") },
		Start:      func(abi.Handle) int { return f.record("start") },
		Pause:      func(abi.Handle) int { return f.record("pause") },
		Stop:       func(abi.Handle) int { return f.record("stop") },
		Recovery:   func(abi.Handle) int { return f.record("recovery") },
		Safe:       func(abi.Handle) int { return f.record("safe") },
		SystemMode: func(abi.Handle, abi.SystemMode) int { return f.record("system_mode") },
		Query:      func(abi.Handle, uint32, any, any) int { return f.record("query") },
	}
	desc := &abi.Descriptor{
		ABIVersion: abi.Version,
		Name:       "bench",
		Version:    "0.1.0",
		VTable:     vt,
		Create:     func(*abi.Params) (abi.Handle, int) { return f, abi.OK },
		Destroy:    func(abi.Handle) int { f.record("destroy"); return abi.OK },
		Registry: func(*abi.Params) int {
			ioc.RegisterInstance[command.Service](ioc.Services(), "bench", f)
			return abi.OK
		},
		RegistryModule: func(*abi.Params) int { return abi.OK },
	}
	inst, rc := desc.Create(params)
	if rc != abi.OK {
		return nil, result.New(result.InternalError, "create failed")
	}
	return &composition.Loaded{Descriptor: desc, Instance: inst, Params: *params}, nil
}

func writeTestManifest(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "system_manifest.yaml")
	data := `
system:
  name: bench-host
  mode: normal
subsystems:
  - name: bench
    priority: 1
    auto_start: true
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func newTestHost(t *testing.T) (*Host, *hostFixture) {
	t.Helper()
	dir := t.TempDir()
	f := &hostFixture{}
	h, err := New(Options{
		ManifestPath: writeTestManifest(t, dir),
		ConfigPath:   filepath.Join(dir, "substrate.yaml"),
		Loader:       hostFixtureLoader{f: f},
		Logger:       testLogger(),
	})
	require.NoError(t, err)
	return h, f
}

func TestHostLifecycleAndDispatch(t *testing.T) {
	h, f := newTestHost(t)
	h.Registry().Register(&command.Info{
		Name:         "Sample",
		Service:      "bench",
		AllowedModes: map[string]struct{}{"normal": {}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	// Wait for the full bring-up sequence.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		calls := f.callNames()
		if len(calls) >= 5 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, []string{"init", "self_test", "configure", "ready", "start"}, f.callNames()[:5])

	// A command arriving on the bus reaches the subsystem's service.
	require.NoError(t, h.Bus().PublishCommand("Sample", nil))
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(f.invokedNames()) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, []string{"Sample"}, f.invokedNames())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("host did not shut down")
	}

	calls := f.callNames()
	assert.Contains(t, calls, "stop")
	assert.Contains(t, calls, "destroy")
}

func TestHostSetSystemMode(t *testing.T) {
	h, f := newTestHost(t)

	require.NoError(t, h.SetSystemMode("maintenance"))
	assert.Equal(t, "maintenance", h.Config().Mode())
	assert.Equal(t, int(0), len(f.callNames())) // manager empty before Load

	err := h.SetSystemMode("low_power")
	assert.Equal(t, result.InvalidArgument, result.CodeOf(err))
	assert.Equal(t, "maintenance", h.Config().Mode())
}
