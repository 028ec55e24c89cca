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

// Package composition loads subsystems through the versioned ABI, wraps
// each in a controller, and fans lifecycle operations out across all of
// them in manifest priority order.
package composition

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"plugin"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/tombee/substrate/pkg/abi"
	"github.com/tombee/substrate/pkg/result"
)

// Loaded is one successfully loaded subsystem: its descriptor and live
// instance. The descriptor stays valid until Unload.
type Loaded struct {
	Descriptor *abi.Descriptor
	Instance   abi.Handle
	Params     abi.Params
}

// Loader resolves a subsystem name to a loaded instance.
type Loader interface {
	Load(name string, params *abi.Params) (*Loaded, error)
}

// instantiate runs the common post-lookup path: ABI verification and
// instance creation.
func instantiate(name string, desc *abi.Descriptor, params *abi.Params) (*Loaded, error) {
	if desc == nil || desc.VTable == nil {
		return nil, result.Errorf(result.ProtocolError, "subsystem %q: invalid descriptor", name)
	}
	if desc.ABIVersion != abi.Version {
		return nil, result.Errorf(result.ProtocolError,
			"subsystem %q: ABI version %d, host expects %d", name, desc.ABIVersion, abi.Version)
	}
	if desc.Create == nil {
		return nil, result.Errorf(result.ProtocolError, "subsystem %q: no create entry point", name)
	}
	instance, rc := desc.Create(params)
	if rc != abi.OK {
		return nil, result.Errorf(result.InternalError, "subsystem %q: create returned %d", name, rc)
	}
	return &Loaded{Descriptor: desc, Instance: instance, Params: *params}, nil
}

// PluginLoader loads subsystem shared objects (lib<name>.so) from the
// configured library directories via the Go plugin mechanism. A plugin
// cannot be unmapped once opened; a rejected descriptor contributes no
// controller and its instance is never created.
type PluginLoader struct {
	dirs   []string
	logger *slog.Logger
}

// NewPluginLoader creates a loader searching the given directories.
func NewPluginLoader(dirs []string, logger *slog.Logger) *PluginLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &PluginLoader{
		dirs:   dirs,
		logger: logger.With(slog.String("component", "subsystem_loader")),
	}
}

// Load opens lib<name>.so, resolves the descriptor symbol, verifies the
// ABI, and creates the instance.
func (l *PluginLoader) Load(name string, params *abi.Params) (*Loaded, error) {
	path, err := l.locate(name)
	if err != nil {
		return nil, err
	}

	p, err := plugin.Open(path)
	if err != nil {
		return nil, result.Wrap(result.InternalError, err, fmt.Sprintf("open %s", path))
	}
	sym, err := p.Lookup(abi.DescriptorSymbol)
	if err != nil {
		return nil, result.Errorf(result.ProtocolError, "subsystem %q: missing symbol %s", name, abi.DescriptorSymbol)
	}
	fn, ok := sym.(func() *abi.Descriptor)
	if !ok {
		return nil, result.Errorf(result.ProtocolError, "subsystem %q: %s has wrong signature", name, abi.DescriptorSymbol)
	}
	loaded, err := instantiate(name, fn(), params)
	if err != nil {
		return nil, err
	}
	l.logger.Info("subsystem loaded",
		slog.String("subsystem", name),
		slog.String("path", path),
		slog.String("version", loaded.Descriptor.Version))
	return loaded, nil
}

// locate searches the library dirs for lib<name>.so, recursively.
func (l *PluginLoader) locate(name string) (string, error) {
	lib := fmt.Sprintf("lib%s.so", name)
	for _, dir := range l.dirs {
		for _, pattern := range []string{filepath.Join(dir, lib), filepath.Join(dir, "**", lib)} {
			matches, err := doublestar.FilepathGlob(pattern)
			if err != nil {
				l.logger.Warn("library search failed", slog.String("pattern", pattern), slog.Any("error", err))
				continue
			}
			if len(matches) > 0 {
				return matches[0], nil
			}
		}
	}
	return "", result.Errorf(result.NotFound, "library %s not found in %v", lib, l.dirs)
}

// staticDescriptors is the in-process registry serving built-in subsystems
// ahead of the filesystem: subsystems compiled into the host register their
// descriptor functions at init time.
var (
	staticMu          sync.RWMutex
	staticDescriptors = make(map[string]abi.DescriptorFunc)
)

// RegisterStatic publishes a built-in subsystem descriptor under its name.
// The first registration for a name wins.
func RegisterStatic(name string, fn abi.DescriptorFunc) {
	staticMu.Lock()
	defer staticMu.Unlock()
	if _, dup := staticDescriptors[name]; dup {
		return
	}
	staticDescriptors[name] = fn
}

// StaticLoader serves descriptors from the in-process registry.
type StaticLoader struct{}

// Load resolves a built-in subsystem.
func (StaticLoader) Load(name string, params *abi.Params) (*Loaded, error) {
	staticMu.RLock()
	fn, ok := staticDescriptors[name]
	staticMu.RUnlock()
	if !ok {
		return nil, result.Errorf(result.NotFound, "no built-in subsystem %q", name)
	}
	return instantiate(name, fn(), params)
}

// ChainLoader tries each loader in order, returning the first success. Only
// a NotFound moves on to the next loader; real failures surface
// immediately.
type ChainLoader []Loader

// Load tries the chain.
func (c ChainLoader) Load(name string, params *abi.Params) (*Loaded, error) {
	var lastErr error
	for _, l := range c {
		loaded, err := l.Load(name, params)
		if err == nil {
			return loaded, nil
		}
		if !result.HasCode(err, result.NotFound) {
			return nil, err
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = result.Errorf(result.NotFound, "subsystem %q not found", name)
	}
	return nil, lastErr
}
