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

	"github.com/tombee/substrate/internal/manifest"
	"github.com/tombee/substrate/pkg/abi"
	"github.com/tombee/substrate/pkg/result"
)

// Controller owns one loaded subsystem and exposes its lifecycle by thin
// dispatch into the vtable. Controllers never retry; raw handles never
// escape.
type Controller struct {
	name   string
	info   manifest.SubsystemInfo
	sub    *Loaded
	logger *slog.Logger
}

// NewController wraps a loaded subsystem.
func NewController(info manifest.SubsystemInfo, sub *Loaded, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		name:   info.Name,
		info:   info,
		sub:    sub,
		logger: logger.With(slog.String("subsystem", info.Name)),
	}
}

// Name returns the subsystem's stable name.
func (c *Controller) Name() string { return c.name }

// Info returns the subsystem's manifest entry.
func (c *Controller) Info() manifest.SubsystemInfo { return c.info }

// Version returns the subsystem's reported version string.
func (c *Controller) Version() string { return c.sub.Descriptor.Version }

// call dispatches one vtable operation, mapping a missing entry or a
// non-OK status to a typed error.
func (c *Controller) call(op string, fn func(abi.Handle) int) error {
	if fn == nil {
		return result.Errorf(result.NotSupported, "subsystem %q: %s not implemented", c.name, op)
	}
	if rc := fn(c.sub.Instance); rc != abi.OK {
		return result.Errorf(result.InternalError, "subsystem %q: %s returned %d", c.name, op, rc)
	}
	return nil
}

// Initialize runs the subsystem's init operation.
func (c *Controller) Initialize() error { return c.call("init", c.sub.Descriptor.VTable.Init) }

// SelfTest runs the subsystem's self test.
func (c *Controller) SelfTest() error { return c.call("self_test", c.sub.Descriptor.VTable.SelfTest) }

// Configure applies the subsystem's configuration.
func (c *Controller) Configure() error { return c.call("configure", c.sub.Descriptor.VTable.Configure) }

// Ready moves the subsystem to the ready state.
func (c *Controller) Ready() error { return c.call("ready", c.sub.Descriptor.VTable.Ready) }

// Start starts the subsystem.
func (c *Controller) Start() error { return c.call("start", c.sub.Descriptor.VTable.Start) }

// Pause pauses the subsystem.
func (c *Controller) Pause() error { return c.call("pause", c.sub.Descriptor.VTable.Pause) }

// Stop stops the subsystem.
func (c *Controller) Stop() error { return c.call("stop", c.sub.Descriptor.VTable.Stop) }

// Recovery runs the subsystem's recovery path.
func (c *Controller) Recovery() error { return c.call("recovery", c.sub.Descriptor.VTable.Recovery) }

// Safe moves the subsystem to its safe state.
func (c *Controller) Safe() error { return c.call("safe", c.sub.Descriptor.VTable.Safe) }

// SystemMode broadcasts a system mode change to the subsystem. A subsystem
// may reject the mode by returning a non-OK status.
func (c *Controller) SystemMode(mode abi.SystemMode) error {
	fn := c.sub.Descriptor.VTable.SystemMode
	if fn == nil {
		return result.Errorf(result.NotSupported, "subsystem %q: system_mode not implemented", c.name)
	}
	if rc := fn(c.sub.Instance, mode); rc != abi.OK {
		return result.Errorf(result.InternalError, "subsystem %q rejected mode %s (%d)", c.name, mode, rc)
	}
	return nil
}

// Query passes an opaque query through to the subsystem.
func (c *Controller) Query(code uint32, in, out any) error {
	fn := c.sub.Descriptor.VTable.Query
	if fn == nil {
		return result.Errorf(result.NotSupported, "subsystem %q: query not implemented", c.name)
	}
	if rc := fn(c.sub.Instance, code, in, out); rc != abi.OK {
		return result.Errorf(result.InternalError, "subsystem %q: query %d returned %d", c.name, code, rc)
	}
	return nil
}

// Registry runs the subsystem's service-container registration hook.
func (c *Controller) Registry() error {
	fn := c.sub.Descriptor.Registry
	if fn == nil {
		return nil
	}
	if rc := fn(&c.sub.Params); rc != abi.OK {
		return result.Errorf(result.InternalError, "subsystem %q: registry returned %d", c.name, rc)
	}
	return nil
}

// RegistryModule runs the subsystem's device-container registration hook.
func (c *Controller) RegistryModule() error {
	fn := c.sub.Descriptor.RegistryModule
	if fn == nil {
		return nil
	}
	if rc := fn(&c.sub.Params); rc != abi.OK {
		return result.Errorf(result.InternalError, "subsystem %q: registry_module returned %d", c.name, rc)
	}
	return nil
}

// Unload destroys the instance and drops the library references. Destroy is
// always called first; a non-OK destroy is logged but does not prevent the
// unload.
func (c *Controller) Unload() {
	if c.sub == nil {
		return
	}
	if destroy := c.sub.Descriptor.Destroy; destroy != nil && c.sub.Instance != nil {
		if rc := destroy(c.sub.Instance); rc != abi.OK {
			c.logger.Warn("subsystem destroy returned non-zero", slog.Int("status", rc))
		}
	}
	c.sub.Instance = nil
	c.sub.Descriptor = nil
	c.sub = nil
}
