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

package sample

import (
	"log/slog"
	"sync"

	"github.com/tombee/substrate/internal/command"
	"github.com/tombee/substrate/internal/composition"
	"github.com/tombee/substrate/pkg/abi"
	"github.com/tombee/substrate/pkg/ioc"
)

// Name is the subsystem's manifest name.
const Name = "sample"

func init() {
	composition.RegisterStatic(Name, Descriptor)
}

// handle asserts the opaque instance back to the subsystem.
func handle(h abi.Handle) *Subsystem {
	s, ok := h.(*Subsystem)
	if !ok {
		return nil
	}
	return s
}

func wrap(op func(*Subsystem) int) func(abi.Handle) int {
	return func(h abi.Handle) int {
		s := handle(h)
		if s == nil {
			return abi.InvalidArg
		}
		return op(s)
	}
}

var vtable = abi.VTable{
	ABIVersion: abi.Version,
	Init:       wrap((*Subsystem).init),
	SelfTest:   wrap((*Subsystem).selfTest),
	Configure:  wrap((*Subsystem).configure),
	Ready:      wrap((*Subsystem).ready),
	Start:      wrap((*Subsystem).start),
	Pause:      wrap((*Subsystem).pause),
	Stop:       wrap((*Subsystem).stop),
	Recovery:   wrap((*Subsystem).recovery),
	Safe:       wrap((*Subsystem).safe),
	SystemMode: func(h abi.Handle, mode abi.SystemMode) int {
		s := handle(h)
		if s == nil {
			return abi.InvalidArg
		}
		return s.systemMode(mode)
	},
	Query: func(h abi.Handle, code uint32, in, out any) int {
		s := handle(h)
		if s == nil {
			return abi.InvalidArg
		}
		return s.query(code, in, out)
	},
}

// current is the live instance the registry entry points bind services to.
// The ABI guarantees registry runs after create and never after destroy.
var (
	currentMu sync.Mutex
	current   *Subsystem
)

var descriptor = abi.Descriptor{
	ABIVersion: abi.Version,
	Name:       Name,
	Version:    "1.0.0",
	VTable:     &vtable,
	Create: func(*abi.Params) (abi.Handle, int) {
		s, err := newSubsystem(slog.Default())
		if err != nil {
			return nil, abi.Err
		}
		currentMu.Lock()
		current = s
		currentMu.Unlock()
		return s, abi.OK
	},
	Destroy: func(h abi.Handle) int {
		s := handle(h)
		if s == nil {
			return abi.InvalidArg
		}
		currentMu.Lock()
		if current == s {
			current = nil
		}
		currentMu.Unlock()
		return s.stop()
	},
	Registry:       registry,
	RegistryModule: registryModule,
}

// Descriptor is the subsystem's exported descriptor function.
func Descriptor() *abi.Descriptor {
	return &descriptor
}

// registry publishes the sample service into the shared service container.
func registry(*abi.Params) int {
	currentMu.Lock()
	sub := current
	currentMu.Unlock()
	if sub == nil {
		return abi.Err
	}
	ioc.RegisterInstance[command.Service](ioc.Services(), Name, NewService(sub, slog.Default()))
	return abi.OK
}

// registryModule publishes device accessors into the device container.
func registryModule(*abi.Params) int {
	currentMu.Lock()
	sub := current
	currentMu.Unlock()
	if sub == nil {
		return abi.Err
	}
	ioc.RegisterInstance(ioc.Devices(), Name, sub)
	return abi.OK
}
