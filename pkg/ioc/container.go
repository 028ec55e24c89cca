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
	"log/slog"
	"reflect"
	"sync"

	"github.com/tombee/substrate/pkg/result"
)

// Component is a registry entry: an interface type bound to an
// implementation through a lifetime-owning factory. Uniqueness key is
// (interface type, name).
type Component struct {
	iface    reflect.Type
	impl     reflect.Type
	name     string
	lifetime Lifetime
	factory  factory
}

// Name returns the component's registration name.
func (c *Component) Name() string { return c.name }

// InterfaceType returns the registered interface type.
func (c *Component) InterfaceType() reflect.Type { return c.iface }

// ImplType returns the implementation type.
func (c *Component) ImplType() reflect.Type { return c.impl }

// Lifetime returns the factory discipline.
func (c *Component) Lifetime() Lifetime { return c.lifetime }

// createService asks the factory for the instance keyed by the scope id.
func (c *Component) createService(id ScopeID) any { return c.factory.create(id) }

// destroyInstance drops the factory's instance for the scope id.
func (c *Component) destroyInstance(id ScopeID) { c.factory.destroyInstance(id) }

// Container is a type-indexed component registry. Two instances exist in
// practice in the host: one for services, one for device access. All
// collection operations serialize on one mutex.
type Container struct {
	mu         sync.Mutex
	components map[reflect.Type]map[string]*Component
	logger     *slog.Logger
}

// NewContainer creates an empty container.
func NewContainer(logger *slog.Logger) *Container {
	if logger == nil {
		logger = slog.Default()
	}
	return &Container{
		components: make(map[reflect.Type]map[string]*Component),
		logger:     logger.With(slog.String("component", "ioc")),
	}
}

// register adds a component. A duplicate (interface, name) keeps the first
// registration authoritative: the duplicate is ignored and logged at warn,
// and the returned error carries DuplicateIgnored, which counts as success.
func (c *Container) register(comp *Component) error {
	c.mu.Lock()
	byName, ok := c.components[comp.iface]
	if !ok {
		byName = make(map[string]*Component)
		c.components[comp.iface] = byName
	}
	if _, exists := byName[comp.name]; exists {
		c.mu.Unlock()
		c.logger.Warn("duplicate component registration ignored",
			slog.String("interface", comp.iface.String()),
			slog.String("name", comp.name))
		return result.Errorf(result.DuplicateIgnored, "component %s/%s already registered",
			comp.iface, comp.name)
	}
	byName[comp.name] = comp
	c.mu.Unlock()
	return nil
}

// lookup finds the component for (iface, name).
func (c *Container) lookup(iface reflect.Type, name string) (*Component, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	comp, ok := c.components[iface][name]
	return comp, ok
}

// Deregister removes a component registration and tears down its factory.
func (c *Container) Deregister(iface reflect.Type, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if comp, ok := c.components[iface][name]; ok {
		comp.factory.teardown()
		delete(c.components[iface], name)
		if len(c.components[iface]) == 0 {
			delete(c.components, iface)
		}
	}
}

// ExpireScope asks every component's factory to drop instances keyed by the
// given scope id. Id zero is reserved and expires nothing.
func (c *Container) ExpireScope(id ScopeID) {
	if id == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, byName := range c.components {
		for _, comp := range byName {
			comp.destroyInstance(id)
		}
	}
}

// Teardown drops every component and everything the factories hold.
// Scopes must not outlive this call.
func (c *Container) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, byName := range c.components {
		for _, comp := range byName {
			comp.factory.teardown()
		}
	}
	c.components = make(map[reflect.Type]map[string]*Component)
}

// Components returns a snapshot of all registrations.
func (c *Container) Components() []*Component {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*Component
	for _, byName := range c.components {
		for _, comp := range byName {
			out = append(out, comp)
		}
	}
	return out
}

// typeOf returns the stable type identity for I. The reflect.Type is used
// only as a map key; no reflection-driven construction happens anywhere.
func typeOf[I any]() reflect.Type {
	return reflect.TypeOf((*I)(nil)).Elem()
}

// DefaultName returns the registration name used when none is given.
func DefaultName[I any]() string {
	return typeOf[I]().String()
}

// RegisterSingleton registers I backed by an eagerly-constructed T.
func RegisterSingleton[I any, T any](c *Container, name string, ctor func() T) error {
	inst := ctor()
	return registerChecked[I](c, name, Singleton, typeOf[T](), &singletonFactory{instance: inst})
}

// RegisterSingletonLazy registers I backed by a T constructed on first
// resolve.
func RegisterSingletonLazy[I any, T any](c *Container, name string, ctor func() T) error {
	return registerChecked[I](c, name, SingletonLazy, typeOf[T](),
		&lazyFactory{ctor: func() any { return ctor() }})
}

// RegisterScoped registers I backed by one T per scope.
func RegisterScoped[I any, T any](c *Container, name string, ctor func() T) error {
	return registerChecked[I](c, name, Scoped, typeOf[T](),
		newScopedFactory(func() any { return ctor() }))
}

// RegisterTransient registers I backed by a fresh T per resolve.
func RegisterTransient[I any, T any](c *Container, name string, ctor func() T) error {
	return registerChecked[I](c, name, Transient, typeOf[T](),
		&transientFactory{ctor: func() any { return ctor() }})
}

// RegisterInstance registers a pre-built instance of I as a singleton.
func RegisterInstance[I any](c *Container, name string, instance I) error {
	return registerChecked[I](c, name, Singleton, reflect.TypeOf(instance),
		&singletonFactory{instance: instance})
}

func registerChecked[I any](c *Container, name string, lt Lifetime, impl reflect.Type, f factory) error {
	if name == "" {
		name = DefaultName[I]()
	}
	return c.register(&Component{
		iface:    typeOf[I](),
		impl:     impl,
		name:     name,
		lifetime: lt,
		factory:  f,
	})
}

// Resolve returns the instance registered for (I, name) without a scope.
// An empty name resolves the default registration. Unregistered components
// yield the zero value and NotFound.
func Resolve[I any](c *Container, name string) (I, error) {
	return ResolveScoped[I](c, name, 0)
}

// ResolveScoped returns the instance registered for (I, name) under the
// given scope id.
func ResolveScoped[I any](c *Container, name string, scope ScopeID) (I, error) {
	var zero I
	if name == "" {
		name = DefaultName[I]()
	}
	comp, ok := c.lookup(typeOf[I](), name)
	if !ok {
		return zero, result.Errorf(result.NotFound, "component %s/%s not registered",
			typeOf[I](), name)
	}
	inst := comp.createService(scope)
	typed, ok := inst.(I)
	if !ok {
		return zero, result.Errorf(result.InternalError, "component %s/%s yielded %T",
			typeOf[I](), name, inst)
	}
	return typed, nil
}
