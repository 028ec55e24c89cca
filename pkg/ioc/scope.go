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

import "sync/atomic"

var scopeIDs atomic.Int64

// Scope is an affine lifetime token. Instances resolved through its id stay
// alive until Close, which sweeps them out of every scoped factory. The
// intended pattern is one Scope per dispatch:
//
//	scope := ioc.NewScope(container)
//	defer scope.Close()
//	svc, err := ioc.ResolveScoped[Service](container, "", scope.ID())
//
// A Scope must not outlive its container and must not be copied; its
// identity is the id it was born with.
type Scope struct {
	id        ScopeID
	container *Container
	closed    atomic.Bool
}

// NewScope creates a scope with a fresh non-zero id.
func NewScope(c *Container) *Scope {
	return &Scope{id: ScopeID(scopeIDs.Add(1)), container: c}
}

// ID returns the scope's identity.
func (s *Scope) ID() ScopeID { return s.id }

// Close expires every scoped instance keyed by this scope's id. Idempotent
// and defer-friendly; Close is guaranteed to run on all exit paths when
// deferred at scope creation.
func (s *Scope) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.container.ExpireScope(s.id)
	}
}
