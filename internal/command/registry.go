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

package command

import (
	"log/slog"
	"sync"

	"github.com/tombee/substrate/internal/manifest"
)

// Info describes one dispatchable command.
type Info struct {
	// Name is the short command name, e.g. "Sample".
	Name string

	// Service is the owning subsystem's service name in the IoC container.
	Service string

	// AllowedModes gates dispatch by system mode.
	AllowedModes map[string]struct{}

	// Args maps argument names to their declared types.
	Args map[string]ArgType

	// Emit lists the topics the command publishes on completion.
	Emit []string

	Description string
}

// allowed reports whether the command may run in the given mode.
func (i *Info) allowed(mode string) bool {
	_, ok := i.AllowedModes[mode]
	return ok
}

// Registry holds the command table shared by all subsystems. Duplicate
// command names keep the first registration and log a warning.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Info
	logger   *slog.Logger
}

// NewRegistry creates an empty command registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		commands: make(map[string]*Info),
		logger:   logger.With(slog.String("component", "command_registry")),
	}
}

// Register adds commands to the table.
func (r *Registry) Register(infos ...*Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, info := range infos {
		if _, dup := r.commands[info.Name]; dup {
			r.logger.Warn("duplicate command ignored", slog.String("command", info.Name))
			continue
		}
		r.commands[info.Name] = info
	}
}

// RegisterManifest ingests a parsed command manifest, binding every command
// to the manifest's subsystem service. Unknown argument type strings are
// accepted as string arguments and logged as a warning.
func (r *Registry) RegisterManifest(m *manifest.CommandManifest) {
	infos := make([]*Info, 0, len(m.Commands))
	for _, entry := range m.Commands {
		info := &Info{
			Name:         entry.Name,
			Service:      m.Subsystem,
			AllowedModes: make(map[string]struct{}, len(entry.AllowedModes)),
			Args:         make(map[string]ArgType, len(entry.Args)),
			Emit:         entry.Emit,
			Description:  entry.Description,
		}
		for _, mode := range entry.AllowedModes {
			info.AllowedModes[mode] = struct{}{}
		}
		for name, typeStr := range entry.Args {
			t, ok := ParseArgType(typeStr)
			if !ok {
				r.logger.Warn("unknown argument type, treating as string",
					slog.String("command", entry.Name),
					slog.String("arg", name),
					slog.String("type", typeStr))
			}
			info.Args[name] = t
		}
		infos = append(infos, info)
	}
	r.Register(infos...)
}

// Find returns the command info, or nil when unknown.
func (r *Registry) Find(name string) *Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.commands[name]
}

// Names returns all registered command names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.commands))
	for name := range r.commands {
		out = append(out, name)
	}
	return out
}
