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

// Package manifest loads the declarative system manifest enumerating which
// subsystems to load, and the per-subsystem command manifests consumed by
// the command registry.
package manifest

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// HostInfo describes one runnable host entry.
type HostInfo struct {
	// Entry is the executable entry path (e.g. hosts/gui_qt/dashboard).
	Entry string `yaml:"entry"`
}

// SubsystemInfo describes one subsystem to load.
type SubsystemInfo struct {
	Name        string `yaml:"name"`
	Group       string `yaml:"group,omitempty"`
	Description string `yaml:"description,omitempty"`

	// Priority orders loading and lifecycle fan-out; higher first.
	Priority int `yaml:"priority"`

	// Config is the subsystem's own configuration path.
	Config string `yaml:"config,omitempty"`

	AutoStart    bool   `yaml:"auto_start"`
	AllowVersion string `yaml:"allow_version,omitempty"`

	// Affinity lists the CPU cores the subsystem's workers prefer.
	Affinity []int `yaml:"affinity,omitempty"`

	// Restart policy: never, on_failure, always.
	RestartPolicy  string `yaml:"restart_policy,omitempty"`
	RestartDelayMS int    `yaml:"restart_delay_ms,omitempty"`
	MaxRetries     int    `yaml:"max_retries,omitempty"`

	// Optional subsystems may fail to load without aborting the manifest.
	Optional bool `yaml:"optional"`

	// DeniedModes lists system modes in which the subsystem must not start.
	DeniedModes []string `yaml:"denied_modes,omitempty"`

	DependsOn []string `yaml:"depends_on,omitempty"`
}

// SystemInfo holds system-level identity and the boot mode.
type SystemInfo struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Mode        string `yaml:"mode"`
}

// SystemManifest is the full manifest document.
type SystemManifest struct {
	Platforms       []string            `yaml:"platforms,omitempty"`
	Modes           []string            `yaml:"modes,omitempty"`
	RestartPolicies []string            `yaml:"restart_policys,omitempty"`
	System          SystemInfo          `yaml:"system"`
	Hosts           map[string]HostInfo `yaml:"hosts,omitempty"`
	Subsystems      []SubsystemInfo     `yaml:"subsystems"`
}

// Load reads and parses a system manifest. Subsystems come back ordered by
// descending priority; ties keep manifest order.
func Load(path string) (*SystemManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(data)
}

// Parse parses manifest bytes and applies the priority ordering.
func Parse(data []byte) (*SystemManifest, error) {
	var m SystemManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	sort.SliceStable(m.Subsystems, func(i, j int) bool {
		return m.Subsystems[i].Priority > m.Subsystems[j].Priority
	})
	return &m, nil
}

// Validate checks structural requirements.
func (m *SystemManifest) Validate() error {
	seen := make(map[string]struct{}, len(m.Subsystems))
	for i := range m.Subsystems {
		s := &m.Subsystems[i]
		if s.Name == "" {
			return fmt.Errorf("manifest: subsystem %d has no name", i)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("manifest: duplicate subsystem %q", s.Name)
		}
		seen[s.Name] = struct{}{}
		for _, core := range s.Affinity {
			if core < 0 {
				return fmt.Errorf("manifest: subsystem %q has negative affinity core", s.Name)
			}
		}
	}
	for _, s := range m.Subsystems {
		for _, dep := range s.DependsOn {
			if _, ok := seen[dep]; !ok {
				return fmt.Errorf("manifest: subsystem %q depends on unknown %q", s.Name, dep)
			}
		}
	}
	return nil
}

// Subsystem returns the entry with the given name.
func (m *SystemManifest) Subsystem(name string) (*SubsystemInfo, bool) {
	for i := range m.Subsystems {
		if m.Subsystems[i].Name == name {
			return &m.Subsystems[i], true
		}
	}
	return nil, false
}
