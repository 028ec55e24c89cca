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

package manifest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CommandEntry is one command a subsystem's service exposes.
type CommandEntry struct {
	Name         string            `yaml:"name"`
	AllowedModes []string          `yaml:"allowed_modes"`
	Args         map[string]string `yaml:"args,omitempty"`
	Emit         []string          `yaml:"emit,omitempty"`
	Description  string            `yaml:"description,omitempty"`
}

// CommandManifest declares the commands of one subsystem.
type CommandManifest struct {
	Subsystem string         `yaml:"subsystem"`
	Commands  []CommandEntry `yaml:"commands"`
}

// LoadCommands reads and parses a command manifest.
func LoadCommands(path string) (*CommandManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read command manifest: %w", err)
	}
	return ParseCommands(data)
}

// ParseCommands parses command manifest bytes.
func ParseCommands(data []byte) (*CommandManifest, error) {
	var m CommandManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse command manifest: %w", err)
	}
	if m.Subsystem == "" {
		return nil, fmt.Errorf("command manifest: subsystem is required")
	}
	for i, cmd := range m.Commands {
		if cmd.Name == "" {
			return nil, fmt.Errorf("command manifest: command %d has no name", i)
		}
	}
	return &m, nil
}
