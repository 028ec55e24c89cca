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

// Package config holds the host's runtime configuration, including the
// authoritative current system mode, with pluggable persistence: a YAML
// file store and a SQLite-backed store for database-sourced configs.
package config

import (
	"sync"

	"github.com/tombee/substrate/pkg/abi"
	"github.com/tombee/substrate/pkg/result"
)

// Settings is the persisted host configuration.
type Settings struct {
	// System identity.
	SystemName string `yaml:"system_name"`

	// Mode is the current system operating mode.
	Mode string `yaml:"mode"`

	// LibraryDirs are searched for subsystem shared objects.
	LibraryDirs []string `yaml:"library_dirs,omitempty"`

	// PIDFile is the daemon PID file path. Empty disables it.
	PIDFile string `yaml:"pid_file,omitempty"`

	// Pool sizing.
	ThreadPoolSize   int   `yaml:"thread_pool_size,omitempty"`
	AsyncPoolSize    int   `yaml:"async_pool_size,omitempty"`
	PoolMaxQueue     int   `yaml:"pool_max_queue,omitempty"`
	PoolCoreAffinity []int `yaml:"pool_core_affinity,omitempty"`

	// Log settings.
	LogLevel  string `yaml:"log_level,omitempty"`
	LogFormat string `yaml:"log_format,omitempty"`
}

// Defaults returns settings with sensible defaults applied.
func Defaults() Settings {
	return Settings{
		Mode:         abi.ModeNormal.String(),
		PoolMaxQueue: 128,
	}
}

// Store persists Settings.
type Store interface {
	Load() (Settings, error)
	Save(Settings) error
	Close() error
}

// OpenStore opens the store matching the ABI config source type.
func OpenStore(typ abi.ConfigType, path string) (Store, error) {
	switch typ {
	case abi.ConfigLVDB:
		return OpenDBStore(path)
	default:
		return NewFileStore(path), nil
	}
}

// SystemConfig is the shared, thread-safe view of the host configuration.
// The current mode read by the command dispatcher's mode gate lives here.
type SystemConfig struct {
	mu       sync.RWMutex
	settings Settings
	store    Store
}

// NewSystemConfig wraps loaded settings; store may be nil for an in-memory
// config.
func NewSystemConfig(settings Settings, store Store) *SystemConfig {
	if settings.Mode == "" {
		settings.Mode = abi.ModeNormal.String()
	}
	return &SystemConfig{settings: settings, store: store}
}

// Mode returns the current system mode string.
func (c *SystemConfig) Mode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings.Mode
}

// SystemMode returns the current mode as the ABI enum. Unknown strings fall
// back to normal.
func (c *SystemConfig) SystemMode() abi.SystemMode {
	mode, _ := abi.ParseSystemMode(c.Mode())
	return mode
}

// SetMode updates the current mode and persists it when a store is
// attached.
func (c *SystemConfig) SetMode(mode string) error {
	if _, ok := abi.ParseSystemMode(mode); !ok {
		return result.Errorf(result.InvalidArgument, "unknown system mode %q", mode)
	}
	c.mu.Lock()
	c.settings.Mode = mode
	snapshot := c.settings
	store := c.store
	c.mu.Unlock()

	if store != nil {
		return store.Save(snapshot)
	}
	return nil
}

// Settings returns a copy of the current settings.
func (c *SystemConfig) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}
