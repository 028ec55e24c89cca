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
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/tombee/substrate/internal/manifest"
	"github.com/tombee/substrate/pkg/abi"
	"github.com/tombee/substrate/pkg/result"
)

// StartFailureHook observes a subsystem whose start operation failed; the
// restart supervisor hangs off this.
type StartFailureHook func(ctrl *Controller, err error)

// Manager loads subsystems per the manifest and fans lifecycle operations
// out across all of them. Controllers are held in manifest priority order
// (descending, stable): higher-priority subsystems start first and stop
// first. Unload runs in reverse.
//
// Fan-outs never short-circuit: every subsystem gets the operation, each
// failure is logged with the subsystem's name, and the aggregate error is
// non-nil iff any child failed.
type Manager struct {
	loader Loader
	logger *slog.Logger

	mu          sync.RWMutex
	controllers []*Controller
	byName      map[string]*Controller

	onStartFailure StartFailureHook
}

// NewManager creates a manager using the given loader.
func NewManager(loader Loader, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		loader: loader,
		logger: logger.With(slog.String("component", "subsystem_manager")),
		byName: make(map[string]*Controller),
	}
}

// SetStartFailureHook installs the start-failure observer. Must be called
// before StartAll.
func (m *Manager) SetStartFailureHook(hook StartFailureHook) {
	m.onStartFailure = hook
}

// Load loads every subsystem in the manifest (already priority-ordered).
// A required subsystem that fails to load aborts with an error naming it;
// an optional one is logged and skipped.
func (m *Manager) Load(sm *manifest.SystemManifest, manifestPath string) error {
	for _, info := range sm.Subsystems {
		params := &abi.Params{
			ConfigType:   abi.ConfigFile,
			ConfigPath:   info.Config,
			ManifestType: abi.ManifestFile,
			ManifestPath: manifestPath,
		}
		loaded, err := m.loader.Load(info.Name, params)
		if err != nil {
			if info.Optional {
				m.logger.Warn("optional subsystem failed to load",
					slog.String("subsystem", info.Name), slog.Any("error", err))
				continue
			}
			m.logger.Error("subsystem failed to load",
				slog.String("subsystem", info.Name), slog.Any("error", err))
			return result.Wrap(result.CodeOf(err), err, "load subsystem "+info.Name+": "+err.Error())
		}

		ctrl := NewController(info, loaded, m.logger)
		m.mu.Lock()
		m.controllers = append(m.controllers, ctrl)
		m.byName[info.Name] = ctrl
		m.mu.Unlock()

		m.logger.Info("subsystem controller registered",
			slog.String("subsystem", info.Name),
			slog.String("version", ctrl.Version()),
			slog.Int("priority", info.Priority))
	}
	return nil
}

// Controller returns the controller for name, or nil.
func (m *Manager) Controller(name string) *Controller {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byName[name]
}

// Controllers returns the controllers in priority order.
func (m *Manager) Controllers() []*Controller {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.controllers)
}

// callAll applies op to every controller in priority order without
// short-circuiting.
func (m *Manager) callAll(action string, op func(*Controller) error) error {
	var errs []error
	for _, ctrl := range m.Controllers() {
		if err := op(ctrl); err != nil {
			m.logger.Error("subsystem operation failed",
				slog.String("action", action),
				slog.String("subsystem", ctrl.Name()),
				slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RegistryAll runs every subsystem's service registration hook.
func (m *Manager) RegistryAll() error {
	return m.callAll("registry", (*Controller).Registry)
}

// RegistryModuleAll runs every subsystem's device registration hook.
func (m *Manager) RegistryModuleAll() error {
	return m.callAll("registry_module", (*Controller).RegistryModule)
}

// InitializeAll initializes every subsystem.
func (m *Manager) InitializeAll() error {
	return m.callAll("initialize", (*Controller).Initialize)
}

// SelfTestAll self-tests every subsystem.
func (m *Manager) SelfTestAll() error {
	return m.callAll("self_test", (*Controller).SelfTest)
}

// ConfigureAll configures every subsystem.
func (m *Manager) ConfigureAll() error {
	return m.callAll("configure", (*Controller).Configure)
}

// ReadyAll readies every subsystem.
func (m *Manager) ReadyAll() error {
	return m.callAll("ready", (*Controller).Ready)
}

// StartAll starts every subsystem not denied in the given mode. Start
// failures additionally feed the start-failure hook so the restart
// supervisor can take over.
func (m *Manager) StartAll(mode string) error {
	return m.callAll("start", func(ctrl *Controller) error {
		if slices.Contains(ctrl.Info().DeniedModes, mode) {
			m.logger.Info("subsystem start skipped in denied mode",
				slog.String("subsystem", ctrl.Name()),
				slog.String("mode", mode))
			return nil
		}
		err := ctrl.Start()
		if err != nil && m.onStartFailure != nil {
			m.onStartFailure(ctrl, err)
		}
		return err
	})
}

// PauseAll pauses every subsystem.
func (m *Manager) PauseAll() error {
	return m.callAll("pause", (*Controller).Pause)
}

// StopAll stops every subsystem, highest priority first.
func (m *Manager) StopAll() error {
	return m.callAll("stop", (*Controller).Stop)
}

// RecoveryAll runs every subsystem's recovery path.
func (m *Manager) RecoveryAll() error {
	return m.callAll("recovery", (*Controller).Recovery)
}

// SafeAll moves every subsystem to its safe state.
func (m *Manager) SafeAll() error {
	return m.callAll("safe", (*Controller).Safe)
}

// SystemModeAll broadcasts a mode change to every subsystem. A rejection is
// reported in the aggregate error but does not roll back subsystems that
// already accepted the mode.
func (m *Manager) SystemModeAll(mode abi.SystemMode) error {
	return m.callAll("system_mode", func(ctrl *Controller) error {
		return ctrl.SystemMode(mode)
	})
}

// UnloadAll destroys and drops every subsystem in reverse priority order,
// then clears the controller table.
func (m *Manager) UnloadAll() {
	m.mu.Lock()
	controllers := m.controllers
	m.controllers = nil
	m.byName = make(map[string]*Controller)
	m.mu.Unlock()

	for i := len(controllers) - 1; i >= 0; i-- {
		controllers[i].Unload()
	}
}
