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

// Package host wires the runtime together: configuration, manifest,
// subsystem composition, pools, the message bus, and command dispatch, and
// drives the whole system through its lifecycle.
package host

import (
	"context"
	"log/slog"
	"os"

	"github.com/tombee/substrate/internal/bus"
	"github.com/tombee/substrate/internal/command"
	"github.com/tombee/substrate/internal/composition"
	"github.com/tombee/substrate/internal/config"
	"github.com/tombee/substrate/internal/manifest"
	"github.com/tombee/substrate/internal/observability"
	"github.com/tombee/substrate/pkg/abi"
	"github.com/tombee/substrate/pkg/ioc"
	"github.com/tombee/substrate/pkg/result"
	"github.com/tombee/substrate/pkg/task"
)

// Options configures a Host.
type Options struct {
	// ManifestPath is the system manifest location.
	ManifestPath string

	// ConfigPath and ConfigType select the settings store.
	ConfigPath string
	ConfigType abi.ConfigType

	// LibraryDirs override the config's subsystem library search path.
	LibraryDirs []string

	// Loader overrides the default static+plugin chain (used by tests).
	Loader composition.Loader

	// WatchManifest enables the fsnotify manifest watcher.
	WatchManifest bool

	Logger *slog.Logger
}

// Host is the platform process: it loads subsystems, drives their
// lifecycle, and serves commands arriving on the bus.
type Host struct {
	opts   Options
	logger *slog.Logger

	cfg      *config.SystemConfig
	store    config.Store
	man      *manifest.SystemManifest
	manager  *composition.Manager
	super    *composition.Supervisor
	registry *command.Registry
	disp     *command.Dispatcher
	bus      *bus.Bus

	threadPool *task.ThreadPool
	asyncPool  *task.AsyncPool

	pid *PIDFile
}

// New builds a host from options: settings are loaded, the manifest
// parsed, and all runtime services constructed, but nothing starts until
// Run.
func New(opts Options) (*Host, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := config.OpenStore(opts.ConfigType, opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	settings, err := store.Load()
	if err != nil {
		store.Close()
		return nil, err
	}
	cfg := config.NewSystemConfig(settings, store)

	man, err := manifest.Load(opts.ManifestPath)
	if err != nil {
		store.Close()
		return nil, err
	}
	// The manifest's boot mode seeds the config when the store carried none.
	if man.System.Mode != "" && settings.Mode == abi.ModeNormal.String() {
		if err := cfg.SetMode(man.System.Mode); err != nil {
			logger.Warn("manifest boot mode rejected", slog.String("mode", man.System.Mode))
		}
	}

	libDirs := opts.LibraryDirs
	if len(libDirs) == 0 {
		libDirs = settings.LibraryDirs
	}
	loader := opts.Loader
	if loader == nil {
		loader = composition.ChainLoader{
			composition.StaticLoader{},
			composition.NewPluginLoader(libDirs, logger),
		}
	}

	threadPool, err := task.NewThreadPool(task.ThreadPoolDescriptor{
		Threads:      settings.ThreadPoolSize,
		CoreAffinity: settings.PoolCoreAffinity,
		MaxQueue:     settings.PoolMaxQueue,
	}, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	asyncPool, err := task.NewAsyncPool(task.AsyncPoolDescriptor{
		Asyncs:   settings.AsyncPoolSize,
		MaxQueue: settings.PoolMaxQueue,
	}, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	registry := command.NewRegistry(logger)
	super, err := composition.NewSupervisor(logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	h := &Host{
		opts:       opts,
		logger:     logger.With(slog.String("component", "host")),
		cfg:        cfg,
		store:      store,
		man:        man,
		manager:    composition.NewManager(loader, logger),
		super:      super,
		registry:   registry,
		disp:       command.NewDispatcher(registry, cfg, ioc.Services(), logger),
		bus:        bus.New(),
		threadPool: threadPool,
		asyncPool:  asyncPool,
	}
	h.manager.SetStartFailureHook(super.OnStartFailure)

	// Shared runtime services any subsystem may resolve.
	ioc.RegisterInstance(ioc.Services(), "system_config", cfg)
	ioc.RegisterInstance(ioc.Services(), "command_registry", registry)
	ioc.RegisterInstance(ioc.Services(), "thread_pool", threadPool)
	ioc.RegisterInstance(ioc.Services(), "async_pool", asyncPool)
	ioc.RegisterInstance(ioc.Services(), "message_bus", h.bus)

	if settings.PIDFile != "" {
		h.pid = NewPIDFile(settings.PIDFile)
	}
	return h, nil
}

// Bus returns the host's message bus.
func (h *Host) Bus() *bus.Bus { return h.bus }

// Registry returns the shared command registry.
func (h *Host) Registry() *command.Registry { return h.registry }

// Manager returns the subsystem manager.
func (h *Host) Manager() *composition.Manager { return h.manager }

// Config returns the shared system config.
func (h *Host) Config() *config.SystemConfig { return h.cfg }

// SetSystemMode updates the config's mode and broadcasts it to every
// subsystem. A subsystem rejection is reported but not rolled back.
func (h *Host) SetSystemMode(mode string) error {
	parsed, ok := abi.ParseSystemMode(mode)
	if !ok {
		return result.Errorf(result.InvalidArgument, "unknown system mode %q", mode)
	}
	if err := h.cfg.SetMode(mode); err != nil {
		return err
	}
	h.logger.Info("system mode changed", slog.String("mode", mode))
	notifyStatus("mode=" + mode)
	return h.manager.SystemModeAll(parsed)
}

// startup drives the bring-up sequence: load, registries, pools, then the
// subsystem lifecycle up to start.
func (h *Host) startup() error {
	if h.pid != nil {
		if err := h.pid.Create(os.Getpid()); err != nil {
			return err
		}
	}

	if err := h.manager.Load(h.man, h.opts.ManifestPath); err != nil {
		return err
	}
	if err := h.manager.RegistryAll(); err != nil {
		return err
	}
	if err := h.manager.RegistryModuleAll(); err != nil {
		return err
	}

	if err := h.threadPool.Start(); err != nil {
		return err
	}
	if err := h.asyncPool.Start(); err != nil {
		return err
	}
	if err := h.super.Start(); err != nil {
		return err
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"initialize", h.manager.InitializeAll},
		{"self_test", h.manager.SelfTestAll},
		{"configure", h.manager.ConfigureAll},
		{"ready", h.manager.ReadyAll},
		{"start", func() error { return h.manager.StartAll(h.cfg.Mode()) }},
	}
	for _, step := range steps {
		notifyStatus("lifecycle=" + step.name)
		if err := step.fn(); err != nil {
			observability.RecordSubsystemOperation(step.name, "error")
			// Start failures are supervised; earlier lifecycle failures
			// abort bring-up.
			if step.name != "start" {
				return err
			}
			h.logger.Warn("some subsystems failed to start; supervisor engaged",
				slog.Any("error", err))
			continue
		}
		observability.RecordSubsystemOperation(step.name, "ok")
	}
	return nil
}

// shutdown tears everything down in reverse.
func (h *Host) shutdown() {
	notifyStopping()
	if err := h.manager.StopAll(); err != nil {
		h.logger.Error("subsystem stop failures", slog.Any("error", err))
	}
	h.super.Stop()
	h.threadPool.Stop()
	h.asyncPool.Stop()
	h.manager.UnloadAll()
	h.bus.Close()
	if h.pid != nil {
		h.pid.Remove()
	}
	h.store.Close()
}

// Run drives the host until the context is cancelled.
func (h *Host) Run(ctx context.Context) error {
	if err := h.startup(); err != nil {
		h.shutdown()
		return err
	}
	defer h.shutdown()

	commands, err := h.bus.Subscribe(bus.TopicCommands)
	if err != nil {
		return err
	}

	var reload <-chan *manifest.SystemManifest
	if h.opts.WatchManifest {
		watcher := manifest.NewWatcher(h.opts.ManifestPath, h.logger)
		go watcher.Run(ctx)
		reload = watcher.Reload
	}

	notifyReady()
	h.logger.Info("host running",
		slog.String("system", h.man.System.Name),
		slog.String("mode", h.cfg.Mode()),
		slog.Int("subsystems", len(h.manager.Controllers())))

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-commands:
			if !ok {
				return nil
			}
			err := h.disp.Dispatch(ctx, env.Command, command.Message(env.Payload))
			observability.RecordDispatch(env.Command, result.CodeOf(err).String())
			if err != nil {
				h.logger.Debug("command rejected",
					slog.String("command", env.Command),
					slog.String("id", env.ID),
					slog.Any("error", err))
			}
		case m := <-reload:
			// Structural reload (loading and unloading subsystems at
			// runtime) is deliberately out of scope; the refreshed manifest
			// replaces the held copy and is logged for operators. The
			// loaded subsystems and the current mode stay unchanged.
			h.man = m
			h.logger.Info("manifest refreshed; subsystem set unchanged until restart")
		}
	}
}
