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

// substrated is the platform host daemon: it loads the subsystems named by
// the system manifest, drives them through their lifecycle, and serves
// commands until signalled.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tombee/substrate/internal/host"
	"github.com/tombee/substrate/internal/log"
	"github.com/tombee/substrate/internal/observability"
	"github.com/tombee/substrate/pkg/abi"

	// Built-in subsystems register their descriptors at init.
	_ "github.com/tombee/substrate/subsystems/sample"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

type options struct {
	manifestPath string
	configPath   string
	configDB     bool
	libDirs      []string
	logLevel     string
	logFormat    string
	watch        bool
	trace        bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "substrated",
		Short:         "Substrate platform host daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Flags(), opts)
		},
	}

	flags := root.Flags()
	flags.StringVarP(&opts.manifestPath, "manifest", "m", "system_manifest.yaml", "system manifest path")
	flags.StringVarP(&opts.configPath, "config", "c", "substrate.yaml", "settings path (file or database)")
	flags.BoolVar(&opts.configDB, "config-db", false, "treat --config as a settings database")
	flags.StringSliceVar(&opts.libDirs, "lib-dir", nil, "subsystem library directories (repeatable)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format (json, text)")
	flags.BoolVar(&opts.watch, "watch-manifest", false, "reload the manifest on change")
	flags.BoolVar(&opts.trace, "trace", false, "export spans to stdout")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(*cobra.Command, []string) {
			fmt.Printf("substrated %s (commit: %s, built: %s)\n", version, commit, buildDate)
		},
	})

	return root
}

func run(flags *pflag.FlagSet, opts *options) error {
	// Environment first, CLI flags override.
	logCfg := log.FromEnv()
	if flags.Changed("log-level") {
		logCfg.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		logCfg.Format = log.Format(opts.logFormat)
	}
	logger := log.New(logCfg)
	slog.SetDefault(logger)

	shutdownTracing, err := observability.SetupTracing(observability.TracingConfig{Enabled: opts.trace})
	if err != nil {
		return err
	}

	configType := abi.ConfigFile
	if opts.configDB {
		configType = abi.ConfigLVDB
	}

	h, err := host.New(host.Options{
		ManifestPath:  opts.manifestPath,
		ConfigPath:    opts.configPath,
		ConfigType:    configType,
		LibraryDirs:   opts.libDirs,
		WatchManifest: opts.watch,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = h.Run(ctx)

	if terr := shutdownTracing(context.Background()); terr != nil {
		logger.Warn("tracing shutdown failed", slog.Any("error", terr))
	}
	return err
}
