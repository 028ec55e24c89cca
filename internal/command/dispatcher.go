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
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/substrate/internal/config"
	"github.com/tombee/substrate/pkg/ioc"
	"github.com/tombee/substrate/pkg/result"
)

// Service is the invocation surface a subsystem registers in the service
// container under its subsystem name.
type Service interface {
	// Invoke runs the named command with the given arguments.
	Invoke(ctx context.Context, command string, args Message) error
}

// Dispatcher routes commands: find, mode gate, argument validation, service
// resolution, invoke. Rejections come back as typed errors without
// warning-level logging; they are normal operation.
type Dispatcher struct {
	registry *Registry
	cfg      *config.SystemConfig
	services *ioc.Container
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewDispatcher wires the dispatcher to the shared registry, config, and
// service container.
func NewDispatcher(registry *Registry, cfg *config.SystemConfig, services *ioc.Container, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		cfg:      cfg,
		services: services,
		logger:   logger.With(slog.String("component", "dispatcher")),
		tracer:   otel.Tracer("substrate.command"),
	}
}

// Dispatch routes one command.
func (d *Dispatcher) Dispatch(ctx context.Context, command string, args Message) error {
	ctx, span := d.tracer.Start(ctx, "command.dispatch",
		trace.WithAttributes(attribute.String("command", command)))
	defer span.End()

	err := d.dispatch(ctx, command, args)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("result", result.CodeOf(err).String()))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}

func (d *Dispatcher) dispatch(ctx context.Context, command string, args Message) error {
	info := d.registry.Find(command)
	if info == nil {
		return result.Errorf(result.NotFound, "unknown command %q", command)
	}

	mode := d.cfg.Mode()
	if !info.allowed(mode) {
		d.logger.Debug("command rejected by mode gate",
			slog.String("command", command),
			slog.String("mode", mode))
		return result.Errorf(result.PermissionDenied, "command %q not allowed in mode %q", command, mode)
	}

	if err := d.validate(info, args); err != nil {
		return err
	}

	svc, err := ioc.Resolve[Service](d.services, info.Service)
	if err != nil {
		return result.Errorf(result.InvalidState, "service %q unresolvable", info.Service)
	}
	return svc.Invoke(ctx, command, args)
}

// validate checks argument presence and types against the declaration.
func (d *Dispatcher) validate(info *Info, args Message) error {
	for name, t := range info.Args {
		if !args.Has(name) {
			return result.Errorf(result.InvalidArgument, "command %q missing argument %q", info.Name, name)
		}
		if err := args.checkType(name, t); err != nil {
			return err
		}
	}
	return nil
}
