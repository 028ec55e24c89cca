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

package sample

import (
	"context"
	"log/slog"

	"github.com/tombee/substrate/internal/command"
	"github.com/tombee/substrate/pkg/result"
)

// Service exposes the subsystem's commands. Each command method registers
// under its short name in the local dispatch table.
type Service struct {
	sub    *Subsystem
	logger *slog.Logger
	table  map[string]func(context.Context, command.Message) error
}

// NewService binds a service to the subsystem instance.
func NewService(sub *Subsystem, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		sub:    sub,
		logger: logger.With(slog.String("component", "sample_service")),
	}
	s.table = map[string]func(context.Context, command.Message) error{
		"Sample": s.cmdSample,
		"Reset":  s.cmdReset,
	}
	return s
}

// Invoke routes a dispatched command to its method.
func (s *Service) Invoke(ctx context.Context, cmd string, args command.Message) error {
	fn, ok := s.table[cmd]
	if !ok {
		return result.Errorf(result.NotFound, "sample service has no command %q", cmd)
	}
	return fn(ctx, args)
}

// cmdSample forces count immediate acquisitions.
func (s *Service) cmdSample(_ context.Context, args command.Message) error {
	count, err := args.Int("count")
	if err != nil {
		return err
	}
	if count <= 0 || count > 1000 {
		return result.Errorf(result.OutOfRange, "count %d outside 1..1000", count)
	}
	for i := int64(0); i < count; i++ {
		if err := s.sub.acquire(); err != nil {
			return err
		}
	}
	total, last := s.sub.snapshot()
	s.logger.Info("sampled",
		slog.Int64("requested", count),
		slog.Uint64("total", total),
		slog.Float64("last", last))
	return nil
}

// cmdReset clears the acquisition counters.
func (s *Service) cmdReset(context.Context, command.Message) error {
	s.sub.reset()
	return nil
}
