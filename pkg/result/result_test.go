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

package result

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{name: "nil error is OK", err: nil, want: OK},
		{name: "typed error", err: New(ResourceBusy, "queue full"), want: ResourceBusy},
		{name: "wrapped typed error", err: fmt.Errorf("submit: %w", New(RateLimit, "throttled")), want: RateLimit},
		{name: "plain error maps to internal", err: errors.New("boom"), want: InternalError},
		{name: "typed error wrapping cause", err: Wrap(Timeout, errors.New("deadline"), "wait"), want: Timeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSucceeded(t *testing.T) {
	if !Succeeded(nil) {
		t.Error("nil error should succeed")
	}
	if !Succeeded(New(DuplicateIgnored, "already registered")) {
		t.Error("DuplicateIgnored counts as success by policy")
	}
	if Succeeded(New(NotFound, "missing")) {
		t.Error("NotFound must not count as success")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("syscall failed")
	err := Wrap(PermissionDenied, cause, "sched_setattr")

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the cause")
	}
	if got := err.Error(); got != "permission_denied: sched_setattr" {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestErrorMessageWithoutText(t *testing.T) {
	err := &Error{Code: InvalidState}
	if got := err.Error(); got != "invalid_state" {
		t.Errorf("unexpected message: %q", got)
	}
}
