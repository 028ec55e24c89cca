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

// Package result defines the platform-wide result code taxonomy and the
// typed error that carries a code (plus optional message) across in-process
// and subsystem ABI boundaries.
package result

import (
	"errors"
	"fmt"
)

// Code identifies the outcome class of a fallible operation.
// Codes are stable integers so they can be surfaced at the ABI boundary.
type Code int32

const (
	// OK indicates success.
	OK Code = 0

	// DuplicateIgnored indicates a duplicate registration that was ignored.
	// It counts as success by policy.
	DuplicateIgnored Code = 1

	// Input/state errors.
	InvalidArgument Code = 100
	AlreadyExists   Code = 101
	NotFound        Code = 102
	OutOfRange      Code = 103

	// Resource errors.
	PermissionDenied Code = 200
	Timeout          Code = 201
	OutOfMemory      Code = 202
	ResourceBusy     Code = 203
	InvalidState     Code = 204
	RateLimit        Code = 205

	// Internal errors.
	InternalError Code = 300
	NotSupported  Code = 301
	SocketError   Code = 302

	// Network errors.
	NetworkError   Code = 400
	ConnectionFail Code = 401
	ConnectionLost Code = 402
	ProtocolError  Code = 403
)

// String returns the canonical name of the code.
func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case DuplicateIgnored:
		return "duplicate_ignored"
	case InvalidArgument:
		return "invalid_argument"
	case AlreadyExists:
		return "already_exists"
	case NotFound:
		return "not_found"
	case OutOfRange:
		return "out_of_range"
	case PermissionDenied:
		return "permission_denied"
	case Timeout:
		return "timeout"
	case OutOfMemory:
		return "out_of_memory"
	case ResourceBusy:
		return "resource_busy"
	case InvalidState:
		return "invalid_state"
	case RateLimit:
		return "rate_limit"
	case InternalError:
		return "internal_error"
	case NotSupported:
		return "not_supported"
	case SocketError:
		return "socket_error"
	case NetworkError:
		return "network_error"
	case ConnectionFail:
		return "connection_fail"
	case ConnectionLost:
		return "connection_lost"
	case ProtocolError:
		return "protocol_error"
	default:
		return fmt.Sprintf("code(%d)", int32(c))
	}
}

// Success reports whether the code counts as success.
// DuplicateIgnored is success by policy.
func (c Code) Success() bool {
	return c == OK || c == DuplicateIgnored
}

// Error is the typed error used throughout the platform. It carries a Code,
// a human-readable message, and an optional underlying cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates an Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error wrapping cause. The cause is reachable via
// errors.Unwrap / errors.Is.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the Code from err. A nil error is OK; an error that is not
// (and does not wrap) a *Error maps to InternalError.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return InternalError
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// Succeeded reports whether err represents success, counting
// DuplicateIgnored as success.
func Succeeded(err error) bool {
	return CodeOf(err).Success()
}
