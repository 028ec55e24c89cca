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

// Package command routes named commands arriving from the message bus to
// registered service methods, gated by the current system mode and
// validated against the command manifest's argument types.
package command

import (
	"strings"

	"github.com/tombee/substrate/pkg/result"
)

// ArgType is a command argument type from the command manifest.
type ArgType int

const (
	ArgString ArgType = iota
	ArgInt
	ArgFloat
	ArgBool
)

// String returns the manifest spelling.
func (t ArgType) String() string {
	switch t {
	case ArgString:
		return "string"
	case ArgInt:
		return "int"
	case ArgFloat:
		return "float"
	case ArgBool:
		return "bool"
	default:
		return "unknown"
	}
}

// ParseArgType maps a manifest type string. Matching is on the
// case-insensitive first letter: s, i, f, b.
func ParseArgType(s string) (ArgType, bool) {
	if s == "" {
		return ArgString, false
	}
	switch strings.ToLower(s[:1]) {
	case "s":
		return ArgString, true
	case "i":
		return ArgInt, true
	case "f":
		return ArgFloat, true
	case "b":
		return ArgBool, true
	default:
		return ArgString, false
	}
}

// Message carries command arguments as loosely typed key/value pairs, the
// in-process form of a bus payload.
type Message map[string]any

// Has reports whether the key is present.
func (m Message) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// String returns the string argument for key.
func (m Message) String(key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", result.Errorf(result.InvalidArgument, "missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", result.Errorf(result.InvalidArgument, "argument %q is not a string", key)
	}
	return s, nil
}

// Int returns the integer argument for key. YAML and JSON decoders deliver
// numbers in several widths; all integral forms are accepted.
func (m Message) Int(key string) (int64, error) {
	v, ok := m[key]
	if !ok {
		return 0, result.Errorf(result.InvalidArgument, "missing argument %q", key)
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint32:
		return int64(n), nil
	case float64:
		if n == float64(int64(n)) {
			return int64(n), nil
		}
	}
	return 0, result.Errorf(result.InvalidArgument, "argument %q is not an integer", key)
}

// Float returns the float argument for key.
func (m Message) Float(key string) (float64, error) {
	v, ok := m[key]
	if !ok {
		return 0, result.Errorf(result.InvalidArgument, "missing argument %q", key)
	}
	switch n := v.(type) {
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, result.Errorf(result.InvalidArgument, "argument %q is not a float", key)
}

// Bool returns the boolean argument for key.
func (m Message) Bool(key string) (bool, error) {
	v, ok := m[key]
	if !ok {
		return false, result.Errorf(result.InvalidArgument, "missing argument %q", key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, result.Errorf(result.InvalidArgument, "argument %q is not a bool", key)
	}
	return b, nil
}

// checkType verifies that the value under key matches the declared type.
func (m Message) checkType(key string, t ArgType) error {
	switch t {
	case ArgString:
		_, err := m.String(key)
		return err
	case ArgInt:
		_, err := m.Int(key)
		return err
	case ArgFloat:
		_, err := m.Float(key)
		return err
	case ArgBool:
		_, err := m.Bool(key)
		return err
	default:
		return result.Errorf(result.InvalidArgument, "argument %q has unknown type", key)
	}
}
