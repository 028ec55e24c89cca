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

// The plugin shim for the sample subsystem. Build with:
//
//	go build -buildmode=plugin -o libsample.so ./subsystems/sample/plugin
//
// The host resolves the SubsystemDescriptor symbol through the loader.
package main

import (
	"github.com/tombee/substrate/pkg/abi"
	"github.com/tombee/substrate/subsystems/sample"
)

// SubsystemDescriptor is the ABI export.
func SubsystemDescriptor() *abi.Descriptor {
	return sample.Descriptor()
}

func main() {}
