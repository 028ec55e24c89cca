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

package ioc

import "sync"

// The two process-wide containers: one for services, one for device
// access. Subsystems populate them from their registry entry points; the
// host and the command dispatcher resolve through them.
var (
	servicesOnce sync.Once
	services     *Container

	devicesOnce sync.Once
	devices     *Container
)

// Services returns the process-wide service container.
func Services() *Container {
	servicesOnce.Do(func() { services = NewContainer(nil) })
	return services
}

// Devices returns the process-wide device-access container.
func Devices() *Container {
	devicesOnce.Do(func() { devices = NewContainer(nil) })
	return devices
}
