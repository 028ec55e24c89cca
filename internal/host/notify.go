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

package host

import (
	"fmt"
	"net"
	"os"
)

// sdNotify sends one service-manager notification over NOTIFY_SOCKET.
// Outside a systemd unit the socket is unset and the call is a silent
// no-op; readiness protocol failures never affect the host itself.
func sdNotify(state string) {
	socket := os.Getenv("NOTIFY_SOCKET")
	if socket == "" {
		return
	}
	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: socket, Net: "unixgram"})
	if err != nil {
		return
	}
	defer conn.Close()
	conn.Write([]byte(state))
}

// notifyReady signals the service manager that startup finished.
func notifyReady() { sdNotify("READY=1") }

// notifyStopping signals that shutdown began.
func notifyStopping() { sdNotify("STOPPING=1") }

// notifyStatus publishes a free-form status line.
func notifyStatus(msg string) { sdNotify(fmt.Sprintf("STATUS=%s", msg)) }

// notifyWatchdog pets the service-manager watchdog.
func notifyWatchdog() { sdNotify("WATCHDOG=1") }
