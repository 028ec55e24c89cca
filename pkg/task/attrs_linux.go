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

package task

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/tombee/substrate/pkg/result"
)

// linuxAttrOps applies thread attributes through the Linux syscall surface.
// Names go through the task comm file because the name call must target the
// unit's thread, not the caller's.
type linuxAttrOps struct{}

func defaultAttrOps() threadAttrOps {
	return linuxAttrOps{}
}

func (linuxAttrOps) setName(tid int, name string) error {
	if len(name) > 15 {
		name = name[:15] // kernel comm limit
	}
	path := fmt.Sprintf("/proc/self/task/%d/comm", tid)
	if err := os.WriteFile(path, []byte(name), 0o644); err != nil {
		return result.Wrap(result.InternalError, err, "write task comm")
	}
	return nil
}

func (linuxAttrOps) setAffinity(tid int, cores []int) error {
	var set unix.CPUSet
	set.Zero()
	for _, core := range cores {
		if core >= 0 {
			set.Set(core)
		}
	}
	if err := unix.SchedSetaffinity(tid, &set); err != nil {
		return result.Wrap(errnoCode(err), err, "sched_setaffinity")
	}
	return nil
}

func (linuxAttrOps) setScheduler(tid int, policy, priority int) error {
	attr := unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   uint32(policy),
		Priority: uint32(priority),
	}
	if err := unix.SchedSetAttr(tid, &attr, 0); err != nil {
		return result.Wrap(errnoCode(err), err, "sched_setattr")
	}
	return nil
}

func errnoCode(err error) result.Code {
	if errors.Is(err, unix.EPERM) {
		return result.PermissionDenied
	}
	if errors.Is(err, unix.EINVAL) {
		return result.InvalidArgument
	}
	return result.InternalError
}

func currentTID() int {
	return unix.Gettid()
}
