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

//go:build !linux

package task

import "github.com/tombee/substrate/pkg/result"

// noopAttrOps reports NotSupported on platforms without the Linux thread
// attribute surface. Dirty flags stay set, which is harmless: the attributes
// simply never apply here.
type noopAttrOps struct{}

func defaultAttrOps() threadAttrOps {
	return noopAttrOps{}
}

func (noopAttrOps) setName(int, string) error {
	return result.New(result.NotSupported, "thread naming not supported on this platform")
}

func (noopAttrOps) setAffinity(int, []int) error {
	return result.New(result.NotSupported, "thread affinity not supported on this platform")
}

func (noopAttrOps) setScheduler(int, int, int) error {
	return result.New(result.NotSupported, "thread scheduling not supported on this platform")
}

func currentTID() int {
	return 0
}
