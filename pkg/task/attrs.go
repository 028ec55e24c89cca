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
	"log/slog"
	"slices"
	"sync"
)

// threadAttrOps is the seam to the OS-level thread attribute calls. The real
// implementation lives in the platform file; tests substitute it to exercise
// the dirty-retry protocol without privileges.
type threadAttrOps interface {
	setName(tid int, name string) error
	setAffinity(tid int, cores []int) error
	setScheduler(tid int, policy, priority int) error
}

// threadAttrs tracks desired vs. applied thread attributes. A failed syscall
// keeps the corresponding dirty flag set so the next opportunity retries;
// attribute drift heals itself once privileges are available.
type threadAttrs struct {
	mu  sync.Mutex
	ops threadAttrOps

	// applied: last values the OS accepted.
	curName     string
	curNameSet  bool
	curAffinity []int
	curPolicy   int
	curPriority int
	curSchedSet bool

	// desired: values from the most recent descriptor.
	wantName     string
	wantNameSet  bool
	wantAffinity []int
	wantPolicy   int
	wantPriority int
	wantSchedSet bool

	dirtyName     bool
	dirtyAffinity bool
	dirtySched    bool
}

func newThreadAttrs() *threadAttrs {
	return &threadAttrs{ops: defaultAttrOps()}
}

// markDesired records the descriptor's attribute requests and flags whatever
// differs from the applied state as dirty. Zero values mean "leave
// unchanged", matching the descriptor contract.
func (a *threadAttrs) markDesired(desc *Descriptor) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if desc.Name != "" {
		a.wantName, a.wantNameSet = desc.Name, true
		if !a.curNameSet || a.curName != a.wantName {
			a.dirtyName = true
		}
	}
	if len(desc.Affinity) > 0 {
		a.wantAffinity = slices.Clone(desc.Affinity)
		if !slices.Equal(a.wantAffinity, a.curAffinity) {
			a.dirtyAffinity = true
		}
	}
	if desc.Policy != 0 || desc.Priority != 0 {
		a.wantPolicy, a.wantPriority, a.wantSchedSet = desc.Policy, desc.Priority, true
		if !a.curSchedSet || a.curPolicy != desc.Policy || a.curPriority != desc.Priority {
			a.dirtySched = true
		}
	}
}

// requestAffinity applies an affinity immediately, recording it as desired so
// a failure is retried on the next opportunity.
func (a *threadAttrs) requestAffinity(tid int, cores []int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if slices.Equal(cores, a.curAffinity) {
		return nil
	}
	a.wantAffinity = slices.Clone(cores)
	if err := a.ops.setAffinity(tid, cores); err != nil {
		a.dirtyAffinity = true
		return err
	}
	a.curAffinity = slices.Clone(cores)
	a.dirtyAffinity = false
	return nil
}

// applyIfDirty attempts every dirty attribute. Failures are logged at warn
// and the dirty flag retained for the next attempt.
func (a *threadAttrs) applyIfDirty(tid int, logger *slog.Logger) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if tid == 0 {
		return
	}

	if a.dirtyName && a.wantNameSet {
		if err := a.ops.setName(tid, a.wantName); err != nil {
			logger.Warn("thread name apply failed", slog.Int("tid", tid), slog.Any("error", err))
		} else {
			a.curName, a.curNameSet = a.wantName, true
			a.dirtyName = false
		}
	}

	if a.dirtyAffinity && len(a.wantAffinity) > 0 {
		if err := a.ops.setAffinity(tid, a.wantAffinity); err != nil {
			logger.Warn("thread affinity apply failed", slog.Int("tid", tid), slog.Any("error", err))
		} else {
			a.curAffinity = slices.Clone(a.wantAffinity)
			a.dirtyAffinity = false
		}
	}

	if a.dirtySched && a.wantSchedSet {
		if err := a.ops.setScheduler(tid, a.wantPolicy, a.wantPriority); err != nil {
			logger.Warn("thread scheduler apply failed",
				slog.Int("tid", tid),
				slog.Int("policy", a.wantPolicy),
				slog.Int("priority", a.wantPriority),
				slog.Any("error", err))
		} else {
			a.curPolicy, a.curPriority, a.curSchedSet = a.wantPolicy, a.wantPriority, true
			a.dirtySched = false
		}
	}
}

// affinity returns the applied affinity, deduplicated and sorted.
func (a *threadAttrs) affinity() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := slices.Clone(a.curAffinity)
	slices.Sort(out)
	return slices.Compact(out)
}

func (a *threadAttrs) scheduler() (policy, priority int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.curPolicy, a.curPriority
}
