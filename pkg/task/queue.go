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
	"container/heap"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tombee/substrate/pkg/result"
)

// PoolStats is a snapshot of pool dispatch accounting.
type PoolStats struct {
	Executed uint64
	Failed   uint64
	Dropped  uint64
}

// poolItem is a queued descriptor with its effective priority.
type poolItem struct {
	desc     Descriptor
	priority int
	seq      uint64
}

// itemHeap orders by descending priority; FIFO (ascending sequence) on ties.
type itemHeap []poolItem

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(poolItem)) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// poolQueue is the admission and ordering core shared by the pools: a
// bounded priority queue with per-name throttling, deferred admission, and
// dispatch accounting.
type poolQueue struct {
	mu       sync.Mutex
	items    itemHeap
	maxQueue int
	seq      uint64
	limiters map[string]*rate.Limiter

	executed atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
}

func newPoolQueue(maxQueue int) *poolQueue {
	if maxQueue <= 0 {
		maxQueue = 128
	}
	return &poolQueue{
		maxQueue: maxQueue,
		limiters: make(map[string]*rate.Limiter),
	}
}

// submit admits a descriptor at the given priority. signal is invoked after
// a successful (or deferred) admission to wake the dispatcher.
func (q *poolQueue) submit(desc Descriptor, priority int, signal func()) error {
	if err := desc.Validate(); err != nil {
		return err
	}

	if desc.Dispatch == DispatchDeferred && desc.Throttle > 0 {
		// Deferred admission: capacity is checked when the delay elapses.
		time.AfterFunc(desc.Throttle, func() {
			if q.push(desc, priority) != nil {
				q.dropped.Add(1)
				return
			}
			signal()
		})
		return nil
	}

	q.mu.Lock()
	if len(q.items) >= q.maxQueue {
		q.mu.Unlock()
		q.dropped.Add(1)
		return result.New(result.ResourceBusy, "task queue full")
	}
	if desc.Dispatch == DispatchThrottled {
		lim, ok := q.limiters[desc.Name]
		if !ok {
			lim = rate.NewLimiter(rate.Every(desc.Throttle), 1)
			q.limiters[desc.Name] = lim
		} else if lim.Limit() != rate.Every(desc.Throttle) {
			lim.SetLimit(rate.Every(desc.Throttle))
		}
		if !lim.Allow() {
			q.mu.Unlock()
			return result.Errorf(result.RateLimit, "task %q throttled", desc.Name)
		}
	}
	q.pushLocked(desc, priority)
	q.mu.Unlock()

	signal()
	return nil
}

// push enqueues without throttling or drop accounting; used by deferred
// admission and re-enqueue boosting, which do their own accounting.
func (q *poolQueue) push(desc Descriptor, priority int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.maxQueue {
		return result.New(result.ResourceBusy, "task queue full")
	}
	q.pushLocked(desc, priority)
	return nil
}

func (q *poolQueue) pushLocked(desc Descriptor, priority int) {
	q.seq++
	heap.Push(&q.items, poolItem{desc: desc, priority: priority, seq: q.seq})
}

// pop removes the highest-priority item, FIFO on ties.
func (q *poolQueue) pop() (poolItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return poolItem{}, false
	}
	return heap.Pop(&q.items).(poolItem), true
}

func (q *poolQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *poolQueue) reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.limiters = make(map[string]*rate.Limiter)
}

func (q *poolQueue) stats() PoolStats {
	return PoolStats{
		Executed: q.executed.Load(),
		Failed:   q.failed.Load(),
		Dropped:  q.dropped.Load(),
	}
}
