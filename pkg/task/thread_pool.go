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
	"runtime"
	"time"
)

// Dispatch tuning shared by the pools. Re-enqueued tasks get a boosted
// effective priority so a temporarily starved task eventually beats newly
// arriving tasks of its original priority; the bounded retry prevents
// infinite churn.
const (
	dispatchMaxRetry      = 3
	dispatchPriorityBoost = 10
	dispatchYield         = 2 * time.Millisecond
)

// ThreadPoolDescriptor configures a ThreadPool.
type ThreadPoolDescriptor struct {
	// Threads is the total unit count. Zero means one per CPU.
	Threads int

	// CoreAffinity pins units round-robin over these cores. Empty leaves
	// units unpinned.
	CoreAffinity []int

	// MaxQueue bounds the pending queue. Zero means 128.
	MaxQueue int
}

// ThreadPool dispatches priority-queued descriptors over a fleet of
// thread-backed units. The pool itself is an Event-mode Worker: Submit
// signals the event, the dispatch loop drains the queue.
type ThreadPool struct {
	worker *Worker
	desc   ThreadPoolDescriptor
	queue  *poolQueue
	logger *slog.Logger

	units     map[int]*ThreadTask
	coreUnits map[int][]int // core -> unit indices
	allUnits  []int
}

// NewThreadPool creates and initializes a thread pool.
func NewThreadPool(desc ThreadPoolDescriptor, logger *slog.Logger) (*ThreadPool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if desc.Threads <= 0 {
		desc.Threads = runtime.NumCPU()
	}
	p := &ThreadPool{
		worker: NewWorker(logger),
		desc:   desc,
		queue:  newPoolQueue(desc.MaxQueue),
		logger: logger.With(slog.String("component", "thread_pool")),
	}
	if err := p.worker.Init(WorkerDescriptor{
		Name: "thread-pool",
		Type: WorkerEvent,
	}, p.dispatch); err != nil {
		return nil, err
	}
	p.worker.SetHooks(WorkerHooks{
		PreStart: p.startUnits,
		PostStop: p.teardown,
	})
	return p, nil
}

// Start brings up the unit fleet and the dispatch worker. A stopped pool
// may be started again.
func (p *ThreadPool) Start() error {
	if p.worker.Status().State == WorkerStopped {
		if err := p.worker.Init(WorkerDescriptor{Name: "thread-pool", Type: WorkerEvent}, p.dispatch); err != nil {
			return err
		}
	}
	return p.worker.Start()
}

// Stop stops the dispatch worker and tears down the fleet.
func (p *ThreadPool) Stop() error { return p.worker.Stop() }

// Status returns the dispatch worker status.
func (p *ThreadPool) Status() WorkerStatus { return p.worker.Status() }

// Stats returns the dispatch accounting snapshot.
func (p *ThreadPool) Stats() PoolStats { return p.queue.stats() }

// QueueLen returns the number of pending descriptors.
func (p *ThreadPool) QueueLen() int { return p.queue.len() }

// Submit admits a descriptor at the given priority. A successful return
// guarantees the descriptor is visible to the dispatcher.
func (p *ThreadPool) Submit(desc Descriptor, priority int) error {
	return p.queue.submit(desc, priority, func() { p.worker.Event() })
}

// startUnits builds the fleet and pins units round-robin over the core
// affinity list, maintaining the core index for candidate selection.
func (p *ThreadPool) startUnits() error {
	p.units = make(map[int]*ThreadTask, p.desc.Threads)
	p.coreUnits = make(map[int][]int)
	p.allUnits = p.allUnits[:0]

	for i := 0; i < p.desc.Threads; i++ {
		unit := NewThreadTask(p.logger)
		if err := unit.Init(); err != nil {
			p.teardown()
			return err
		}
		if len(p.desc.CoreAffinity) > 0 {
			core := p.desc.CoreAffinity[i%len(p.desc.CoreAffinity)]
			if err := unit.SetAffinity([]int{core}); err != nil {
				p.logger.Warn("unit pinning failed",
					slog.Int("core", core), slog.Int("unit", i), slog.Any("error", err))
			} else {
				p.coreUnits[core] = append(p.coreUnits[core], i)
			}
		}
		p.units[i] = unit
		p.allUnits = append(p.allUnits, i)
	}
	p.logger.Info("thread pool units started",
		slog.Int("threads", p.desc.Threads),
		slog.Int("pinned_cores", len(p.coreUnits)))
	return nil
}

func (p *ThreadPool) teardown() {
	for _, unit := range p.units {
		unit.Stop()
		unit.Join()
	}
	p.units = nil
	p.coreUnits = nil
	p.allUnits = nil
	p.queue.reset()
}

// candidates returns unit indices bound to any requested core, falling back
// to the whole fleet when the affinity filter selects nothing.
func (p *ThreadPool) candidates(affinity []int) []int {
	if len(affinity) == 0 {
		return p.allUnits
	}
	seen := make(map[int]struct{})
	var out []int
	for _, core := range affinity {
		for _, id := range p.coreUnits[core] {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	if len(out) == 0 {
		return p.allUnits
	}
	return out
}

// dispatch drains the queue once per delivered event.
func (p *ThreadPool) dispatch() error {
	for !p.worker.StopRequested() {
		item, ok := p.queue.pop()
		if !ok {
			return nil
		}

		assigned := false
		for _, id := range p.candidates(item.desc.Affinity) {
			unit, ok := p.units[id]
			if !ok || !unit.Idle() {
				continue
			}
			if err := unit.Execute(item.desc); err != nil {
				p.queue.failed.Add(1)
				continue
			}
			p.queue.executed.Add(1)
			assigned = true
			break
		}

		if !assigned {
			p.requeue(item)
		}

		if p.queue.len() > 0 {
			time.Sleep(dispatchYield)
		}
	}
	return nil
}

// requeue re-admits an unassignable item with a boosted priority, dropping
// it after the bounded retries.
func (p *ThreadPool) requeue(item poolItem) {
	for retry := 1; retry <= dispatchMaxRetry; retry++ {
		boosted := item.priority + dispatchPriorityBoost*retry
		if err := p.queue.push(item.desc, boosted); err == nil {
			p.logger.Debug("requeued task",
				slog.String("task", item.desc.Name),
				slog.Int("retry", retry),
				slog.Int("boosted_priority", boosted))
			return
		}
		time.Sleep(dispatchYield)
	}
	p.queue.dropped.Add(1)
	p.logger.Error("dropped task after requeue retries",
		slog.String("task", item.desc.Name),
		slog.Int("retries", dispatchMaxRetry))
}
