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

// AsyncPoolDescriptor configures an AsyncPool.
type AsyncPoolDescriptor struct {
	// Asyncs is the number of concurrently executing async units. Zero
	// means one per CPU.
	Asyncs int

	// MaxQueue bounds the pending queue. Zero means 128.
	MaxQueue int
}

// AsyncPool dispatches priority-queued descriptors over a fleet of async
// units. It shares the ThreadPool's dispatcher discipline but does not pin;
// descriptor affinity is ignored here.
type AsyncPool struct {
	worker *Worker
	desc   AsyncPoolDescriptor
	queue  *poolQueue
	logger *slog.Logger

	units []*AsyncTask
}

// NewAsyncPool creates and initializes an async pool.
func NewAsyncPool(desc AsyncPoolDescriptor, logger *slog.Logger) (*AsyncPool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if desc.Asyncs <= 0 {
		desc.Asyncs = runtime.NumCPU()
	}
	p := &AsyncPool{
		worker: NewWorker(logger),
		desc:   desc,
		queue:  newPoolQueue(desc.MaxQueue),
		logger: logger.With(slog.String("component", "async_pool")),
	}
	if err := p.worker.Init(WorkerDescriptor{
		Name: "async-pool",
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
func (p *AsyncPool) Start() error {
	if p.worker.Status().State == WorkerStopped {
		if err := p.worker.Init(WorkerDescriptor{Name: "async-pool", Type: WorkerEvent}, p.dispatch); err != nil {
			return err
		}
	}
	return p.worker.Start()
}

// Stop stops the dispatch worker and tears down the fleet.
func (p *AsyncPool) Stop() error { return p.worker.Stop() }

// Status returns the dispatch worker status.
func (p *AsyncPool) Status() WorkerStatus { return p.worker.Status() }

// Stats returns the dispatch accounting snapshot.
func (p *AsyncPool) Stats() PoolStats { return p.queue.stats() }

// QueueLen returns the number of pending descriptors.
func (p *AsyncPool) QueueLen() int { return p.queue.len() }

// Submit admits a descriptor at the given priority.
func (p *AsyncPool) Submit(desc Descriptor, priority int) error {
	return p.queue.submit(desc, priority, func() { p.worker.Event() })
}

func (p *AsyncPool) startUnits() error {
	p.units = make([]*AsyncTask, 0, p.desc.Asyncs)
	for i := 0; i < p.desc.Asyncs; i++ {
		unit := NewAsyncTask(p.logger)
		if err := unit.Init(); err != nil {
			p.teardown()
			return err
		}
		p.units = append(p.units, unit)
	}
	p.logger.Info("async pool units started", slog.Int("asyncs", p.desc.Asyncs))
	return nil
}

func (p *AsyncPool) teardown() {
	for _, unit := range p.units {
		unit.Stop()
		unit.Join()
	}
	p.units = nil
	p.queue.reset()
}

func (p *AsyncPool) dispatch() error {
	for !p.worker.StopRequested() {
		item, ok := p.queue.pop()
		if !ok {
			return nil
		}

		assigned := false
		for _, unit := range p.units {
			if !unit.Idle() {
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

func (p *AsyncPool) requeue(item poolItem) {
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
