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

// Package observability exposes the host's metrics and tracing: Prometheus
// collectors over pool and composition state, and the OpenTelemetry tracer
// provider used around command dispatch and lifecycle fan-outs.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tombee/substrate/pkg/task"
)

var (
	commandsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "substrate_commands_dispatched_total",
			Help: "Total dispatched commands by command name and result code",
		},
		[]string{"command", "result"},
	)

	subsystemOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "substrate_subsystem_operations_total",
			Help: "Total subsystem lifecycle operations by action and outcome",
		},
		[]string{"action", "outcome"},
	)
)

// RecordDispatch counts one command dispatch outcome.
func RecordDispatch(command, resultCode string) {
	commandsDispatched.WithLabelValues(command, resultCode).Inc()
}

// RecordSubsystemOperation counts one lifecycle fan-out child outcome.
// outcome is "ok" or "error".
func RecordSubsystemOperation(action, outcome string) {
	subsystemOperations.WithLabelValues(action, outcome).Inc()
}

// PoolCollector adapts a pool stats snapshot into Prometheus counters so
// pkg/task stays free of metric dependencies.
type PoolCollector struct {
	pool  string
	stats func() task.PoolStats

	executed *prometheus.Desc
	failed   *prometheus.Desc
	dropped  *prometheus.Desc
	queueLen *prometheus.Desc
	queue    func() int
}

// NewPoolCollector creates a collector for one pool.
func NewPoolCollector(pool string, stats func() task.PoolStats, queueLen func() int) *PoolCollector {
	labels := prometheus.Labels{"pool": pool}
	return &PoolCollector{
		pool:  pool,
		stats: stats,
		queue: queueLen,
		executed: prometheus.NewDesc("substrate_pool_executed_total",
			"Tasks handed to an execution unit", nil, labels),
		failed: prometheus.NewDesc("substrate_pool_failed_total",
			"Task executions refused by a unit", nil, labels),
		dropped: prometheus.NewDesc("substrate_pool_dropped_total",
			"Tasks dropped on overflow or after requeue retries", nil, labels),
		queueLen: prometheus.NewDesc("substrate_pool_queue_depth",
			"Descriptors currently queued", nil, labels),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.executed
	ch <- c.failed
	ch <- c.dropped
	ch <- c.queueLen
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.executed, prometheus.CounterValue, float64(s.Executed))
	ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(s.Failed))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(s.Dropped))
	ch <- prometheus.MustNewConstMetric(c.queueLen, prometheus.GaugeValue, float64(c.queue()))
}
