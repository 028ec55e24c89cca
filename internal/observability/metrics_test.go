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

package observability

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tombee/substrate/pkg/task"
)

func TestRecordDispatch(t *testing.T) {
	before := testutil.ToFloat64(commandsDispatched.With(prometheus.Labels{
		"command": "Sample", "result": "ok",
	}))
	RecordDispatch("Sample", "ok")
	after := testutil.ToFloat64(commandsDispatched.With(prometheus.Labels{
		"command": "Sample", "result": "ok",
	}))
	if after != before+1 {
		t.Errorf("expected counter to increment, before=%f after=%f", before, after)
	}
}

func TestRecordSubsystemOperation(t *testing.T) {
	before := testutil.ToFloat64(subsystemOperations.With(prometheus.Labels{
		"action": "start", "outcome": "error",
	}))
	RecordSubsystemOperation("start", "error")
	after := testutil.ToFloat64(subsystemOperations.With(prometheus.Labels{
		"action": "start", "outcome": "error",
	}))
	if after != before+1 {
		t.Errorf("expected counter to increment, before=%f after=%f", before, after)
	}
}

func TestPoolCollector(t *testing.T) {
	stats := task.PoolStats{Executed: 7, Failed: 2, Dropped: 1}
	collector := NewPoolCollector("thread",
		func() task.PoolStats { return stats },
		func() int { return 3 })

	expected := `
		# HELP substrate_pool_dropped_total Tasks dropped on overflow or after requeue retries
		# TYPE substrate_pool_dropped_total counter
		substrate_pool_dropped_total{pool="thread"} 1
		# HELP substrate_pool_queue_depth Descriptors currently queued
		# TYPE substrate_pool_queue_depth gauge
		substrate_pool_queue_depth{pool="thread"} 3
	`
	if err := testutil.CollectAndCompare(collector, strings.NewReader(expected),
		"substrate_pool_dropped_total", "substrate_pool_queue_depth"); err != nil {
		t.Error(err)
	}
}
