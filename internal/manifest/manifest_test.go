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

package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `
platforms: [linux-arm64, linux-amd64]
modes: [normal, production, update, calibration, maintenance]
restart_policys: [never, on_failure, always]
system:
  name: bench-rig
  description: test bench
  mode: normal
hosts:
  dashboard:
    entry: hosts/gui_qt/dashboard
subsystems:
  - name: media
    group: media
    priority: 10
    config: conf/media.yaml
    auto_start: true
    affinity: [0, 1]
    restart_policy: on_failure
    restart_delay_ms: 500
    max_retries: 3
    optional: false
  - name: telemetry
    group: services
    priority: 50
    config: conf/telemetry.yaml
    auto_start: true
    optional: true
    denied_modes: [update]
  - name: storage
    group: services
    priority: 50
    config: conf/storage.yaml
    auto_start: true
    depends_on: [telemetry]
`

func TestParseOrdersByPriority(t *testing.T) {
	m, err := Parse([]byte(sampleManifest))
	require.NoError(t, err)

	require.Len(t, m.Subsystems, 3)
	// Descending priority; the two 50s keep manifest order.
	assert.Equal(t, "telemetry", m.Subsystems[0].Name)
	assert.Equal(t, "storage", m.Subsystems[1].Name)
	assert.Equal(t, "media", m.Subsystems[2].Name)

	assert.Equal(t, "normal", m.System.Mode)
	assert.Equal(t, []int{0, 1}, m.Subsystems[2].Affinity)
	assert.Equal(t, "on_failure", m.Subsystems[2].RestartPolicy)
}

func TestParseRejectsDuplicates(t *testing.T) {
	_, err := Parse([]byte(`
subsystems:
  - name: dup
  - name: dup
`))
	assert.ErrorContains(t, err, "duplicate subsystem")
}

func TestParseRejectsUnknownDependency(t *testing.T) {
	_, err := Parse([]byte(`
subsystems:
  - name: a
    depends_on: [ghost]
`))
	assert.ErrorContains(t, err, "depends on unknown")
}

func TestParseRejectsNegativeAffinity(t *testing.T) {
	_, err := Parse([]byte(`
subsystems:
  - name: a
    affinity: [-1]
`))
	assert.ErrorContains(t, err, "negative affinity")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "system_manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleManifest), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bench-rig", m.System.Name)

	sub, ok := m.Subsystem("media")
	require.True(t, ok)
	assert.Equal(t, 10, sub.Priority)
	_, ok = m.Subsystem("missing")
	assert.False(t, ok)
}

func TestParseCommands(t *testing.T) {
	data := []byte(`
subsystem: sample
commands:
  - name: Sample
    allowed_modes: [normal]
    args:
      count: int
      label: string
    emit: [sample.done]
    description: run one sample
  - name: Reset
    allowed_modes: [normal, maintenance]
`)
	m, err := ParseCommands(data)
	require.NoError(t, err)
	assert.Equal(t, "sample", m.Subsystem)
	require.Len(t, m.Commands, 2)
	assert.Equal(t, "Sample", m.Commands[0].Name)
	assert.Equal(t, "int", m.Commands[0].Args["count"])
	assert.Equal(t, []string{"sample.done"}, m.Commands[0].Emit)
}

func TestParseCommandsRequiresSubsystem(t *testing.T) {
	_, err := ParseCommands([]byte(`commands: []`))
	assert.ErrorContains(t, err, "subsystem is required")
}
