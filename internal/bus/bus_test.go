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

package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	defer b.Close()

	ch, err := b.Subscribe(TopicCommands)
	require.NoError(t, err)

	require.NoError(t, b.PublishCommand("Sample", map[string]any{"count": 3}))

	select {
	case env := <-ch:
		assert.Equal(t, "Sample", env.Command)
		assert.Equal(t, TopicCommands, env.Topic)
		assert.NotEmpty(t, env.ID)
		assert.False(t, env.PublishedAt.IsZero())
		assert.Equal(t, 3, env.Payload["count"])
	case <-time.After(time.Second):
		t.Fatal("no envelope delivered")
	}
}

func TestPublishToMultipleSubscribers(t *testing.T) {
	b := New()
	defer b.Close()

	a, _ := b.Subscribe("t")
	c, _ := b.Subscribe("t")

	require.NoError(t, b.Publish("t", Envelope{Command: "x"}))
	assert.Equal(t, "x", (<-a).Command)
	assert.Equal(t, "x", (<-c).Command)
}

func TestPublishUnrelatedTopic(t *testing.T) {
	b := New()
	defer b.Close()

	ch, _ := b.Subscribe("a")
	require.NoError(t, b.Publish("b", Envelope{Command: "x"}))

	select {
	case <-ch:
		t.Fatal("subscriber must not receive other topics")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestClosedBus(t *testing.T) {
	b := New()
	ch, _ := b.Subscribe("t")
	b.Close()

	_, open := <-ch
	assert.False(t, open, "subscriber channel must close")
	assert.Error(t, b.Publish("t", Envelope{}))
	_, err := b.Subscribe("t")
	assert.Error(t, err)
	b.Close() // idempotent
}
