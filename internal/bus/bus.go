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

// Package bus is the thin in-process message seam between transports and
// the command dispatcher. External transports (the wire glue is out of the
// core's scope) publish envelopes here; the host subscribes the dispatcher
// to the command topic.
package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/substrate/pkg/result"
)

// TopicCommands carries command envelopes.
const TopicCommands = "substrate.commands"

// Envelope is one bus message.
type Envelope struct {
	// ID correlates the message across logs and traces.
	ID string

	// Topic the envelope was published on.
	Topic string

	// Command is the short command name for command envelopes.
	Command string

	// Payload carries the message body.
	Payload map[string]any

	// PublishedAt is the publish timestamp.
	PublishedAt time.Time
}

// Bus is an in-process topic publisher. Subscribers receive on buffered
// channels; a subscriber that stops draining loses messages rather than
// blocking the publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]chan Envelope
	closed bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[string][]chan Envelope)}
}

// Subscribe returns a channel receiving envelopes for the topic.
func (b *Bus) Subscribe(topic string) (<-chan Envelope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, result.New(result.InvalidState, "bus is closed")
	}
	ch := make(chan Envelope, 64)
	b.subs[topic] = append(b.subs[topic], ch)
	return ch, nil
}

// Publish delivers an envelope to every subscriber of the topic. The
// envelope is stamped with an id and timestamp if it has none.
func (b *Bus) Publish(topic string, env Envelope) error {
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	if env.PublishedAt.IsZero() {
		env.PublishedAt = time.Now()
	}
	env.Topic = topic

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return result.New(result.InvalidState, "bus is closed")
	}
	for _, ch := range b.subs[topic] {
		select {
		case ch <- env:
		default:
			// Slow subscriber: drop rather than block the publisher.
		}
	}
	return nil
}

// PublishCommand publishes a command envelope on the command topic.
func (b *Bus) PublishCommand(command string, args map[string]any) error {
	return b.Publish(TopicCommands, Envelope{Command: command, Payload: args})
}

// Close closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, chans := range b.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	b.subs = make(map[string][]chan Envelope)
}
