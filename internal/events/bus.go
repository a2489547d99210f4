/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package events carries session notifications to whoever renders them.
package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	EventNowPlaying     EventType = "now_playing"
	EventTrackFailed    EventType = "track_failed"
	EventRetryLimit     EventType = "retry_limit"
	EventSessionState   EventType = "session_state"
	EventAutoplay       EventType = "autoplay"
	EventSessionEvicted EventType = "session_evicted"
)

// All lists every event type in a stable order.
var All = []EventType{
	EventNowPlaying,
	EventTrackFailed,
	EventRetryLimit,
	EventSessionState,
	EventAutoplay,
	EventSessionEvicted,
}

// Payload generic event payload. Every session event carries "guild_id".
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Publisher is the narrow side of a bus that sessions and the registry write to.
type Publisher interface {
	Publish(eventType EventType, payload Payload)
}

// Broker is a full bus: in-process, Redis or NATS backed.
type Broker interface {
	Publisher
	Subscribe(eventType EventType) Subscriber
	Unsubscribe(eventType EventType, sub Subscriber)
	Close() error
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(EventType, Payload) {}

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 8)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. Slow subscribers miss events rather than
// stalling the publishing session.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[eventType]...)
	b.mu.RUnlock()
	for _, sub := range subs {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber and closes it. Unknown subscribers are ignored.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			b.subs[eventType] = append(subs[:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Close closes every remaining subscriber.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for eventType, subs := range b.subs {
		for _, sub := range subs {
			close(sub)
		}
		delete(b.subs, eventType)
	}
	return nil
}
