// Package memory records run events in memory. It backs the events publisher
// sink when Pub/Sub is not configured, and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// DefaultRetain bounds the messages kept by New.
const DefaultRetain = 256

// Publisher keeps the most recent published payloads.
type Publisher struct {
	mu       sync.RWMutex
	retain   int
	seq      int
	messages []PublishedMessage
}

// PublishedMessage is one Publish call.
type PublishedMessage struct {
	ID      string
	Topic   string
	Payload any
}

// New returns an empty Publisher that keeps DefaultRetain messages.
func New() *Publisher {
	return NewWithRetention(DefaultRetain)
}

// NewWithRetention returns a Publisher that drops the oldest message once
// more than retain are stored. retain <= 0 keeps everything.
func NewWithRetention(retain int) *Publisher {
	return &Publisher{retain: retain}
}

// Publish records the payload and returns a sequential ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	id := fmt.Sprintf("memory-%d", p.seq)
	p.messages = append(p.messages, PublishedMessage{ID: id, Topic: topic, Payload: payload})
	if p.retain > 0 && len(p.messages) > p.retain {
		p.messages = append(p.messages[:0:0], p.messages[len(p.messages)-p.retain:]...)
	}
	return id, nil
}

// Messages returns a copy of the retained publishes, oldest first.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]PublishedMessage(nil), p.messages...)
}
