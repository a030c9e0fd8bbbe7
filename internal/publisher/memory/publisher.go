// Package memory records published messages for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Message is one publish call.
type Message struct {
	Key  string
	Body []byte
}

// Publisher keeps every message in order.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records a copy of body and returns a sequential id.
func (p *Publisher) Publish(_ context.Context, key string, body []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, Message{Key: key, Body: append([]byte(nil), body...)})
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns a copy of the recorded messages.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}
