package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Message is one payload captured by the in-memory publisher.
type Message struct {
	ID    string
	Topic string
	Data  []byte
}

// Memory is a Publisher held in process memory, for tests and dry runs.
type Memory struct {
	mu       sync.Mutex
	messages []Message
}

// NewMemory builds an empty in-memory publisher.
func NewMemory() *Memory { return &Memory{} }

// Publish implements Publisher.
func (m *Memory) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	id := fmt.Sprintf("mem-%d", len(m.messages)+1)
	m.messages = append(m.messages, Message{ID: id, Topic: topic, Data: data})
	return id, nil
}

// Messages returns everything published so far.
func (m *Memory) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}
