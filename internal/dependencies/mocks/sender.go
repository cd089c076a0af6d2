package mocks

import (
	"context"
	"sync"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
)

// MockSender records payloads per connection. Connections listed in Gone
// fail with model.ErrConnectionGone, those in Failing with FailErr.
type MockSender struct {
	mu       sync.Mutex
	received map[model.ConnectionID][][]byte

	Gone    map[model.ConnectionID]bool
	Failing map[model.ConnectionID]bool
	FailErr error
}

// NewMockSender creates a new MockSender
func NewMockSender() *MockSender {
	return &MockSender{
		received: make(map[model.ConnectionID][][]byte),
		Gone:     make(map[model.ConnectionID]bool),
		Failing:  make(map[model.ConnectionID]bool),
	}
}

// Send records the payload or returns the configured failure
func (m *MockSender) Send(_ context.Context, id model.ConnectionID, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Gone[id] {
		return model.ErrConnectionGone
	}
	if m.Failing[id] {
		return m.FailErr
	}
	m.received[id] = append(m.received[id], append([]byte(nil), payload...))
	return nil
}

// MarkGone makes every later send to id fail as gone
func (m *MockSender) MarkGone(id model.ConnectionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gone[id] = true
}

// Received returns the payloads delivered to id, in order
func (m *MockSender) Received(id model.ConnectionID) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.received[id]...)
}

// Count returns the number of payloads delivered to id
func (m *MockSender) Count(id model.ConnectionID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.received[id])
}
