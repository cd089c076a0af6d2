package mocks

import (
	"context"
	"sync"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/events"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
)

// MockPublisher records published events for assertions
type MockPublisher struct {
	mu     sync.Mutex
	events []model.Event

	// Err, when set, is returned from every Publish call
	Err error
}

// Ensure MockPublisher implements Publisher
var _ events.Publisher = (*MockPublisher)(nil)

// NewMockPublisher creates a new MockPublisher
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// Publish records the event
func (p *MockPublisher) Publish(_ context.Context, event model.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of everything published so far
func (p *MockPublisher) Events() []model.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Event(nil), p.events...)
}

// Types returns the types of everything published so far, in order
func (p *MockPublisher) Types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]model.EventType, len(p.events))
	for i, e := range p.events {
		types[i] = e.Type
	}
	return types
}
