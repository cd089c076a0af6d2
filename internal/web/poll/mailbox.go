package poll

import (
	"encoding/json"
	"sync"
)

// mailbox buffers messages for one polling connection between polls
type mailbox struct {
	mu     sync.Mutex
	queue  []json.RawMessage
	limit  int
	notify chan struct{}
	closed bool
}

func newMailbox(limit int) *mailbox {
	return &mailbox{
		limit:  limit,
		notify: make(chan struct{}, 1),
	}
}

// push appends a message and reports whether the mailbox was open. The
// oldest message is dropped when the mailbox is full; a lagging poller
// resyncs through rejoin.
func (m *mailbox) push(payload []byte) (open, dropped bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, false
	}
	if len(m.queue) >= m.limit {
		m.queue = m.queue[1:]
		dropped = true
	}
	m.queue = append(m.queue, json.RawMessage(append([]byte(nil), payload...)))

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return true, dropped
}

// drain takes every buffered message
func (m *mailbox) drain() []json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.queue
	m.queue = nil
	return out
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.notify)
	}
}
