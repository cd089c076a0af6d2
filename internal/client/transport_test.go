package client

import (
	"sync"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/protocol"
)

// recorder captures transport callbacks
type recorder struct {
	mu     sync.Mutex
	states []State
	msgs   []protocol.Message
	errs   []error
}

func (r *recorder) attach(t Transport) {
	t.OnStateChange(func(s State) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.states = append(r.states, s)
	})
	t.OnMessage(func(m protocol.Message) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.msgs = append(r.msgs, m)
	})
	t.OnError(func(err error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.errs = append(r.errs, err)
	})
}

func (r *recorder) States() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func (r *recorder) Messages() []protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Message(nil), r.msgs...)
}

func (r *recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) count(s State) int {
	n := 0
	for _, got := range r.States() {
		if got == s {
			n++
		}
	}
	return n
}

func (r *recorder) terminal() bool {
	for _, err := range r.Errors() {
		if IsTerminal(err) {
			return true
		}
	}
	return false
}
