// Package client is the player side of the game: transports that keep a
// realtime connection to the server, the reducer that folds server messages
// into local state, and the persisted session used to rejoin.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/protocol"
)

// State is the connection state of a Transport
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// TransportErrorCode classifies transport failures
type TransportErrorCode string

const (
	CodeConnectionError    TransportErrorCode = "CONNECTION_ERROR"
	CodeMaxRetriesExceeded TransportErrorCode = "MAX_RETRIES_EXCEEDED"
)

// ErrNotConnected is wrapped by Send when the transport has no live connection
var ErrNotConnected = errors.New("not connected")

// TransportError is reported through OnError and returned by Connect and Send
type TransportError struct {
	Code TransportErrorCode
	Err  error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTerminal reports whether the transport gave up reconnecting
func IsTerminal(err error) bool {
	var terr *TransportError
	return errors.As(err, &terr) && terr.Code == CodeMaxRetriesExceeded
}

// Transport is a realtime connection to the game server. Callbacks run one
// at a time and must not call Connect or Disconnect themselves.
type Transport interface {
	Connect(ctx context.Context, url string) error
	Disconnect()
	Send(ctx context.Context, action protocol.Action) error
	State() State

	OnMessage(fn func(protocol.Message))
	OnStateChange(fn func(State))
	OnError(fn func(error))
}

// Options tunes reconnect and keep-alive behaviour
type Options struct {
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	MaxRetries     int
	PingInterval   time.Duration
	RequestTimeout time.Duration
	WriteTimeout   time.Duration
	Clock          clockwork.Clock
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// DefaultOptions returns the default transport options
func DefaultOptions() Options {
	return Options{
		InitialDelay:   time.Second,
		MaxDelay:       30 * time.Second,
		MaxRetries:     10,
		PingInterval:   25 * time.Second,
		RequestTimeout: 10 * time.Second,
		WriteTimeout:   10 * time.Second,
		Clock:          clockwork.NewRealClock(),
		HTTPClient:     &http.Client{},
		Logger:         slog.Default(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.InitialDelay <= 0 {
		o.InitialDelay = d.InitialDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = d.MaxDelay
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = d.MaxRetries
	}
	if o.PingInterval <= 0 {
		o.PingInterval = d.PingInterval
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = d.RequestTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.Clock == nil {
		o.Clock = d.Clock
	}
	if o.HTTPClient == nil {
		o.HTTPClient = d.HTTPClient
	}
	if o.Logger == nil {
		o.Logger = d.Logger
	}
	return o
}

// lifecycle holds the state machine shared by both transports.
//
// Every connect starts a new session generation; Disconnect bumps it again,
// so goroutines and timers of an older session find themselves stale and
// deliver nothing. dmu serializes callbacks and is always taken before mu.
type lifecycle struct {
	dmu sync.Mutex
	mu  sync.Mutex

	state  State
	gen    uint64
	closed bool

	onMessage func(protocol.Message)
	onState   func(State)
	onError   func(error)
}

func (l *lifecycle) OnMessage(fn func(protocol.Message)) {
	l.dmu.Lock()
	defer l.dmu.Unlock()
	l.onMessage = fn
}

func (l *lifecycle) OnStateChange(fn func(State)) {
	l.dmu.Lock()
	defer l.dmu.Unlock()
	l.onState = fn
}

func (l *lifecycle) OnError(fn func(error)) {
	l.dmu.Lock()
	defer l.dmu.Unlock()
	l.onError = fn
}

// State returns the current connection state
func (l *lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// live must be called with mu held
func (l *lifecycle) live(gen uint64) bool {
	return !l.closed && l.gen == gen
}

// begin starts a new session. It returns false when a session is already
// running, which makes Connect idempotent.
func (l *lifecycle) begin(setup func()) (uint64, bool) {
	l.dmu.Lock()
	defer l.dmu.Unlock()

	l.mu.Lock()
	if l.state != StateDisconnected {
		l.mu.Unlock()
		return 0, false
	}
	l.gen++
	l.closed = false
	l.state = StateConnecting
	setup()
	gen := l.gen
	l.mu.Unlock()

	if l.onState != nil {
		l.onState(StateConnecting)
	}
	return gen, true
}

// end stops the current session; teardown runs with mu held
func (l *lifecycle) end(teardown func()) {
	l.dmu.Lock()
	defer l.dmu.Unlock()

	l.mu.Lock()
	l.closed = true
	l.gen++
	teardown()
	from := l.state
	l.state = StateDisconnected
	l.mu.Unlock()

	if from != StateDisconnected && l.onState != nil {
		l.onState(StateDisconnected)
	}
}

func (l *lifecycle) transition(gen uint64, to State) {
	l.dmu.Lock()
	defer l.dmu.Unlock()

	l.mu.Lock()
	if !l.live(gen) || l.state == to {
		l.mu.Unlock()
		return
	}
	l.state = to
	l.mu.Unlock()

	if l.onState != nil {
		l.onState(to)
	}
}

func (l *lifecycle) deliver(gen uint64, msg protocol.Message) {
	l.dmu.Lock()
	defer l.dmu.Unlock()

	l.mu.Lock()
	ok := l.live(gen)
	l.mu.Unlock()

	if ok && l.onMessage != nil {
		l.onMessage(msg)
	}
}

func (l *lifecycle) report(gen uint64, err error) {
	l.dmu.Lock()
	defer l.dmu.Unlock()

	l.mu.Lock()
	ok := l.live(gen)
	l.mu.Unlock()

	if ok && l.onError != nil {
		l.onError(err)
	}
}

// withSession returns a context cancelled when either ctx or session is done
func withSession(ctx, session context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(session, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}
