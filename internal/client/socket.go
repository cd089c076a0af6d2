package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/protocol"
)

// SocketTransport keeps a websocket open to the server, pinging while
// connected and reconnecting with backoff when the socket drops
type SocketTransport struct {
	lifecycle

	opts   Options
	dialer *websocket.Dialer
	logger *slog.Logger
	retry  *retrier

	url      string
	session  context.Context
	cancel   context.CancelFunc
	conn     *websocket.Conn
	stopConn context.CancelFunc
	timer    clockwork.Timer

	writeMu sync.Mutex
}

var _ Transport = (*SocketTransport)(nil)

// NewSocketTransport creates a disconnected socket transport
func NewSocketTransport(opts Options) *SocketTransport {
	opts = opts.withDefaults()
	return &SocketTransport{
		lifecycle: lifecycle{state: StateDisconnected},
		opts:      opts,
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.RequestTimeout,
		},
		logger: opts.Logger.With(slog.String("component", "socket-transport")),
		retry:  newRetrier(opts),
	}
}

// Connect dials url. A failed first dial is returned and also retried in
// the background. Calling Connect on a live transport does nothing.
func (t *SocketTransport) Connect(ctx context.Context, url string) error {
	gen, ok := t.begin(func() {
		t.url = url
		t.session, t.cancel = context.WithCancel(context.Background())
		t.retry.reset()
	})
	if !ok {
		return nil
	}
	return t.dial(ctx, gen)
}

func (t *SocketTransport) dial(ctx context.Context, gen uint64) error {
	t.mu.Lock()
	if !t.live(gen) {
		t.mu.Unlock()
		return nil
	}
	url, session := t.url, t.session
	t.mu.Unlock()

	dctx, cancel := withSession(ctx, session)
	defer cancel()

	conn, _, err := t.dialer.DialContext(dctx, url, nil)
	if err != nil {
		terr := &TransportError{Code: CodeConnectionError, Err: err}
		t.logger.Debug("dial failed", slog.String("url", url), slog.String("error", err.Error()))
		t.report(gen, terr)
		t.scheduleReconnect(gen)
		return terr
	}

	t.mu.Lock()
	if !t.live(gen) {
		t.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	connCtx, stop := context.WithCancel(t.session)
	t.conn = conn
	t.stopConn = stop
	t.retry.reset()
	t.mu.Unlock()

	t.logger.Debug("connected", slog.String("url", url))
	t.transition(gen, StateConnected)

	go t.readLoop(conn, gen)
	go t.pingLoop(connCtx)
	return nil
}

func (t *SocketTransport) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.dropped(conn, gen, err)
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			t.logger.Warn("undecodable message", slog.String("error", err.Error()))
			continue
		}
		t.deliver(gen, msg)
	}
}

func (t *SocketTransport) pingLoop(ctx context.Context) {
	ticker := t.opts.Clock.NewTicker(t.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if t.State() != StateConnected {
				continue
			}
			if err := t.Send(ctx, protocol.Ping()); err != nil {
				t.logger.Debug("ping failed", slog.String("error", err.Error()))
			}
		}
	}
}

// dropped handles a socket that closed without Disconnect being called
func (t *SocketTransport) dropped(conn *websocket.Conn, gen uint64, cause error) {
	t.mu.Lock()
	if !t.live(gen) || t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	t.stopConn()
	t.mu.Unlock()

	_ = conn.Close()
	t.logger.Info("connection lost", slog.String("error", cause.Error()))
	t.report(gen, &TransportError{Code: CodeConnectionError, Err: cause})
	t.scheduleReconnect(gen)
}

func (t *SocketTransport) scheduleReconnect(gen uint64) {
	t.mu.Lock()
	if !t.live(gen) {
		t.mu.Unlock()
		return
	}
	delay, ok := t.retry.next()
	attempts := t.retry.attempts
	t.mu.Unlock()

	if !ok {
		t.logger.Warn("giving up reconnecting", slog.Int("attempts", attempts))
		t.transition(gen, StateDisconnected)
		t.report(gen, &TransportError{
			Code: CodeMaxRetriesExceeded,
			Err:  fmt.Errorf("unable to reconnect after %d attempts", attempts),
		})
		return
	}

	t.transition(gen, StateReconnecting)

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.live(gen) {
		return
	}
	t.logger.Debug("reconnect scheduled", slog.Int("attempt", attempts), slog.Duration("delay", delay))
	t.timer = t.opts.Clock.AfterFunc(delay, func() {
		_ = t.dial(context.Background(), gen)
	})
}

// Disconnect closes the socket and cancels any pending reconnect. No
// callback fires for this session once Disconnect returns.
func (t *SocketTransport) Disconnect() {
	var conn *websocket.Conn
	t.end(func() {
		if t.cancel != nil {
			t.cancel()
		}
		if t.timer != nil {
			t.timer.Stop()
		}
		if t.stopConn != nil {
			t.stopConn()
		}
		conn = t.conn
		t.conn = nil
	})

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	}
}

// Send writes one action to the socket
func (t *SocketTransport) Send(ctx context.Context, action protocol.Action) error {
	t.mu.Lock()
	conn, state := t.conn, t.state
	t.mu.Unlock()

	if state != StateConnected || conn == nil {
		return &TransportError{Code: CodeConnectionError, Err: ErrNotConnected}
	}

	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("encode action: %w", err)
	}

	deadline := time.Now().Add(t.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &TransportError{Code: CodeConnectionError, Err: err}
	}
	return nil
}
