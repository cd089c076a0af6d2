package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/protocol"
)

// errExpired means the server no longer knows our connection id
var errExpired = errors.New("connection expired")

// PollingTransport talks to the long-polling endpoints. One goroutine keeps
// a single GET outstanding; actions go out as separate POSTs.
type PollingTransport struct {
	lifecycle

	opts   Options
	http   *http.Client
	logger *slog.Logger
	retry  *retrier

	baseURL string
	session context.Context
	cancel  context.CancelFunc
	connID  string
	timer   clockwork.Timer
}

var _ Transport = (*PollingTransport)(nil)

// NewPollingTransport creates a disconnected polling transport
func NewPollingTransport(opts Options) *PollingTransport {
	opts = opts.withDefaults()
	return &PollingTransport{
		lifecycle: lifecycle{state: StateDisconnected},
		opts:      opts,
		http:      opts.HTTPClient,
		logger:    opts.Logger.With(slog.String("component", "polling-transport")),
		retry:     newRetrier(opts),
	}
}

// Connect performs the handshake against the polling base url (for example
// http://host:8080/poll) and starts polling. A failed handshake is returned
// and also retried in the background.
func (t *PollingTransport) Connect(ctx context.Context, url string) error {
	gen, ok := t.begin(func() {
		t.baseURL = strings.TrimSuffix(url, "/")
		t.session, t.cancel = context.WithCancel(context.Background())
		t.connID = ""
		t.retry.reset()
	})
	if !ok {
		return nil
	}
	return t.establish(ctx, gen)
}

// ConnectionID returns the server-side id of the current connection
func (t *PollingTransport) ConnectionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connID
}

func (t *PollingTransport) establish(ctx context.Context, gen uint64) error {
	t.mu.Lock()
	if !t.live(gen) {
		t.mu.Unlock()
		return nil
	}
	session := t.session
	t.mu.Unlock()

	hctx, cancel := withSession(ctx, session)
	defer cancel()

	id, err := t.handshake(hctx)
	if err != nil {
		terr := &TransportError{Code: CodeConnectionError, Err: err}
		t.logger.Debug("handshake failed", slog.String("error", err.Error()))
		t.report(gen, terr)
		t.scheduleRetry(gen)
		return terr
	}

	t.mu.Lock()
	if !t.live(gen) {
		t.mu.Unlock()
		return nil
	}
	t.connID = id
	t.retry.reset()
	t.mu.Unlock()

	t.logger.Debug("connected", slog.String("connection_id", id))
	t.transition(gen, StateConnected)

	go t.pollLoop(session, gen, id)
	return nil
}

func (t *PollingTransport) handshake(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.opts.RequestTimeout)
	defer cancel()

	var resp protocol.ConnectResponse
	if err := t.do(ctx, http.MethodPost, "/connect", "", nil, &resp); err != nil {
		return "", err
	}
	if resp.ConnectionID == "" {
		return "", errors.New("handshake returned no connection id")
	}
	return resp.ConnectionID, nil
}

func (t *PollingTransport) pollLoop(ctx context.Context, gen uint64, id string) {
	for {
		var resp protocol.MessagesResponse
		err := t.do(ctx, http.MethodGet, "/messages", id, nil, &resp)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			t.lost(gen, id, err)
			return
		}

		for _, raw := range resp.Messages {
			msg, err := protocol.Decode(raw)
			if err != nil {
				t.logger.Warn("undecodable message", slog.String("error", err.Error()))
				continue
			}
			t.deliver(gen, msg)
		}
	}
}

// lost handles a failed poll. An expired id is re-handshaken at once;
// any other failure waits for the backoff delay.
func (t *PollingTransport) lost(gen uint64, id string, cause error) {
	t.mu.Lock()
	if !t.live(gen) || t.connID != id {
		t.mu.Unlock()
		return
	}
	t.connID = ""
	session := t.session
	t.mu.Unlock()

	if errors.Is(cause, errExpired) {
		t.logger.Info("connection expired, reconnecting", slog.String("connection_id", id))
		t.transition(gen, StateReconnecting)
		_ = t.establish(session, gen)
		return
	}

	t.logger.Info("poll failed", slog.String("connection_id", id), slog.String("error", cause.Error()))
	t.report(gen, &TransportError{Code: CodeConnectionError, Err: cause})
	t.scheduleRetry(gen)
}

func (t *PollingTransport) scheduleRetry(gen uint64) {
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
	session := t.session
	t.timer = t.opts.Clock.AfterFunc(delay, func() {
		_ = t.establish(session, gen)
	})
}

// Disconnect aborts the outstanding poll, cancels any pending retry and
// tells the server to drop the connection
func (t *PollingTransport) Disconnect() {
	var id, base string
	t.end(func() {
		if t.cancel != nil {
			t.cancel()
		}
		if t.timer != nil {
			t.timer.Stop()
		}
		id, base = t.connID, t.baseURL
		t.connID = ""
	})

	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.opts.RequestTimeout)
	defer cancel()
	if err := t.post(ctx, base, "/disconnect", id); err != nil {
		t.logger.Debug("disconnect request failed", slog.String("error", err.Error()))
	}
}

// Send posts one action; the server's reply is delivered through OnMessage
func (t *PollingTransport) Send(ctx context.Context, action protocol.Action) error {
	t.mu.Lock()
	id, state, gen := t.connID, t.state, t.gen
	t.mu.Unlock()

	if state != StateConnected || id == "" {
		return &TransportError{Code: CodeConnectionError, Err: ErrNotConnected}
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.RequestTimeout)
	defer cancel()

	var reply json.RawMessage
	if err := t.do(ctx, http.MethodPost, "/send", id, action, &reply); err != nil {
		return &TransportError{Code: CodeConnectionError, Err: err}
	}
	msg, err := protocol.Decode(reply)
	if err != nil {
		return err
	}
	t.deliver(gen, msg)
	return nil
}

func (t *PollingTransport) post(ctx context.Context, base, path, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set(protocol.ConnectionIDHeader, id)
	resp, err := t.http.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

func (t *PollingTransport) do(ctx context.Context, method, path, id string, body, result any) error {
	t.mu.Lock()
	url := t.baseURL + path
	t.mu.Unlock()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id != "" {
		req.Header.Set(protocol.ConnectionIDHeader, id)
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return errExpired
	}
	if resp.StatusCode >= 400 {
		var errResp protocol.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error.Code != "" {
			return fmt.Errorf("%s: %s", errResp.Error.Code, errResp.Error.Message)
		}
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
