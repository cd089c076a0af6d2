package poll

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/api/apierr"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/api/response"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/protocol"
)

// Registry is the subset of the connection registry the polling server uses
type Registry interface {
	Open(ctx context.Context, transport model.TransportKind) (*model.Connection, error)
	Touch(ctx context.Context, id model.ConnectionID) error
	Get(ctx context.Context, id model.ConnectionID) (*model.Connection, error)
}

// Handler processes client actions and disconnects
type Handler interface {
	HandleRaw(ctx context.Context, id model.ConnectionID, data []byte) protocol.Message
	Disconnect(ctx context.Context, id model.ConnectionID)
}

// Config holds long-polling settings
type Config struct {
	// PollTimeout is how long a poll waits for messages before returning empty
	PollTimeout time.Duration
	// ReapInterval is how often expired connections are swept
	ReapInterval time.Duration
	// MailboxSize bounds the messages held between polls
	MailboxSize int
	// MaxBodySize limits action bodies
	MaxBodySize int64
}

// DefaultConfig returns sensible defaults for long polling
func DefaultConfig() Config {
	return Config{
		PollTimeout:  25 * time.Second,
		ReapInterval: 15 * time.Second,
		MailboxSize:  256,
		MaxBodySize:  4096,
	}
}

// Server is the server side of the long-polling transport. It is the
// broadcast sender for polling connections.
type Server struct {
	registry Registry
	handler  Handler
	clock    clockwork.Clock
	cfg      Config
	logger   *slog.Logger

	mu        sync.RWMutex
	mailboxes map[model.ConnectionID]*mailbox
}

// NewServer creates a new polling Server
func NewServer(registry Registry, handler Handler, clock clockwork.Clock, cfg Config, logger *slog.Logger) *Server {
	return &Server{
		registry:  registry,
		handler:   handler,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "poll")),
		mailboxes: make(map[model.ConnectionID]*mailbox),
	}
}

// Send queues a payload for the next poll
func (s *Server) Send(_ context.Context, id model.ConnectionID, payload []byte) error {
	box := s.mailbox(id)
	if box == nil {
		return model.ErrConnectionGone
	}
	open, dropped := box.push(payload)
	if !open {
		return model.ErrConnectionGone
	}
	if dropped {
		s.logger.Warn("oldest message dropped, mailbox full", slog.String("connection_id", string(id)))
	}
	return nil
}

// Connect handles POST /poll/connect
func (s *Server) Connect(w http.ResponseWriter, r *http.Request) {
	conn, err := s.registry.Open(r.Context(), model.TransportPolling)
	if err != nil {
		s.logger.Error("failed to open connection", slog.String("error", err.Error()))
		apierr.WriteError(w, err)
		return
	}

	s.mu.Lock()
	s.mailboxes[conn.ID] = newMailbox(s.cfg.MailboxSize)
	s.mu.Unlock()

	s.logger.Info("polling client connected", slog.String("connection_id", string(conn.ID)))
	response.JSON(w, http.StatusOK, protocol.ConnectResponse{ConnectionID: string(conn.ID)})
}

// Messages handles GET /poll/messages. It returns buffered messages at
// once, or waits up to the poll timeout for the next one.
func (s *Server) Messages(w http.ResponseWriter, r *http.Request) {
	id, box, ok := s.resolve(w, r)
	if !ok {
		return
	}

	messages := box.drain()
	if len(messages) == 0 {
		timer := s.clock.NewTimer(s.cfg.PollTimeout)
		defer timer.Stop()
	wait:
		for len(messages) == 0 {
			select {
			case _, open := <-box.notify:
				messages = box.drain()
				if !open {
					break wait
				}
			case <-timer.Chan():
				break wait
			case <-r.Context().Done():
				return
			}
		}
	}

	// Renew again so a long wait does not eat into the expiry window
	if err := s.registry.Touch(r.Context(), id); err != nil && !errors.Is(err, model.ErrConnectionNotFound) {
		s.logger.Warn("failed to renew connection", slog.String("connection_id", string(id)), slog.String("error", err.Error()))
	}

	if messages == nil {
		messages = []json.RawMessage{}
	}
	response.JSON(w, http.StatusOK, protocol.MessagesResponse{Messages: messages})
}

// SendAction handles POST /poll/send. The reply to the action is the response body.
func (s *Server) SendAction(w http.ResponseWriter, r *http.Request) {
	id, _, ok := s.resolve(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxBodySize))
	if err != nil {
		apierr.WriteError(w, apierr.NewInvalidRequestError("unreadable body"))
		return
	}

	reply := s.handler.HandleRaw(r.Context(), id, body)
	response.JSON(w, http.StatusOK, reply)
}

// Disconnect handles POST /poll/disconnect
func (s *Server) Disconnect(w http.ResponseWriter, r *http.Request) {
	id := model.ConnectionID(r.Header.Get(protocol.ConnectionIDHeader))
	if id != "" {
		s.drop(r.Context(), id)
	}
	response.NoContent(w)
}

// resolve finds the connection named by the request header and renews it.
// Unknown or expired connections get a 404 so the client re-handshakes.
func (s *Server) resolve(w http.ResponseWriter, r *http.Request) (model.ConnectionID, *mailbox, bool) {
	id := model.ConnectionID(r.Header.Get(protocol.ConnectionIDHeader))
	if id == "" {
		apierr.WriteError(w, apierr.NewInvalidRequestError("missing "+protocol.ConnectionIDHeader+" header"))
		return "", nil, false
	}

	box := s.mailbox(id)
	if box == nil {
		apierr.WriteError(w, model.ErrConnectionNotFound)
		return "", nil, false
	}

	if err := s.registry.Touch(r.Context(), id); err != nil {
		if errors.Is(err, model.ErrConnectionNotFound) {
			s.drop(r.Context(), id)
		} else {
			s.logger.Error("failed to renew connection", slog.String("connection_id", string(id)), slog.String("error", err.Error()))
		}
		apierr.WriteError(w, err)
		return "", nil, false
	}
	return id, box, true
}

func (s *Server) mailbox(id model.ConnectionID) *mailbox {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mailboxes[id]
}

// drop closes a connection's mailbox and reports the disconnect
func (s *Server) drop(ctx context.Context, id model.ConnectionID) {
	s.mu.Lock()
	box, ok := s.mailboxes[id]
	delete(s.mailboxes, id)
	s.mu.Unlock()

	if ok {
		box.close()
	}
	s.handler.Disconnect(ctx, id)
	s.logger.Info("polling client disconnected", slog.String("connection_id", string(id)))
}

// Reap drops every connection whose expiry has lapsed and returns how many
func (s *Server) Reap(ctx context.Context) int {
	s.mu.RLock()
	ids := make([]model.ConnectionID, 0, len(s.mailboxes))
	for id := range s.mailboxes {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	reaped := 0
	for _, id := range ids {
		_, err := s.registry.Get(ctx, id)
		if err == nil {
			continue
		}
		if !errors.Is(err, model.ErrConnectionNotFound) {
			s.logger.Warn("failed to check connection", slog.String("connection_id", string(id)), slog.String("error", err.Error()))
			continue
		}
		s.drop(ctx, id)
		reaped++
	}
	if reaped > 0 {
		s.logger.Info("reaped expired polling connections", slog.Int("reaped", reaped))
	}
	return reaped
}

// Run reaps expired connections every reap interval until ctx is done
func (s *Server) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			s.Reap(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Close wakes every waiting poll and forgets all mailboxes
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, box := range s.mailboxes {
		box.close()
		delete(s.mailboxes, id)
	}
}

// Count returns the number of polling connections held
func (s *Server) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.mailboxes)
}
