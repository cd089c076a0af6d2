package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/protocol"
)

// ErrSendBufferFull is returned by Send when a slow client's buffer is full.
// The message is dropped but the connection is kept.
var ErrSendBufferFull = errors.New("send buffer full")

// Opener allocates a registry connection for a new socket
type Opener interface {
	Open(ctx context.Context, transport model.TransportKind) (*model.Connection, error)
}

// Handler processes client actions and disconnects
type Handler interface {
	HandleRaw(ctx context.Context, id model.ConnectionID, data []byte) protocol.Message
	Disconnect(ctx context.Context, id model.ConnectionID)
}

// Config holds socket timing settings
type Config struct {
	// WriteWait is the time allowed to write a message to the peer
	WriteWait time.Duration
	// PongWait is the time allowed to read the next pong from the peer
	PongWait time.Duration
	// PingPeriod must be less than PongWait
	PingPeriod time.Duration
	// SendBuffer is the outgoing message buffer per client
	SendBuffer int
	// MaxMessageSize limits inbound frames
	MaxMessageSize int64
}

// DefaultConfig returns sensible defaults for socket connections
func DefaultConfig() Config {
	return Config{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		SendBuffer:     256,
		MaxMessageSize: 4096,
	}
}

// Hub owns every live socket. It is the broadcast sender for socket
// connections.
type Hub struct {
	opener   Opener
	handler  Handler
	cfg      Config
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[model.ConnectionID]*Client
}

// NewHub creates a new Hub
func NewHub(opener Opener, handler Handler, cfg Config, logger *slog.Logger) *Hub {
	return &Hub{
		opener:  opener,
		handler: handler,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are enforced by the CORS layer
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger.With(slog.String("component", "ws")),
		clients: make(map[model.ConnectionID]*Client),
	}
}

// ServeHTTP upgrades the request and serves the socket until it closes
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	// The request context ends when the handler returns; the socket
	// outlives it until readPump exits
	ctx := context.WithoutCancel(r.Context())

	record, err := h.opener.Open(ctx, model.TransportSocket)
	if err != nil {
		h.logger.Error("failed to open connection", slog.String("error", err.Error()))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "unavailable"))
		_ = conn.Close()
		return
	}

	client := newClient(h, record.ID, conn)
	h.register(client)

	go client.writePump()
	client.readPump(ctx)
}

// Send queues a payload for one socket. It returns model.ErrConnectionGone
// if the socket is no longer held by this hub.
func (h *Hub) Send(_ context.Context, id model.ConnectionID, payload []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[id]
	if !ok {
		return model.ErrConnectionGone
	}
	if !client.enqueue(payload) {
		h.logger.Warn("message dropped, client buffer full",
			slog.String("connection_id", string(id)))
		return ErrSendBufferFull
	}
	return nil
}

// ClientCount returns the number of live sockets
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close sends a close frame to every socket
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		client.closeSend()
		delete(h.clients, id)
	}
	h.logger.Info("websocket hub stopped")
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client.id] = client
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("websocket client registered",
		slog.String("connection_id", string(client.id)),
		slog.Int("total_clients", count))
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if current, ok := h.clients[client.id]; ok && current == client {
		delete(h.clients, client.id)
	}
	count := len(h.clients)
	h.mu.Unlock()

	client.closeSend()
	h.logger.Info("websocket client unregistered",
		slog.String("connection_id", string(client.id)),
		slog.Duration("connection_duration", time.Since(client.connectedAt)),
		slog.Int("total_clients", count))
}
