package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/protocol"
)

// Client is one live socket
type Client struct {
	hub         *Hub
	id          model.ConnectionID
	conn        *websocket.Conn
	connectedAt time.Time

	mu     sync.RWMutex
	send   chan []byte
	closed bool
}

func newClient(hub *Hub, id model.ConnectionID, conn *websocket.Conn) *Client {
	return &Client{
		hub:         hub,
		id:          id,
		conn:        conn,
		connectedAt: time.Now(),
		send:        make(chan []byte, hub.cfg.SendBuffer),
	}
}

// enqueue adds a payload to the send buffer without blocking
func (c *Client) enqueue(payload []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump reads actions until the socket fails, then cleans up
func (c *Client) readPump(ctx context.Context) {
	cfg := c.hub.cfg
	logger := c.hub.logger.With(slog.String("connection_id", string(c.id)))

	defer func() {
		c.hub.unregister(c)
		c.hub.handler.Disconnect(ctx, c.id)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", slog.String("error", err.Error()))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		// Any inbound traffic proves liveness
		_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))

		reply := c.hub.handler.HandleRaw(ctx, c.id, data)
		payload, err := protocol.Encode(reply)
		if err != nil {
			logger.Error("failed to encode reply", slog.String("error", err.Error()))
			continue
		}
		if !c.enqueue(payload) {
			logger.Warn("reply dropped, client buffer full")
		}
	}
}

// writePump drains the send buffer and pings the peer
func (c *Client) writePump() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
