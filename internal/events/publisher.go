// Package events publishes game lifecycle events to external consumers
// such as analytics dashboards. Publishing is best effort: it never
// affects the outcome of a game operation.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
)

// Publisher sends game events somewhere outside the process
type Publisher interface {
	Publish(ctx context.Context, event model.Event) error
}

// NopPublisher discards every event
type NopPublisher struct{}

// Publish does nothing
func (NopPublisher) Publish(context.Context, model.Event) error {
	return nil
}

// Config holds NATS publisher settings
type Config struct {
	URL           string
	SubjectPrefix string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns sensible defaults for the NATS publisher
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "snl.events",
		Name:          "snakes-and-ladders",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// conn is the subset of *nats.Conn the publisher uses
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes events as JSON on core NATS subjects of the form
// <prefix>.<game code>.<event type>
type NATSPublisher struct {
	nc     conn
	prefix string
	logger *slog.Logger
}

// NewNATSPublisher connects to NATS and returns a publisher
func NewNATSPublisher(cfg Config, logger *slog.Logger) (*NATSPublisher, error) {
	logger = logger.With(slog.String("component", "events"))

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return newWithConn(nc, cfg.SubjectPrefix, logger), nil
}

func newWithConn(nc conn, prefix string, logger *slog.Logger) *NATSPublisher {
	return &NATSPublisher{nc: nc, prefix: prefix, logger: logger}
}

// Publish sends one event
func (p *NATSPublisher) Publish(ctx context.Context, event model.Event) error {
	data, err := Encode(event)
	if err != nil {
		return err
	}
	return p.nc.Publish(Subject(p.prefix, event), data)
}

// Close drains pending messages and closes the connection
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}

// envelope is the wire form of an event
type envelope struct {
	Type      model.EventType `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	GameCode  model.GameCode  `json:"gameCode"`
	PlayerID  model.PlayerID  `json:"playerId,omitempty"`
	Payload   any             `json:"payload,omitempty"`
}

// Encode serializes an event to JSON
func Encode(event model.Event) ([]byte, error) {
	return json.Marshal(envelope{
		Type:      event.Type,
		Timestamp: event.Timestamp,
		GameCode:  event.GameCode,
		PlayerID:  event.PlayerID,
		Payload:   event.Payload,
	})
}

// Subject returns the NATS subject an event is published on
func Subject(prefix string, event model.Event) string {
	return fmt.Sprintf("%s.%s.%s", prefix, event.GameCode, event.Type)
}
