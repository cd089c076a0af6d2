package model

import "time"

// ConnectionID is an opaque identifier for one client network link
type ConnectionID string

// TransportKind identifies how a client is connected
type TransportKind string

const (
	TransportSocket  TransportKind = "socket"
	TransportPolling TransportKind = "polling"
)

// Connection is a client link, optionally bound to a player in a game.
// Polling connections carry an expiry that each poll renews.
type Connection struct {
	ID          ConnectionID
	Transport   TransportKind
	GameCode    GameCode // Empty until linked
	PlayerID    PlayerID // Empty until linked
	ConnectedAt time.Time
	ExpiresAt   time.Time // Zero means no expiry
}

// IsLinked returns true when the connection is bound to a player
func (c *Connection) IsLinked() bool {
	return c.GameCode != "" && c.PlayerID != ""
}

// Expired reports whether a sliding expiry has lapsed at now
func (c *Connection) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}
