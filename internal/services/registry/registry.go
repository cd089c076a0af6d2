package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/dependencies/clock"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/dependencies/random"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/storage"
)

// Config holds connection registry settings
type Config struct {
	// PollingTTL is how long a polling connection lives without a poll
	PollingTTL time.Duration
}

// DefaultConfig returns sensible defaults for the registry
func DefaultConfig() Config {
	return Config{
		PollingTTL: 60 * time.Second,
	}
}

// Link is the (game, player) pair a connection is bound to.
// The zero Link means the connection is not bound.
type Link struct {
	GameCode model.GameCode
	PlayerID model.PlayerID
}

// IsZero returns true for an unbound link
func (l Link) IsZero() bool {
	return l.GameCode == "" && l.PlayerID == ""
}

// Registry maps connections to the game and player they speak for. Player
// connectivity flags are kept in step with the links.
type Registry struct {
	storage storage.Storage
	clock   clock.Clock
	random  random.Random
	cfg     Config
	logger  *slog.Logger
}

// New creates a new Registry
func New(storage storage.Storage, clock clock.Clock, random random.Random, cfg Config, logger *slog.Logger) *Registry {
	return &Registry{
		storage: storage,
		clock:   clock,
		random:  random,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "registry")),
	}
}

// Open records a new, unbound connection
func (r *Registry) Open(ctx context.Context, transport model.TransportKind) (*model.Connection, error) {
	now := r.clock.Now()
	conn := &model.Connection{
		ID:          model.ConnectionID(r.random.ID()),
		Transport:   transport,
		ConnectedAt: now,
	}
	if transport == model.TransportPolling {
		conn.ExpiresAt = now.Add(r.cfg.PollingTTL)
	}

	if err := r.storage.SaveConnection(ctx, conn); err != nil {
		return nil, fmt.Errorf("save connection: %w", err)
	}

	r.logger.Debug("connection opened",
		slog.String("connection_id", string(conn.ID)),
		slog.String("transport", string(transport)),
	)
	return conn, nil
}

// Get returns a live connection
func (r *Registry) Get(ctx context.Context, id model.ConnectionID) (*model.Connection, error) {
	conn, err := r.storage.GetConnection(ctx, id)
	if err != nil {
		return nil, err
	}
	if conn.Expired(r.clock.Now()) {
		return nil, model.ErrConnectionNotFound
	}
	return conn, nil
}

// Link binds a connection to a player and marks the player connected.
// If the connection was bound to a different player, that player is
// released first.
func (r *Registry) Link(ctx context.Context, id model.ConnectionID, code model.GameCode, playerID model.PlayerID) error {
	conn, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	previous := Link{GameCode: conn.GameCode, PlayerID: conn.PlayerID}
	next := Link{GameCode: code, PlayerID: playerID}
	if !previous.IsZero() && previous != next {
		if err := r.release(ctx, id, previous); err != nil {
			return err
		}
	}

	conn.GameCode = code
	conn.PlayerID = playerID
	if err := r.storage.UpdateConnection(ctx, conn); err != nil {
		return fmt.Errorf("update connection: %w", err)
	}
	if err := r.storage.UpdatePlayerConnection(ctx, code, playerID, id, true); err != nil {
		return err
	}

	r.logger.Debug("connection linked",
		slog.String("connection_id", string(id)),
		slog.String("game_code", string(code)),
		slog.String("player_id", string(playerID)),
	)
	return nil
}

// Unlink removes a connection and returns the link it held. The player is
// marked disconnected before the connection record is deleted, so a player
// never points at a connection that no longer exists. Unlinking an unknown
// connection is not an error.
func (r *Registry) Unlink(ctx context.Context, id model.ConnectionID) (Link, error) {
	conn, err := r.storage.GetConnection(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrConnectionNotFound) {
			return Link{}, nil
		}
		return Link{}, err
	}

	link := Link{GameCode: conn.GameCode, PlayerID: conn.PlayerID}
	if !link.IsZero() {
		if err := r.release(ctx, id, link); err != nil {
			return Link{}, err
		}
	}

	if err := r.storage.DeleteConnection(ctx, id); err != nil {
		return Link{}, fmt.Errorf("delete connection: %w", err)
	}

	r.logger.Debug("connection closed",
		slog.String("connection_id", string(id)),
		slog.String("game_code", string(link.GameCode)),
	)
	return link, nil
}

// release clears a player's connectivity, but only if the player still
// points at this connection; a newer connection for the player wins
func (r *Registry) release(ctx context.Context, id model.ConnectionID, link Link) error {
	player, err := r.storage.GetPlayer(ctx, link.GameCode, link.PlayerID)
	if err != nil {
		if errors.Is(err, model.ErrPlayerNotFound) {
			return nil
		}
		return err
	}
	if player.ConnectionID != id {
		return nil
	}
	return r.storage.UpdatePlayerConnection(ctx, link.GameCode, link.PlayerID, "", false)
}

// Lookup returns the link held by a live connection
func (r *Registry) Lookup(ctx context.Context, id model.ConnectionID) (Link, error) {
	conn, err := r.Get(ctx, id)
	if err != nil {
		return Link{}, err
	}
	return Link{GameCode: conn.GameCode, PlayerID: conn.PlayerID}, nil
}

// ConnectionsForGame returns every live connection linked to a game
func (r *Registry) ConnectionsForGame(ctx context.Context, code model.GameCode) ([]*model.Connection, error) {
	conns, err := r.storage.ListConnections(ctx, code)
	if err != nil {
		return nil, err
	}
	now := r.clock.Now()
	live := conns[:0]
	for _, c := range conns {
		if !c.Expired(now) {
			live = append(live, c)
		}
	}
	return live, nil
}

// ListForGame returns the ids of every live connection linked to a game
func (r *Registry) ListForGame(ctx context.Context, code model.GameCode) ([]model.ConnectionID, error) {
	conns, err := r.ConnectionsForGame(ctx, code)
	if err != nil {
		return nil, err
	}
	ids := make([]model.ConnectionID, len(conns))
	for i, c := range conns {
		ids[i] = c.ID
	}
	return ids, nil
}

// Touch renews a polling connection's expiry. It fails with
// model.ErrConnectionNotFound once the connection has expired.
func (r *Registry) Touch(ctx context.Context, id model.ConnectionID) error {
	conn, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if conn.Transport != model.TransportPolling {
		return nil
	}
	conn.ExpiresAt = r.clock.Now().Add(r.cfg.PollingTTL)
	return r.storage.UpdateConnection(ctx, conn)
}
