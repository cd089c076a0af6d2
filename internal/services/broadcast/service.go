package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/services/registry"
)

// Sender delivers an encoded message to one connection of a single
// transport kind. It returns model.ErrConnectionGone when the connection
// is terminally closed.
type Sender interface {
	Send(ctx context.Context, id model.ConnectionID, payload []byte) error
}

// Config holds broadcast settings
type Config struct {
	// Concurrency bounds the number of parallel sends in one fan-out
	Concurrency int
}

// DefaultConfig returns sensible defaults for broadcasting
func DefaultConfig() Config {
	return Config{Concurrency: 16}
}

// Result reports per-recipient outcomes of BroadcastToMany
type Result struct {
	Successful []model.ConnectionID
	Failed     []model.ConnectionID
}

// Service delivers messages to connections, pruning any connection whose
// transport reports it gone
type Service struct {
	registry *registry.Registry
	cfg      Config
	logger   *slog.Logger

	mu      sync.RWMutex
	senders map[model.TransportKind]Sender
}

// New creates a new broadcast Service
func New(registry *registry.Registry, cfg Config, logger *slog.Logger) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	return &Service{
		registry: registry,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "broadcast")),
		senders:  make(map[model.TransportKind]Sender),
	}
}

// RegisterSender sets the sender used for connections of the given transport
func (s *Service) RegisterSender(kind model.TransportKind, sender Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.senders[kind] = sender
}

func (s *Service) sender(kind model.TransportKind) Sender {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.senders[kind]
}

// SendToOne attempts delivery to a single connection and reports whether it
// was delivered. A connection reported gone is unlinked from the registry.
func (s *Service) SendToOne(ctx context.Context, id model.ConnectionID, payload []byte) bool {
	conn, err := s.registry.Get(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrConnectionNotFound) {
			s.prune(ctx, id)
		} else {
			s.logger.Warn("failed to resolve connection",
				slog.String("connection_id", string(id)),
				slog.String("error", err.Error()),
			)
		}
		return false
	}
	return s.deliver(ctx, conn, payload)
}

func (s *Service) deliver(ctx context.Context, conn *model.Connection, payload []byte) bool {
	sender := s.sender(conn.Transport)
	if sender == nil {
		s.logger.Error("no sender for transport",
			slog.String("connection_id", string(conn.ID)),
			slog.String("transport", string(conn.Transport)),
		)
		return false
	}

	err := sender.Send(ctx, conn.ID, payload)
	if err == nil {
		return true
	}
	if errors.Is(err, model.ErrConnectionGone) {
		s.prune(ctx, conn.ID)
		return false
	}
	s.logger.Warn("failed to send message",
		slog.String("connection_id", string(conn.ID)),
		slog.String("transport", string(conn.Transport)),
		slog.String("error", err.Error()),
	)
	return false
}

func (s *Service) prune(ctx context.Context, id model.ConnectionID) {
	link, err := s.registry.Unlink(ctx, id)
	if err != nil {
		s.logger.Warn("failed to prune connection",
			slog.String("connection_id", string(id)),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Debug("pruned connection",
		slog.String("connection_id", string(id)),
		slog.String("game_code", string(link.GameCode)),
	)
}

// BroadcastToGame delivers a message to every live connection of a game,
// skipping any in exclude. Delivery is independent per recipient.
func (s *Service) BroadcastToGame(ctx context.Context, code model.GameCode, payload []byte, exclude ...model.ConnectionID) {
	conns, err := s.registry.ConnectionsForGame(ctx, code)
	if err != nil {
		s.logger.Error("failed to list connections",
			slog.String("game_code", string(code)),
			slog.String("error", err.Error()),
		)
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)
	for _, conn := range conns {
		if slices.Contains(exclude, conn.ID) {
			continue
		}
		g.Go(func() error {
			s.deliver(ctx, conn, payload)
			return nil
		})
	}
	_ = g.Wait()
}

// BroadcastToMany delivers a message to an explicit list of connections
func (s *Service) BroadcastToMany(ctx context.Context, ids []model.ConnectionID, payload []byte) Result {
	var (
		mu     sync.Mutex
		result Result
	)

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			ok := s.SendToOne(ctx, id, payload)
			mu.Lock()
			defer mu.Unlock()
			if ok {
				result.Successful = append(result.Successful, id)
			} else {
				result.Failed = append(result.Failed, id)
			}
			return nil
		})
	}
	_ = g.Wait()

	return result
}
