package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/storage"
)

// Storage is an in-memory implementation of the storage interface.
// Records are copied on the way in and out so callers never share
// mutable state with the store.
type Storage struct {
	mu sync.RWMutex

	games       map[model.GameCode]*model.Game
	players     map[playerKey]*model.Player
	roster      map[model.GameCode][]model.PlayerID
	connections map[model.ConnectionID]*model.Connection
	moves       map[model.GameCode][]*model.Move
}

type playerKey struct {
	code model.GameCode
	id   model.PlayerID
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		games:       make(map[model.GameCode]*model.Game),
		players:     make(map[playerKey]*model.Player),
		roster:      make(map[model.GameCode][]model.PlayerID),
		connections: make(map[model.ConnectionID]*model.Connection),
		moves:       make(map[model.GameCode][]*model.Move),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Game operations

func (s *Storage) SaveGame(ctx context.Context, game *model.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[game.Code] = copyGame(game)
	return nil
}

func (s *Storage) GetGame(ctx context.Context, code model.GameCode) (*model.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	game, ok := s.games[code]
	if !ok {
		return nil, model.ErrGameNotFound
	}
	return copyGame(game), nil
}

func (s *Storage) UpdateGameStatus(ctx context.Context, code model.GameCode, from, to model.GameStatus, winner model.PlayerID, at time.Time) (*model.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[code]
	if !ok {
		return nil, model.ErrGameNotFound
	}
	if game.Status != from {
		return nil, model.ErrStatusConflict
	}
	game.Status = to
	if winner != "" {
		game.WinnerID = winner
	}
	game.UpdatedAt = at
	return copyGame(game), nil
}

// Player operations

func (s *Storage) SavePlayer(ctx context.Context, player *model.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := playerKey{code: player.GameCode, id: player.ID}
	if _, exists := s.players[key]; !exists {
		s.roster[player.GameCode] = append(s.roster[player.GameCode], player.ID)
	}
	p := *player
	s.players[key] = &p
	return nil
}

func (s *Storage) AddPlayer(ctx context.Context, player *model.Player) (*model.Player, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	game, ok := s.games[player.GameCode]
	if !ok {
		return nil, false, model.ErrGameNotFound
	}
	if game.Status != model.GameStatusWaiting {
		return nil, false, model.ErrStatusConflict
	}

	ids := s.roster[player.GameCode]
	for _, id := range ids {
		existing := s.players[playerKey{code: player.GameCode, id: id}]
		if strings.EqualFold(existing.Name, player.Name) {
			p := *existing
			return &p, false, nil
		}
	}
	if len(ids) >= model.MaxPlayers() {
		return nil, false, model.ErrGameFull
	}

	p := *player
	p.Color = model.Palette[len(ids)]
	s.players[playerKey{code: p.GameCode, id: p.ID}] = &p
	s.roster[p.GameCode] = append(ids, p.ID)

	out := p
	return &out, true, nil
}

func (s *Storage) GetPlayer(ctx context.Context, code model.GameCode, id model.PlayerID) (*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[playerKey{code: code, id: id}]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	p := *player
	return &p, nil
}

func (s *Storage) UpdatePlayerPosition(ctx context.Context, code model.GameCode, id model.PlayerID, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	player, ok := s.players[playerKey{code: code, id: id}]
	if !ok {
		return model.ErrPlayerNotFound
	}
	player.Position = position
	return nil
}

func (s *Storage) UpdatePlayerConnection(ctx context.Context, code model.GameCode, id model.PlayerID, connID model.ConnectionID, connected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	player, ok := s.players[playerKey{code: code, id: id}]
	if !ok {
		return model.ErrPlayerNotFound
	}
	player.ConnectionID = connID
	player.IsConnected = connected
	return nil
}

func (s *Storage) ListPlayers(ctx context.Context, code model.GameCode) ([]*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.roster[code]
	players := make([]*model.Player, 0, len(ids))
	for _, id := range ids {
		p := *s.players[playerKey{code: code, id: id}]
		players = append(players, &p)
	}
	return players, nil
}

// Connection operations

func (s *Storage) SaveConnection(ctx context.Context, conn *model.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *conn
	s.connections[conn.ID] = &c
	return nil
}

func (s *Storage) GetConnection(ctx context.Context, id model.ConnectionID) (*model.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.connections[id]
	if !ok {
		return nil, model.ErrConnectionNotFound
	}
	c := *conn
	return &c, nil
}

func (s *Storage) UpdateConnection(ctx context.Context, conn *model.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connections[conn.ID]; !ok {
		return model.ErrConnectionNotFound
	}
	c := *conn
	s.connections[conn.ID] = &c
	return nil
}

func (s *Storage) DeleteConnection(ctx context.Context, id model.ConnectionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, id)
	return nil
}

func (s *Storage) ListConnections(ctx context.Context, code model.GameCode) ([]*model.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var conns []*model.Connection
	for _, conn := range s.connections {
		if conn.GameCode == code {
			c := *conn
			conns = append(conns, &c)
		}
	}
	sort.Slice(conns, func(i, j int) bool {
		return conns[i].ConnectedAt.Before(conns[j].ConnectedAt)
	})
	return conns, nil
}

// Move operations

func (s *Storage) AppendMove(ctx context.Context, move *model.Move) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := copyMove(move)
	s.moves[move.GameCode] = append(s.moves[move.GameCode], m)
	return nil
}

func (s *Storage) RecordMove(ctx context.Context, move *model.Move) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	game, ok := s.games[move.GameCode]
	if !ok {
		return model.ErrGameNotFound
	}
	if game.Status != model.GameStatusPlaying {
		return model.ErrStatusConflict
	}
	player, ok := s.players[playerKey{code: move.GameCode, id: move.PlayerID}]
	if !ok {
		return model.ErrPlayerNotFound
	}

	player.Position = move.NewPosition
	s.moves[move.GameCode] = append(s.moves[move.GameCode], copyMove(move))
	return nil
}

func (s *Storage) ListMoves(ctx context.Context, code model.GameCode, limit int) ([]*model.Move, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.moves[code]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	moves := make([]*model.Move, 0, len(all))
	for _, m := range all {
		moves = append(moves, copyMove(m))
	}
	return moves, nil
}

func copyGame(g *model.Game) *model.Game {
	c := *g
	c.Board.Entries = append([]model.BoardEntry(nil), g.Board.Entries...)
	return &c
}

func copyMove(m *model.Move) *model.Move {
	c := *m
	if m.Effect != nil {
		e := *m.Effect
		c.Effect = &e
	}
	return &c
}
