package client

import (
	"slices"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/protocol"
)

// startPosition is where every piece sits once the race starts
const startPosition = 1

// GameState is the locally held view of one game
type GameState struct {
	Game            *protocol.Game
	Players         []protocol.Player
	CurrentPlayerID string
	LastMove        *protocol.PlayerMoved
	Error           *protocol.Error
	IsLoading       bool

	// Connection and TransportError mirror the transport; they never
	// touch the game fields
	Connection     State
	TransportError error
}

// Player returns the roster entry with the given id
func (s GameState) Player(id string) (protocol.Player, bool) {
	i := slices.IndexFunc(s.Players, func(p protocol.Player) bool { return p.ID == id })
	if i < 0 {
		return protocol.Player{}, false
	}
	return s.Players[i], true
}

// Me returns the local player's roster entry
func (s GameState) Me() (protocol.Player, bool) {
	return s.Player(s.CurrentPlayerID)
}

func (s GameState) clone() GameState {
	out := s
	out.Players = slices.Clone(s.Players)
	if s.Game != nil {
		g := *s.Game
		out.Game = &g
	}
	return out
}

// Reduce applies one server message to state and returns the new state.
// The input is never modified.
func Reduce(state GameState, msg protocol.Message) GameState {
	next := state.clone()

	switch m := msg.(type) {
	case protocol.JoinedGame:
		g := m.Game
		next.Game = &g
		next.Players = slices.Clone(m.Players)
		next.CurrentPlayerID = m.PlayerID
		next.LastMove = nil
		next.Error = nil
		next.IsLoading = false

	case protocol.PlayerJoined:
		next.Players = upsert(next.Players, m.Player)

	case protocol.PlayerLeft:
		for i := range next.Players {
			if next.Players[i].ID == m.PlayerID {
				next.Players[i].IsConnected = false
			}
		}

	case protocol.PlayerMoved:
		for i := range next.Players {
			if next.Players[i].ID == m.PlayerID {
				next.Players[i].Position = m.NewPosition
			}
		}
		moved := m
		next.LastMove = &moved
		next.Error = nil
		next.IsLoading = false

	case protocol.GameStarted:
		g := m.Game
		next.Game = &g
		for i := range next.Players {
			next.Players[i].Position = startPosition
		}
		next.LastMove = nil
		next.Error = nil
		next.IsLoading = false

	case protocol.GameEnded:
		if next.Game != nil {
			next.Game.Status = string(model.GameStatusFinished)
			next.Game.WinnerID = m.WinnerID
		}
		next.IsLoading = false

	case protocol.Error:
		e := m
		next.Error = &e
		next.IsLoading = false
	}

	return next
}

// upsert replaces the entry with the same id or appends p
func upsert(players []protocol.Player, p protocol.Player) []protocol.Player {
	for i := range players {
		if players[i].ID == p.ID {
			players[i] = p
			return players
		}
	}
	return append(players, p)
}
