package protocol

import (
	"time"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
)

// BoardEntry is a snake or ladder on the wire
type BoardEntry struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Kind  string `json:"kind"`
}

// Board is the board definition on the wire
type Board struct {
	Size    int          `json:"size"`
	Entries []BoardEntry `json:"entries"`
}

// BoardFromModel converts model.Board
func BoardFromModel(b model.Board) Board {
	entries := make([]BoardEntry, len(b.Entries))
	for i, e := range b.Entries {
		entries[i] = BoardEntry{Start: e.Start, End: e.End, Kind: string(e.Kind)}
	}
	return Board{Size: b.Size, Entries: entries}
}

// Game is a game on the wire
type Game struct {
	Code      string    `json:"code"`
	Status    string    `json:"status"`
	CreatorID string    `json:"creatorId"`
	Board     Board     `json:"board"`
	WinnerID  string    `json:"winnerId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// GameFromModel converts model.Game
func GameFromModel(g *model.Game) Game {
	return Game{
		Code:      string(g.Code),
		Status:    string(g.Status),
		CreatorID: string(g.CreatorID),
		Board:     BoardFromModel(g.Board),
		WinnerID:  string(g.WinnerID),
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}

// Player is a player on the wire. The connection id stays server side.
type Player struct {
	ID          string    `json:"id"`
	GameCode    string    `json:"gameCode"`
	Name        string    `json:"name"`
	Color       string    `json:"color"`
	Position    int       `json:"position"`
	IsConnected bool      `json:"isConnected"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// PlayerFromModel converts model.Player
func PlayerFromModel(p *model.Player) Player {
	return Player{
		ID:          string(p.ID),
		GameCode:    string(p.GameCode),
		Name:        p.Name,
		Color:       p.Color,
		Position:    p.Position,
		IsConnected: p.IsConnected,
		JoinedAt:    p.JoinedAt,
	}
}

// PlayersFromModel converts a roster, keeping its order
func PlayersFromModel(players []*model.Player) []Player {
	out := make([]Player, len(players))
	for i, p := range players {
		out[i] = PlayerFromModel(p)
	}
	return out
}

// Effect is a snake or ladder taken during a move
type Effect struct {
	Kind string `json:"kind"`
	From int    `json:"from"`
	To   int    `json:"to"`
}

// EffectFromModel converts a model.Effect, keeping nil as nil
func EffectFromModel(e *model.Effect) *Effect {
	if e == nil {
		return nil
	}
	return &Effect{Kind: string(e.Kind), From: e.From, To: e.To}
}

// Move is a move history record on the wire
type Move struct {
	ID               string    `json:"id"`
	PlayerID         string    `json:"playerId"`
	PlayerName       string    `json:"playerName"`
	PlayerColor      string    `json:"playerColor"`
	DiceRoll         int       `json:"diceRoll"`
	PreviousPosition int       `json:"previousPosition"`
	NewPosition      int       `json:"newPosition"`
	Effect           *Effect   `json:"effect,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// MoveFromModel converts model.Move
func MoveFromModel(m *model.Move) Move {
	return Move{
		ID:               m.ID,
		PlayerID:         string(m.PlayerID),
		PlayerName:       m.PlayerName,
		PlayerColor:      m.PlayerColor,
		DiceRoll:         m.DiceRoll,
		PreviousPosition: m.PreviousPosition,
		NewPosition:      m.NewPosition,
		Effect:           EffectFromModel(m.Effect),
		Timestamp:        m.Timestamp,
	}
}

// MovesFromModel converts a move list, keeping its order
func MovesFromModel(moves []*model.Move) []Move {
	out := make([]Move, len(moves))
	for i, m := range moves {
		out[i] = MoveFromModel(m)
	}
	return out
}
