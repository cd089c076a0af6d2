package model

import "time"

// GameCode is the short human-shareable identifier of a game
type GameCode string

// GameStatus represents the lifecycle phase of a game
type GameStatus string

const (
	GameStatusWaiting  GameStatus = "waiting"  // Roster open, nobody has rolled
	GameStatusPlaying  GameStatus = "playing"  // Race in progress
	GameStatusFinished GameStatus = "finished" // Someone reached the last cell
)

// CanTransitionTo reports whether moving from s to next is a legal step.
// Status only ever moves forward one phase at a time.
func (s GameStatus) CanTransitionTo(next GameStatus) bool {
	switch s {
	case GameStatusWaiting:
		return next == GameStatusPlaying
	case GameStatusPlaying:
		return next == GameStatusFinished
	default:
		return false
	}
}

// Game is the authoritative per-game record
type Game struct {
	Code      GameCode
	Status    GameStatus
	CreatorID PlayerID
	Board     Board
	WinnerID  PlayerID // Empty until the game is finished
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasWinner returns true once a winner has been recorded
func (g *Game) HasWinner() bool {
	return g.WinnerID != ""
}

// IsCreator returns true if the given player created this game
func (g *Game) IsCreator(id PlayerID) bool {
	return g.CreatorID == id
}
