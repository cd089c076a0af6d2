package model

import "time"

// PlayerID uniquely identifies a player within a game
type PlayerID string

// Palette is the fixed list of colours handed out in join order.
// Its length is the roster capacity of a game.
var Palette = []string{
	"#e74c3c", // red
	"#3498db", // blue
	"#2ecc71", // green
	"#f1c40f", // yellow
	"#9b59b6", // purple
	"#e67e22", // orange
	"#ff6b9d", // pink
	"#1abc9c", // teal
}

// MaxPlayers is the number of players a single game can hold
func MaxPlayers() int {
	return len(Palette)
}

// Player is a participant in one game
type Player struct {
	ID           PlayerID
	GameCode     GameCode
	Name         string
	Color        string
	Position     int // 0 before the race starts, then 1..board size
	IsConnected  bool
	ConnectionID ConnectionID // Empty when not connected
	JoinedAt     time.Time
}
