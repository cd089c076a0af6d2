package model

import "time"

// Move is an append-only record of one die roll
type Move struct {
	ID               string
	GameCode         GameCode
	PlayerID         PlayerID
	PlayerName       string
	PlayerColor      string
	DiceRoll         int
	PreviousPosition int
	NewPosition      int
	Effect           *Effect // Nil when no snake or ladder was taken
	Timestamp        time.Time
}
