package model

import "time"

// EventType identifies the type of game event published to external consumers
type EventType string

const (
	EventGameCreated  EventType = "game.created"
	EventPlayerJoined EventType = "player.joined"
	EventPlayerLeft   EventType = "player.left"
	EventGameStarted  EventType = "game.started"
	EventPlayerMoved  EventType = "player.moved"
	EventGameFinished EventType = "game.finished"
)

// Event is the envelope for all game events
type Event struct {
	Type      EventType
	Timestamp time.Time
	GameCode  GameCode
	PlayerID  PlayerID // The player who triggered or is affected
	Payload   any      // Type-specific data
}

// GameFinishedPayload contains data for game finished events
type GameFinishedPayload struct {
	WinnerID   PlayerID
	WinnerName string
}
