package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
)

// ActionName discriminates client to server messages
type ActionName string

const (
	ActionJoinGame   ActionName = "joinGame"
	ActionStartGame  ActionName = "startGame"
	ActionRollDice   ActionName = "rollDice"
	ActionRejoinGame ActionName = "rejoinGame"
	ActionPing       ActionName = "ping"
)

// Action is a client request. Which fields are used depends on the action:
// joinGame{gameCode, playerName}, startGame/rollDice/rejoinGame{gameCode, playerId}, ping{}.
type Action struct {
	Action     ActionName `json:"action"`
	GameCode   string     `json:"gameCode,omitempty"`
	PlayerName string     `json:"playerName,omitempty"`
	PlayerID   string     `json:"playerId,omitempty"`
}

// JoinGame builds a joinGame action
func JoinGame(code model.GameCode, name string) Action {
	return Action{Action: ActionJoinGame, GameCode: string(code), PlayerName: name}
}

// StartGame builds a startGame action
func StartGame(code model.GameCode, playerID model.PlayerID) Action {
	return Action{Action: ActionStartGame, GameCode: string(code), PlayerID: string(playerID)}
}

// RollDice builds a rollDice action
func RollDice(code model.GameCode, playerID model.PlayerID) Action {
	return Action{Action: ActionRollDice, GameCode: string(code), PlayerID: string(playerID)}
}

// RejoinGame builds a rejoinGame action
func RejoinGame(code model.GameCode, playerID model.PlayerID) Action {
	return Action{Action: ActionRejoinGame, GameCode: string(code), PlayerID: string(playerID)}
}

// Ping builds a ping action
func Ping() Action {
	return Action{Action: ActionPing}
}

// Validate checks that the action is known and carries its required fields
func (a Action) Validate() error {
	switch a.Action {
	case ActionPing:
		return nil
	case ActionJoinGame:
		if a.GameCode == "" {
			return model.NewError(model.CodeInvalidRequest, "gameCode is required")
		}
		return nil
	case ActionStartGame, ActionRollDice, ActionRejoinGame:
		if a.GameCode == "" || a.PlayerID == "" {
			return model.NewError(model.CodeInvalidRequest, "gameCode and playerId are required")
		}
		return nil
	default:
		return model.NewError(model.CodeInvalidRequest, fmt.Sprintf("unknown action %q", a.Action))
	}
}

// DecodeAction parses and validates a client action
func DecodeAction(data []byte) (Action, error) {
	var a Action
	if err := json.Unmarshal(data, &a); err != nil {
		return Action{}, model.NewError(model.CodeInvalidRequest, "malformed action")
	}
	if err := a.Validate(); err != nil {
		return Action{}, err
	}
	return a, nil
}
