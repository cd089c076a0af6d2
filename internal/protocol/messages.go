package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
)

// MessageType discriminates server to client messages
type MessageType string

const (
	TypeJoinedGame   MessageType = "joinedGame"
	TypePlayerJoined MessageType = "playerJoined"
	TypePlayerLeft   MessageType = "playerLeft"
	TypePlayerMoved  MessageType = "playerMoved"
	TypeGameStarted  MessageType = "gameStarted"
	TypeGameEnded    MessageType = "gameEnded"
	TypeError        MessageType = "error"
	TypePong         MessageType = "pong"
)

// Message is implemented by every server message
type Message interface {
	MessageType() MessageType
}

// JoinedGame confirms a join or rejoin and carries the full game state
type JoinedGame struct {
	Type     MessageType `json:"type"`
	PlayerID string      `json:"playerId"`
	Game     Game        `json:"game"`
	Players  []Player    `json:"players"`
}

// PlayerJoined announces a new roster entry
type PlayerJoined struct {
	Type   MessageType `json:"type"`
	Player Player      `json:"player"`
}

// PlayerLeft announces that a player's connection went away
type PlayerLeft struct {
	Type       MessageType `json:"type"`
	PlayerID   string      `json:"playerId"`
	PlayerName string      `json:"playerName"`
}

// PlayerMoved announces a resolved roll
type PlayerMoved struct {
	Type             MessageType `json:"type"`
	PlayerID         string      `json:"playerId"`
	PlayerName       string      `json:"playerName"`
	DiceRoll         int         `json:"diceRoll"`
	PreviousPosition int         `json:"previousPosition"`
	NewPosition      int         `json:"newPosition"`
	Effect           *Effect     `json:"effect,omitempty"`
}

// GameStarted announces the playing state
type GameStarted struct {
	Type MessageType `json:"type"`
	Game Game        `json:"game"`
}

// GameEnded announces the winner
type GameEnded struct {
	Type       MessageType `json:"type"`
	WinnerID   string      `json:"winnerId"`
	WinnerName string      `json:"winnerName"`
}

// Error reports a failed action to the client that sent it
type Error struct {
	Type    MessageType `json:"type"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
}

// Pong answers a ping
type Pong struct {
	Type MessageType `json:"type"`
}

func (JoinedGame) MessageType() MessageType   { return TypeJoinedGame }
func (PlayerJoined) MessageType() MessageType { return TypePlayerJoined }
func (PlayerLeft) MessageType() MessageType   { return TypePlayerLeft }
func (PlayerMoved) MessageType() MessageType  { return TypePlayerMoved }
func (GameStarted) MessageType() MessageType  { return TypeGameStarted }
func (GameEnded) MessageType() MessageType    { return TypeGameEnded }
func (Error) MessageType() MessageType        { return TypeError }
func (Pong) MessageType() MessageType         { return TypePong }

// NewJoinedGame builds a joinedGame message
func NewJoinedGame(playerID model.PlayerID, game *model.Game, players []*model.Player) JoinedGame {
	return JoinedGame{
		Type:     TypeJoinedGame,
		PlayerID: string(playerID),
		Game:     GameFromModel(game),
		Players:  PlayersFromModel(players),
	}
}

// NewPlayerJoined builds a playerJoined message
func NewPlayerJoined(p *model.Player) PlayerJoined {
	return PlayerJoined{Type: TypePlayerJoined, Player: PlayerFromModel(p)}
}

// NewPlayerLeft builds a playerLeft message
func NewPlayerLeft(id model.PlayerID, name string) PlayerLeft {
	return PlayerLeft{Type: TypePlayerLeft, PlayerID: string(id), PlayerName: name}
}

// NewPlayerMoved builds a playerMoved message from a move record
func NewPlayerMoved(m *model.Move) PlayerMoved {
	return PlayerMoved{
		Type:             TypePlayerMoved,
		PlayerID:         string(m.PlayerID),
		PlayerName:       m.PlayerName,
		DiceRoll:         m.DiceRoll,
		PreviousPosition: m.PreviousPosition,
		NewPosition:      m.NewPosition,
		Effect:           EffectFromModel(m.Effect),
	}
}

// NewGameStarted builds a gameStarted message
func NewGameStarted(game *model.Game) GameStarted {
	return GameStarted{Type: TypeGameStarted, Game: GameFromModel(game)}
}

// NewGameEnded builds a gameEnded message
func NewGameEnded(winnerID model.PlayerID, winnerName string) GameEnded {
	return GameEnded{Type: TypeGameEnded, WinnerID: string(winnerID), WinnerName: winnerName}
}

// NewError builds an error message from any error. Uncoded errors are
// reported as INTERNAL_ERROR with a generic message.
func NewError(err error) Error {
	code := model.CodeOf(err)
	msg := "internal error"
	if code != model.CodeInternalError {
		msg = err.Error()
	}
	return Error{Type: TypeError, Code: string(code), Message: msg}
}

// NewPong builds a pong message
func NewPong() Pong {
	return Pong{Type: TypePong}
}

// Encode serializes a server message
func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Decode parses a server message into its concrete type
func Decode(data []byte) (Message, error) {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	var (
		msg Message
		err error
	)
	switch head.Type {
	case TypeJoinedGame:
		msg, err = decodeAs[JoinedGame](data)
	case TypePlayerJoined:
		msg, err = decodeAs[PlayerJoined](data)
	case TypePlayerLeft:
		msg, err = decodeAs[PlayerLeft](data)
	case TypePlayerMoved:
		msg, err = decodeAs[PlayerMoved](data)
	case TypeGameStarted:
		msg, err = decodeAs[GameStarted](data)
	case TypeGameEnded:
		msg, err = decodeAs[GameEnded](data)
	case TypeError:
		msg, err = decodeAs[Error](data)
	case TypePong:
		msg, err = decodeAs[Pong](data)
	default:
		return nil, fmt.Errorf("unknown message type %q", head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", head.Type, err)
	}
	return msg, nil
}

func decodeAs[T Message](data []byte) (Message, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
