package response

import (
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/protocol"
)

// CreateGameResponse is the response for game creation. The player is the
// creator; clients keep its id for startGame.
type CreateGameResponse struct {
	Game   protocol.Game   `json:"game"`
	Player protocol.Player `json:"player"`
}

// CreateGameResponseFromModel builds a CreateGameResponse
func CreateGameResponseFromModel(g *model.Game, p *model.Player) CreateGameResponse {
	return CreateGameResponse{
		Game:   protocol.GameFromModel(g),
		Player: protocol.PlayerFromModel(p),
	}
}

// GameStateResponse is a game and its roster in join order
type GameStateResponse struct {
	Game    protocol.Game     `json:"game"`
	Players []protocol.Player `json:"players"`
}

// GameStateResponseFromModel builds a GameStateResponse
func GameStateResponseFromModel(g *model.Game, players []*model.Player) GameStateResponse {
	return GameStateResponse{
		Game:    protocol.GameFromModel(g),
		Players: protocol.PlayersFromModel(players),
	}
}

// MovesResponse is a window of recent moves, oldest first
type MovesResponse struct {
	Moves []protocol.Move `json:"moves"`
}

// MovesResponseFromModel builds a MovesResponse
func MovesResponseFromModel(moves []*model.Move) MovesResponse {
	return MovesResponse{Moves: protocol.MovesFromModel(moves)}
}

// HealthResponse is the response for the health check
type HealthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}
