package request

// CreateGameRequest is the request body for creating a game
type CreateGameRequest struct {
	PlayerName string `json:"player_name"`
}
