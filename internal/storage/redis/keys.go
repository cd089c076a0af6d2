package redis

import (
	"fmt"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
)

// Key prefix for all game-related data
const keyPrefix = "snl"

// gameKey returns the Redis key for a Game
func gameKey(code model.GameCode) string {
	return fmt.Sprintf("%s:game:%s", keyPrefix, code)
}

// playerKey returns the Redis key for a Player within a game
func playerKey(code model.GameCode, id model.PlayerID) string {
	return fmt.Sprintf("%s:player:%s:%s", keyPrefix, code, id)
}

// playersIndexKey returns the Redis key for the ZSET of player ids in a game,
// scored by join time
func playersIndexKey(code model.GameCode) string {
	return fmt.Sprintf("%s:idx:players:%s", keyPrefix, code)
}

// connectionKey returns the Redis key for a Connection
func connectionKey(id model.ConnectionID) string {
	return fmt.Sprintf("%s:connection:%s", keyPrefix, id)
}

// connectionsIndexKey returns the Redis key for the SET of connection ids linked to a game
func connectionsIndexKey(code model.GameCode) string {
	return fmt.Sprintf("%s:idx:connections:%s", keyPrefix, code)
}

// movesKey returns the Redis key for the LIST of moves in a game
func movesKey(code model.GameCode) string {
	return fmt.Sprintf("%s:moves:%s", keyPrefix, code)
}
