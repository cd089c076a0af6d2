package storage

import (
	"context"
	"time"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
)

// Storage defines the repository operations the game, registry and
// broadcast services rely on. It is the only mutation boundary for game
// state; implementations must make UpdateGameStatus a conditional write.
type Storage interface {
	// Game operations
	SaveGame(ctx context.Context, game *model.Game) error
	GetGame(ctx context.Context, code model.GameCode) (*model.Game, error)
	// UpdateGameStatus moves a game from status `from` to `to`, setting the
	// winner when non-empty. It fails with model.ErrStatusConflict if the
	// stored status is not `from`.
	UpdateGameStatus(ctx context.Context, code model.GameCode, from, to model.GameStatus, winner model.PlayerID, at time.Time) (*model.Game, error)

	// Player operations
	SavePlayer(ctx context.Context, player *model.Player) error
	GetPlayer(ctx context.Context, code model.GameCode, id model.PlayerID) (*model.Player, error)
	UpdatePlayerPosition(ctx context.Context, code model.GameCode, id model.PlayerID, position int) error
	UpdatePlayerConnection(ctx context.Context, code model.GameCode, id model.PlayerID, connID model.ConnectionID, connected bool) error
	// AddPlayer appends a new player to a waiting game as one atomic step.
	// A name already in the roster (ignoring case) returns that player with
	// added false. Otherwise the player gets the next palette colour and is
	// saved. It fails with model.ErrStatusConflict once the game has left
	// waiting and with model.ErrGameFull when the palette is used up.
	AddPlayer(ctx context.Context, player *model.Player) (stored *model.Player, added bool, err error)
	// ListPlayers returns a game's roster in join order
	ListPlayers(ctx context.Context, code model.GameCode) ([]*model.Player, error)

	// Connection operations
	SaveConnection(ctx context.Context, conn *model.Connection) error
	GetConnection(ctx context.Context, id model.ConnectionID) (*model.Connection, error)
	UpdateConnection(ctx context.Context, conn *model.Connection) error
	DeleteConnection(ctx context.Context, id model.ConnectionID) error
	ListConnections(ctx context.Context, code model.GameCode) ([]*model.Connection, error)

	// Move operations
	AppendMove(ctx context.Context, move *model.Move) error
	// RecordMove sets the mover's position and appends the move, but only
	// while the game is playing; otherwise it fails with model.ErrStatusConflict
	RecordMove(ctx context.Context, move *model.Move) error
	// ListMoves returns at most limit of the most recent moves, oldest first
	ListMoves(ctx context.Context, code model.GameCode, limit int) ([]*model.Move, error)
}
