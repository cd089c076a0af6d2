package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/dependencies/clock"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/dependencies/random"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/events"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/services/board"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/storage"
)

const (
	// CodeLength is the length of generated game codes
	CodeLength = 6
	// CodeAlphabet is the characters used in game codes (avoid confusing chars)
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	// MaxNameLength is the longest allowed player name, in characters
	MaxNameLength = 20

	// StartPosition is where every token is placed when the race starts
	StartPosition = 1
)

// Config holds game rules that are fixed for the lifetime of the controller
type Config struct {
	Board model.Board
	// MoveHistoryLimit caps how many recent moves Moves returns
	MoveHistoryLimit int
}

// DefaultConfig returns the standard board and a 50 move history window
func DefaultConfig() Config {
	return Config{
		Board:            board.DefaultBoard(),
		MoveHistoryLimit: 50,
	}
}

// CreateResult is returned by Create
type CreateResult struct {
	Game   *model.Game
	Player *model.Player
}

// JoinResult is returned by Join and Rejoin
type JoinResult struct {
	Game    *model.Game
	Player  *model.Player
	Players []*model.Player
	// Existing is true when the join matched a player already in the roster
	Existing bool
}

// StateResult is a snapshot of a game and its roster
type StateResult struct {
	Game    *model.Game
	Players []*model.Player
}

// RollResult is returned by Roll
type RollResult struct {
	Game     *model.Game
	Player   *model.Player
	Move     *model.Move
	IsWinner bool
}

// Controller manages the game state machine: waiting -> playing -> finished.
// Every failure it returns is a *model.Error carrying a stable code, or an
// infrastructure error that maps to INTERNAL_ERROR.
type Controller struct {
	storage   storage.Storage
	clock     clock.Clock
	random    random.Random
	publisher events.Publisher
	cfg       Config
	logger    *slog.Logger
}

// NewController creates a new game Controller
func NewController(
	storage storage.Storage,
	clock clock.Clock,
	random random.Random,
	publisher events.Publisher,
	cfg Config,
	logger *slog.Logger,
) *Controller {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Controller{
		storage:   storage,
		clock:     clock,
		random:    random,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "game")),
	}
}

// Create starts a new game in the waiting state with the named player as creator
func (c *Controller) Create(ctx context.Context, creatorName string) (*CreateResult, error) {
	name, err := normalizeName(creatorName)
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()
	code := model.GameCode(c.random.String(CodeLength, CodeAlphabet))

	player := &model.Player{
		ID:       model.PlayerID(c.random.ID()),
		GameCode: code,
		Name:     name,
		Color:    model.Palette[0],
		Position: 0,
		JoinedAt: now,
	}

	game := &model.Game{
		Code:      code,
		Status:    model.GameStatusWaiting,
		CreatorID: player.ID,
		Board:     c.cfg.Board,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// The player is written first: a game must never be visible without its creator
	if err := c.storage.SavePlayer(ctx, player); err != nil {
		return nil, fmt.Errorf("save creator: %w", err)
	}
	if err := c.storage.SaveGame(ctx, game); err != nil {
		c.logger.Error("failed to save game",
			slog.String("game_code", string(code)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("save game: %w", err)
	}

	c.logger.Info("game created",
		slog.String("game_code", string(code)),
		slog.String("player_id", string(player.ID)),
	)
	c.publish(ctx, model.EventGameCreated, code, player.ID, nil)

	return &CreateResult{Game: game, Player: player}, nil
}

// Join adds a named player to a waiting game. A name that matches an
// existing player (ignoring case) returns that player instead of adding one.
func (c *Controller) Join(ctx context.Context, code model.GameCode, playerName string) (*JoinResult, error) {
	game, err := c.storage.GetGame(ctx, code)
	if err != nil {
		return nil, err
	}
	if game.Status != model.GameStatusWaiting {
		return nil, model.ErrGameAlreadyStarted
	}

	name, err := normalizeName(playerName)
	if err != nil {
		return nil, err
	}

	players, err := c.storage.ListPlayers(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}

	for _, p := range players {
		if strings.EqualFold(p.Name, name) {
			return &JoinResult{Game: game, Player: p, Players: players, Existing: true}, nil
		}
	}

	if len(players) >= model.MaxPlayers() {
		return nil, model.ErrGameFull
	}

	// The checks above are repeated atomically by AddPlayer, which also
	// picks the colour; another join or a start may have landed in between
	candidate := &model.Player{
		ID:       model.PlayerID(c.random.ID()),
		GameCode: code,
		Name:     name,
		Position: 0,
		JoinedAt: c.clock.Now(),
	}
	player, added, err := c.storage.AddPlayer(ctx, candidate)
	switch {
	case errors.Is(err, model.ErrStatusConflict):
		return nil, model.ErrGameAlreadyStarted
	case errors.Is(err, model.ErrGameFull), errors.Is(err, model.ErrGameNotFound):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("add player: %w", err)
	}

	players, err = c.storage.ListPlayers(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	if !added {
		return &JoinResult{Game: game, Player: player, Players: players, Existing: true}, nil
	}

	c.logger.Info("player joined",
		slog.String("game_code", string(code)),
		slog.String("player_id", string(player.ID)),
		slog.Int("player_count", len(players)),
	)
	c.publish(ctx, model.EventPlayerJoined, code, player.ID, nil)

	return &JoinResult{
		Game:    game,
		Player:  player,
		Players: players,
	}, nil
}

// Rejoin looks up an existing player by id. It is allowed in every game status.
func (c *Controller) Rejoin(ctx context.Context, code model.GameCode, playerID model.PlayerID) (*JoinResult, error) {
	state, err := c.State(ctx, code)
	if err != nil {
		return nil, err
	}

	for _, p := range state.Players {
		if p.ID == playerID {
			return &JoinResult{Game: state.Game, Player: p, Players: state.Players, Existing: true}, nil
		}
	}
	return nil, model.ErrPlayerNotFound
}

// Start moves a waiting game to playing and places every token on the start cell.
// Only the creator may start the game.
func (c *Controller) Start(ctx context.Context, code model.GameCode, playerID model.PlayerID) (*StateResult, error) {
	game, err := c.storage.GetGame(ctx, code)
	if err != nil {
		return nil, err
	}
	if !game.IsCreator(playerID) {
		return nil, model.ErrNotGameCreator
	}
	if game.Status != model.GameStatusWaiting {
		return nil, model.ErrGameAlreadyStarted
	}

	game, err = c.storage.UpdateGameStatus(ctx, code, model.GameStatusWaiting, model.GameStatusPlaying, "", c.clock.Now())
	if err != nil {
		if errors.Is(err, model.ErrStatusConflict) {
			return nil, model.ErrGameAlreadyStarted
		}
		return nil, fmt.Errorf("start game: %w", err)
	}

	players, err := c.storage.ListPlayers(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	for _, p := range players {
		if err := c.storage.UpdatePlayerPosition(ctx, code, p.ID, StartPosition); err != nil {
			return nil, fmt.Errorf("reset position: %w", err)
		}
		p.Position = StartPosition
	}

	c.logger.Info("game started",
		slog.String("game_code", string(code)),
		slog.Int("player_count", len(players)),
	)
	c.publish(ctx, model.EventGameStarted, code, playerID, nil)

	return &StateResult{Game: game, Players: players}, nil
}

// Roll draws a die value for the player and applies it. There is no turn
// order: any player may roll whenever the game is playing.
func (c *Controller) Roll(ctx context.Context, code model.GameCode, playerID model.PlayerID) (*RollResult, error) {
	game, err := c.storage.GetGame(ctx, code)
	if err != nil {
		return nil, err
	}
	if game.Status != model.GameStatusPlaying {
		return nil, model.ErrGameNotStarted
	}

	player, err := c.storage.GetPlayer(ctx, code, playerID)
	if err != nil {
		return nil, err
	}

	roll := board.RollDie(c.random)
	res := board.Resolve(player.Position, roll, game.Board)
	now := c.clock.Now()

	move := &model.Move{
		ID:               c.random.ID(),
		GameCode:         code,
		PlayerID:         player.ID,
		PlayerName:       player.Name,
		PlayerColor:      player.Color,
		DiceRoll:         roll,
		PreviousPosition: player.Position,
		NewPosition:      res.NewPosition,
		Effect:           res.Effect,
		Timestamp:        now,
	}

	err = c.storage.RecordMove(ctx, move)
	switch {
	case errors.Is(err, model.ErrStatusConflict):
		// The game finished between the status check and the write
		return nil, model.ErrGameNotStarted
	case errors.Is(err, model.ErrPlayerNotFound), errors.Is(err, model.ErrGameNotFound):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("record move: %w", err)
	}
	player.Position = res.NewPosition

	c.logger.Debug("player rolled",
		slog.String("game_code", string(code)),
		slog.String("player_id", string(player.ID)),
		slog.Int("roll", roll),
		slog.Int("from", move.PreviousPosition),
		slog.Int("to", move.NewPosition),
	)
	c.publish(ctx, model.EventPlayerMoved, code, player.ID, move)

	result := &RollResult{Game: game, Player: player, Move: move}
	if !res.IsWinner {
		return result, nil
	}

	finished, err := c.storage.UpdateGameStatus(ctx, code, model.GameStatusPlaying, model.GameStatusFinished, player.ID, now)
	if err != nil {
		if errors.Is(err, model.ErrStatusConflict) {
			// Another player's winning roll landed first; this move stands but does not win
			latest, getErr := c.storage.GetGame(ctx, code)
			if getErr != nil {
				return nil, getErr
			}
			result.Game = latest
			return result, nil
		}
		return nil, fmt.Errorf("finish game: %w", err)
	}

	result.Game = finished
	result.IsWinner = true

	c.logger.Info("game finished",
		slog.String("game_code", string(code)),
		slog.String("winner_id", string(player.ID)),
	)
	c.publish(ctx, model.EventGameFinished, code, player.ID, model.GameFinishedPayload{
		WinnerID:   player.ID,
		WinnerName: player.Name,
	})

	return result, nil
}

// State returns a game and its roster in join order
func (c *Controller) State(ctx context.Context, code model.GameCode) (*StateResult, error) {
	game, err := c.storage.GetGame(ctx, code)
	if err != nil {
		return nil, err
	}
	players, err := c.storage.ListPlayers(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	return &StateResult{Game: game, Players: players}, nil
}

// Moves returns up to limit of a game's most recent moves, oldest first.
// A non-positive limit, or one above the configured window, uses the window.
func (c *Controller) Moves(ctx context.Context, code model.GameCode, limit int) ([]*model.Move, error) {
	if _, err := c.storage.GetGame(ctx, code); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > c.cfg.MoveHistoryLimit {
		limit = c.cfg.MoveHistoryLimit
	}
	return c.storage.ListMoves(ctx, code, limit)
}

// PlayerLeft records that a player's connection went away and publishes it
func (c *Controller) PlayerLeft(ctx context.Context, code model.GameCode, playerID model.PlayerID) {
	c.publish(ctx, model.EventPlayerLeft, code, playerID, nil)
}

func (c *Controller) publish(ctx context.Context, typ model.EventType, code model.GameCode, playerID model.PlayerID, payload any) {
	event := model.Event{
		Type:      typ,
		Timestamp: c.clock.Now(),
		GameCode:  code,
		PlayerID:  playerID,
		Payload:   payload,
	}
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger.Warn("failed to publish event",
			slog.String("event_type", string(typ)),
			slog.String("game_code", string(code)),
			slog.String("error", err.Error()),
		)
	}
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return "", model.ErrInvalidPlayerName
	}
	return name, nil
}
