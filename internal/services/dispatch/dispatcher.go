package dispatch

import (
	"context"
	"log/slog"
	"strings"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/protocol"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/services/broadcast"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/services/game"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/services/registry"
)

// Dispatcher turns client actions into game operations. The originating
// connection gets the returned reply; everyone else in the game hears
// about the change through the broadcast service.
type Dispatcher struct {
	games     *game.Controller
	registry  *registry.Registry
	broadcast *broadcast.Service
	logger    *slog.Logger
}

// New creates a new Dispatcher
func New(games *game.Controller, registry *registry.Registry, broadcast *broadcast.Service, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		games:     games,
		registry:  registry,
		broadcast: broadcast,
		logger:    logger.With(slog.String("component", "dispatch")),
	}
}

// HandleRaw decodes an action and handles it
func (d *Dispatcher) HandleRaw(ctx context.Context, connID model.ConnectionID, data []byte) protocol.Message {
	action, err := protocol.DecodeAction(data)
	if err != nil {
		return protocol.NewError(err)
	}
	return d.Handle(ctx, connID, action)
}

// Handle processes one action from a connection and returns the reply for
// that connection. Failures become error replies and are never broadcast.
func (d *Dispatcher) Handle(ctx context.Context, connID model.ConnectionID, action protocol.Action) protocol.Message {
	if err := action.Validate(); err != nil {
		return protocol.NewError(err)
	}

	logger := d.logger.With(
		slog.String("connection_id", string(connID)),
		slog.String("action", string(action.Action)),
	)
	logger.Debug("handling action", slog.String("game_code", action.GameCode))

	var (
		reply protocol.Message
		err   error
	)
	code := model.GameCode(strings.ToUpper(action.GameCode))
	playerID := model.PlayerID(action.PlayerID)

	switch action.Action {
	case protocol.ActionPing:
		return protocol.NewPong()
	case protocol.ActionJoinGame:
		reply, err = d.join(ctx, connID, code, action.PlayerName)
	case protocol.ActionRejoinGame:
		reply, err = d.rejoin(ctx, connID, code, playerID)
	case protocol.ActionStartGame:
		reply, err = d.start(ctx, connID, code, playerID)
	case protocol.ActionRollDice:
		reply, err = d.roll(ctx, connID, code, playerID)
	}

	if err != nil {
		if model.CodeOf(err) == model.CodeInternalError {
			logger.Error("action failed", slog.String("error", err.Error()))
		} else {
			logger.Debug("action rejected", slog.String("code", string(model.CodeOf(err))))
		}
		return protocol.NewError(err)
	}
	return reply
}

func (d *Dispatcher) join(ctx context.Context, connID model.ConnectionID, code model.GameCode, name string) (protocol.Message, error) {
	res, err := d.games.Join(ctx, code, name)
	if err != nil {
		return nil, err
	}
	return d.linkAndAnnounce(ctx, connID, res)
}

func (d *Dispatcher) rejoin(ctx context.Context, connID model.ConnectionID, code model.GameCode, playerID model.PlayerID) (protocol.Message, error) {
	res, err := d.games.Rejoin(ctx, code, playerID)
	if err != nil {
		return nil, err
	}
	return d.linkAndAnnounce(ctx, connID, res)
}

// linkAndAnnounce binds the connection to the joined player and tells the
// rest of the game. Reconnecting players are announced too, so others see
// them as connected again.
func (d *Dispatcher) linkAndAnnounce(ctx context.Context, connID model.ConnectionID, res *game.JoinResult) (protocol.Message, error) {
	if err := d.registry.Link(ctx, connID, res.Game.Code, res.Player.ID); err != nil {
		return nil, err
	}
	res.Player.IsConnected = true
	res.Player.ConnectionID = connID

	d.send(ctx, res.Game.Code, protocol.NewPlayerJoined(res.Player), connID)

	return protocol.NewJoinedGame(res.Player.ID, res.Game, res.Players), nil
}

func (d *Dispatcher) start(ctx context.Context, connID model.ConnectionID, code model.GameCode, playerID model.PlayerID) (protocol.Message, error) {
	res, err := d.games.Start(ctx, code, playerID)
	if err != nil {
		return nil, err
	}
	msg := protocol.NewGameStarted(res.Game)
	d.send(ctx, code, msg, connID)
	return msg, nil
}

func (d *Dispatcher) roll(ctx context.Context, connID model.ConnectionID, code model.GameCode, playerID model.PlayerID) (protocol.Message, error) {
	res, err := d.games.Roll(ctx, code, playerID)
	if err != nil {
		return nil, err
	}
	msg := protocol.NewPlayerMoved(res.Move)
	d.send(ctx, code, msg, connID)

	if res.IsWinner {
		d.send(ctx, code, protocol.NewGameEnded(res.Player.ID, res.Player.Name))
	}
	return msg, nil
}

// Disconnect removes a connection and tells the game its player left,
// unless the player is still connected elsewhere
func (d *Dispatcher) Disconnect(ctx context.Context, connID model.ConnectionID) {
	link, err := d.registry.Unlink(ctx, connID)
	if err != nil {
		d.logger.Warn("failed to unlink connection",
			slog.String("connection_id", string(connID)),
			slog.String("error", err.Error()),
		)
		return
	}
	if link.IsZero() {
		return
	}

	state, err := d.games.State(ctx, link.GameCode)
	if err != nil {
		d.logger.Warn("failed to load game after disconnect",
			slog.String("game_code", string(link.GameCode)),
			slog.String("error", err.Error()),
		)
		return
	}
	for _, p := range state.Players {
		if p.ID != link.PlayerID {
			continue
		}
		if p.IsConnected {
			return
		}
		d.games.PlayerLeft(ctx, link.GameCode, p.ID)
		d.send(ctx, link.GameCode, protocol.NewPlayerLeft(p.ID, p.Name))
		return
	}
}

func (d *Dispatcher) send(ctx context.Context, code model.GameCode, msg protocol.Message, exclude ...model.ConnectionID) {
	payload, err := protocol.Encode(msg)
	if err != nil {
		d.logger.Error("failed to encode message",
			slog.String("type", string(msg.MessageType())),
			slog.String("error", err.Error()),
		)
		return
	}
	d.broadcast.BroadcastToGame(ctx, code, payload, exclude...)
}
