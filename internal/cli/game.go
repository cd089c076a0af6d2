package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/client"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/protocol"
)

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), cfg.Timeout)
}

func newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <player-name>",
		Short: "Create a new game and become its creator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			gc, _, err := newGameClient()
			if err != nil {
				return err
			}
			session, err := gc.CreateAndJoin(ctx, args[0])
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(*session)
			return nil
		},
	}
}

func newJoinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <code> <player-name>",
		Short: "Join a waiting game",
		Long: `Join a game that has not started yet. Joining again under the same
name (ignoring case) returns the existing player instead of adding one.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			if err := sessions.Clear(); err != nil {
				return err
			}
			lg, err := connect(ctx)
			if err != nil {
				return err
			}
			defer lg.close()

			if err := lg.gc.JoinGame(ctx, args[0], args[1]); err != nil {
				return err
			}
			if _, err := lg.await(ctx, isType[protocol.JoinedGame]); err != nil {
				return err
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(viewOf(lg.gc.State()))
			return nil
		},
	}
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the current game (creator only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			lg, err := connectToSession(ctx)
			if err != nil {
				return err
			}
			defer lg.close()

			if err := lg.gc.StartGame(ctx); err != nil {
				return err
			}
			if _, err := lg.await(ctx, isType[protocol.GameStarted]); err != nil {
				return err
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(viewOf(lg.gc.State()))
			return nil
		},
	}
}

func newRollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roll",
		Short: "Roll the die and move",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			lg, err := connectToSession(ctx)
			if err != nil {
				return err
			}
			defer lg.close()

			me := lg.gc.State().CurrentPlayerID
			if err := lg.gc.RollDice(ctx); err != nil {
				return err
			}
			msg, err := lg.await(ctx, func(msg protocol.Message) bool {
				moved, ok := msg.(protocol.PlayerMoved)
				return ok && moved.PlayerID == me
			})
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(newRoll(msg.(protocol.PlayerMoved), lg.gc.State()))
			return nil
		},
	}
}

func newLeaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leave",
		Short: "Forget the current game",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gc, _, err := newGameClient()
			if err != nil {
				return err
			}
			if err := gc.Leave(); err != nil {
				return err
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.PrintMessage("Left the game")
			return nil
		},
	}
}

// connectToSession connects and rejoins the saved game
func connectToSession(ctx context.Context) (*liveGame, error) {
	session, err := sessions.Load()
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errors.New("not in a game: run create or join first")
	}
	return connect(ctx)
}

// Roll is the result of the roll command
type Roll struct {
	Move protocol.PlayerMoved `json:"move"`
	Won  bool                 `json:"won"`
}

func newRoll(move protocol.PlayerMoved, state client.GameState) Roll {
	return Roll{
		Move: move,
		Won:  state.Game != nil && move.NewPosition == state.Game.Board.Size,
	}
}

// GameView is the printable form of the local game state
type GameView struct {
	PlayerID string            `json:"playerId,omitempty"`
	Game     *protocol.Game    `json:"game"`
	Players  []protocol.Player `json:"players"`
}

func viewOf(state client.GameState) GameView {
	return GameView{PlayerID: state.CurrentPlayerID, Game: state.Game, Players: state.Players}
}
