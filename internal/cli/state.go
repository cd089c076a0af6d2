package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
)

// codeArg returns the game code from args or the saved session
func codeArg(args []string) (string, error) {
	if len(args) > 0 {
		return strings.ToUpper(args[0]), nil
	}
	session, err := sessions.Load()
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", errors.New("no game code given and not in a game")
	}
	return session.GameCode, nil
}

func newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state [code]",
		Short: "Show a game and its players",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := codeArg(args)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			result, err := api.GetGame(ctx, code)
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(GameView{Game: &result.Game, Players: result.Players})
			return nil
		},
	}
}

func newMovesCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "moves [code]",
		Short: "List the most recent moves of a game",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := codeArg(args)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			moves, err := api.Moves(ctx, code, limit)
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(MoveList(moves))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Number of moves to show (server default when 0)")

	return cmd
}
