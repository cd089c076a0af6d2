package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream game events for the current game",
		Long: `Stay connected to the current game and print every message the server
sends: players joining and leaving, moves, the start and the winner.
The connection is re-established automatically if it drops.

Press Ctrl+C to disconnect.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
			lg, err := connectToSession(connectCtx)
			cancel()
			if err != nil {
				return err
			}
			defer lg.close()

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(viewOf(lg.gc.State()))

			var lastState string
			for {
				select {
				case <-ctx.Done():
					out.PrintMessage("Disconnected")
					return nil
				case ev := <-lg.events:
					if ev.msg != nil {
						out.PrintEvent(ev.msg)
						continue
					}
					if state := string(ev.state.Connection); state != lastState {
						lastState = state
						out.PrintConnection(ev.state)
					}
				}
			}
		},
	}
}
