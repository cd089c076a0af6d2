package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/client"
)

var (
	cfg      *Config
	api      *client.APIClient
	sessions client.SessionStore
	logger   *slog.Logger
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "snl",
		Short: "Play snakes and ladders from the terminal",
		Long: `snl is a terminal client for the snakes and ladders race server.

Create a game, share its code, and race: there are no turns, every player
rolls whenever they like. The current game is remembered in a session file
so later commands and reconnects pick up where you left off.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}

			level := slog.LevelWarn
			var w io.Writer = io.Discard
			if cfg.Verbose {
				level = slog.LevelDebug
				w = cmd.ErrOrStderr()
			}
			logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))

			api = client.NewAPIClient(cfg.ServerURL, nil)
			sessions = client.NewFileSessionStore(cfg.SessionFile)
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL (env: SNL_SERVER)")
	rootCmd.PersistentFlags().StringVar(&cfg.Transport, "transport", cfg.Transport, "Realtime transport: socket, polling (env: SNL_TRANSPORT)")
	rootCmd.PersistentFlags().StringVar(&cfg.SessionFile, "session-file", cfg.SessionFile, "Session file path (env: SNL_SESSION_FILE)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "How long to wait for the server to answer")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose output")

	// Add subcommands
	rootCmd.AddCommand(newCreateCmd())
	rootCmd.AddCommand(newJoinCmd())
	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newRollCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newStateCmd())
	rootCmd.AddCommand(newMovesCmd())
	rootCmd.AddCommand(newLeaveCmd())
	rootCmd.AddCommand(newHealthCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
