package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/agent"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/logging"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sync agent",
		Long: `Run the sync agent in the foreground.

The agent probes the API for reachability, drains the queue periodically and
on every reconnect, and serves the local status API and event stream.

Example:
  fieldsync run
  fieldsync run --listen 127.0.0.1:9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config
			if cmd.Flags().Changed("listen") {
				cfg.ListenAddr = listen
			}

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := agent.New(ctx, cfg)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to start agent", err)
			}
			defer func() {
				if closeErr := a.Close(); closeErr != nil {
					logging.Error("Error closing agent", closeErr, nil)
				}
			}()

			if err := a.Run(ctx); err != nil {
				return WrapExitError(ExitCommandError, "agent stopped", err)
			}
			logging.Info("Agent shut down", nil)
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "status API address (empty disables it)")
	return cmd
}
