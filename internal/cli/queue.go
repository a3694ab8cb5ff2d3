package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/agent"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/logging"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/models"
	syncengine "github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/sync"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/sync/queue"
)

// withStore opens the queue without probing the network.
func withStore(cmd *cobra.Command, rootOpts *RootOptions, fn func(ctx context.Context, store *queue.Store) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	database, store, err := agent.OpenStore(rootOpts.Config)
	if err != nil {
		return rootOpts.output(cmd).Error(ExitCommandError, "failed to open queue", err)
	}
	defer func() {
		if closeErr := database.Close(); closeErr != nil {
			logging.Error("Error closing database", closeErr, nil)
		}
	}()
	return fn(ctx, store)
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05")
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending actions, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.output(cmd)
			return withStore(cmd, rootOpts, func(ctx context.Context, store *queue.Store) error {
				pending, err := store.List(ctx)
				if err != nil {
					return out.Error(ExitCommandError, "failed to list queue", err)
				}
				return out.Success(pending, func(w io.Writer) { printPending(w, pending) })
			})
		},
	}
}

func printPending(w io.Writer, pending []models.PendingAction) {
	if len(pending) == 0 {
		fmt.Fprintln(w, "queue is empty")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tTARGET\tENQUEUED\tATTEMPTS\tLAST ERROR")
	for _, a := range pending {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			a.ID, a.Category, a.Target, formatMillis(a.EnqueuedAt), a.Attempts, a.LastError)
	}
	tw.Flush()
}

// NewFailedCommand creates the failed command.
func NewFailedCommand(rootOpts *RootOptions) *cobra.Command {
	var clearLog bool

	cmd := &cobra.Command{
		Use:   "failed",
		Short: "List abandoned actions",
		Long: `List actions that were abandoned after exhausting their delivery attempts
or being rejected by the server. Use --clear to acknowledge and remove them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.output(cmd)
			return withStore(cmd, rootOpts, func(ctx context.Context, store *queue.Store) error {
				failed, err := store.Failed(ctx)
				if err != nil {
					return out.Error(ExitCommandError, "failed to list abandoned actions", err)
				}
				if clearLog {
					if err := store.ClearFailed(ctx); err != nil {
						return out.Error(ExitCommandError, "failed to clear abandoned actions", err)
					}
				}
				return out.Success(failed, func(w io.Writer) {
					printFailed(w, failed)
					if clearLog && len(failed) > 0 {
						fmt.Fprintf(w, "cleared %d abandoned action(s)\n", len(failed))
					}
				})
			})
		},
	}

	cmd.Flags().BoolVar(&clearLog, "clear", false, "remove the listed actions from the log")
	return cmd
}

func printFailed(w io.Writer, failed []models.FailedAction) {
	if len(failed) == 0 {
		fmt.Fprintln(w, "no abandoned actions")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tTARGET\tABANDONED\tATTEMPTS\tREASON")
	for _, a := range failed {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			a.ID, a.Category, a.Target, formatMillis(a.AbandonedAt), a.Attempts, a.Reason)
	}
	tw.Flush()
}

// NewDrainCommand creates the drain command.
func NewDrainCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Attempt every pending action once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.output(cmd)
			return withAgent(cmd, rootOpts, func(ctx context.Context, a *agent.Agent) error {
				online := a.Monitor.IsReachable()
				summary := a.Engine.DrainOnce(ctx)
				return out.Success(summary, func(w io.Writer) { printSummary(w, online, summary) })
			})
		},
	}
}

func printSummary(w io.Writer, online bool, s syncengine.Summary) {
	if !online {
		fmt.Fprintln(w, "API unreachable, nothing attempted")
		return
	}
	if s.IsZero() {
		fmt.Fprintln(w, "nothing to deliver")
		return
	}
	fmt.Fprintf(w, "succeeded: %d  failed: %d  deferred: %d\n", s.Succeeded, s.Failed, s.Deferred)
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Discard every pending action",
		Long: `Discard every pending action, for example when the device is handed to
another user. Actions not yet delivered are lost. The abandoned-action log is
kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.output(cmd)
			if !yes {
				return out.Error(ExitCommandError, "refusing to reset", fmt.Errorf("pass --yes to confirm"))
			}
			return withStore(cmd, rootOpts, func(ctx context.Context, store *queue.Store) error {
				n, err := store.Len(ctx)
				if err != nil {
					return out.Error(ExitCommandError, "failed to read queue", err)
				}
				if err := store.Clear(ctx); err != nil {
					return out.Error(ExitCommandError, "failed to reset queue", err)
				}
				return out.Success(map[string]int{"removed": n}, func(w io.Writer) {
					fmt.Fprintf(w, "removed %d pending action(s)\n", n)
				})
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}
