package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/db"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/logging"
)

// withMigrator opens the database, which applies pending migrations, and
// hands fn a migrator over it.
func withMigrator(cmd *cobra.Command, rootOpts *RootOptions, fn func(m *db.Migrator) error) error {
	out := rootOpts.output(cmd)

	database, err := db.Open(rootOpts.Config.DataDir)
	if err != nil {
		return out.Error(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := database.Close(); closeErr != nil {
			logging.Error("Error closing database", closeErr, nil)
		}
	}()

	m, err := db.NewEmbeddedMigrator(database.DB)
	if err != nil {
		return out.Error(ExitCommandError, "failed to load migrations", err)
	}
	return fn(m)
}

// NewMigrateCommand creates the migrate command group.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect or roll back the queue database schema",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newMigrateStatusCommand(rootOpts))
	cmd.AddCommand(newMigrateDownCommand(rootOpts))
	return cmd
}

func newMigrateStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List applied schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.output(cmd)
			return withMigrator(cmd, rootOpts, func(m *db.Migrator) error {
				applied, err := m.GetAppliedMigrations()
				if err != nil {
					return out.Error(ExitCommandError, "failed to read migrations", err)
				}
				return out.Success(applied, func(w io.Writer) { printMigrations(w, applied) })
			})
		},
	}
}

func printMigrations(w io.Writer, applied []db.Migration) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tDESCRIPTION\tAPPLIED")
	for _, mig := range applied {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", mig.Version, mig.Description, mig.AppliedAt.Local().Format("2006-01-02 15:04:05"))
	}
	tw.Flush()
}

func newMigrateDownCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the newest schema migration",
		Long: `Roll back the newest schema migration, for example before reinstalling an
older fieldsync release. Tables created by that migration are dropped with
their contents. Any later fieldsync command applies the migration again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.output(cmd)
			if !yes {
				return out.Error(ExitCommandError, "refusing to roll back", fmt.Errorf("pass --yes to confirm"))
			}
			return withMigrator(cmd, rootOpts, func(m *db.Migrator) error {
				from, err := m.CurrentVersion()
				if err != nil {
					return out.Error(ExitCommandError, "failed to read schema version", err)
				}
				if err := m.Down(); err != nil {
					return out.Error(ExitCommandError, "failed to roll back", err)
				}
				to, err := m.CurrentVersion()
				if err != nil {
					return out.Error(ExitCommandError, "failed to read schema version", err)
				}
				logging.Warn("Schema migration rolled back", map[string]interface{}{"from": from, "to": to})
				return out.Success(map[string]int{"from": from, "to": to}, func(w io.Writer) {
					fmt.Fprintf(w, "rolled back schema version %d, now at %d\n", from, to)
				})
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the rollback")
	return cmd
}
