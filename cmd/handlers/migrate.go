package handlers

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"techdigest/internal/persistence"
)

// NewMigrateCmd creates the migrate command for database migrations
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Manage database schema migrations.

Subcommands:
  up       Apply all pending migrations
  status   Show migration status
  rollback Roll back the last migration record (use with caution!)

Migrations are embedded per dialect (PostgreSQL and SQLite) and tracked in
the schema_migrations table. The stage commands apply pending migrations
automatically; use these for inspection and manual control.

Examples:
  techdigest migrate up
  techdigest migrate status
  techdigest migrate rollback --force`,
	}

	cmd.AddCommand(newMigrateUpCmd())
	cmd.AddCommand(newMigrateStatusCmd())
	cmd.AddCommand(newMigrateRollbackCmd())

	return cmd
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *persistence.MigrationManager) error {
				if err := m.Migrate(ctx); err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("✅ All migrations applied successfully"))
				return nil
			})
		},
	}
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *persistence.MigrationManager) error {
				status, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printMigrationStatus(cmd.OutOrStdout(), status)
				return nil
			})
		},
	}
}

func newMigrateRollbackCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Roll back the last migration record",
		Long: `Remove the record of the last applied migration.

⚠️  WARNING: This only removes the migration record from schema_migrations.
    You must manually revert any database schema changes!

Use --force to skip the confirmation prompt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !force && !confirm(cmd.InOrStdin(), out) {
				fmt.Fprintln(out, "Rollback cancelled")
				return nil
			}
			return withMigrator(cmd.Context(), func(ctx context.Context, m *persistence.MigrationManager) error {
				if err := m.Rollback(ctx); err != nil {
					return fmt.Errorf("rollback failed: %w", err)
				}
				fmt.Fprintln(out, warnStyle.Render("⚠️  Migration record removed"))
				fmt.Fprintln(out, "You must manually revert database changes")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip confirmation prompt")

	return cmd
}

func withMigrator(ctx context.Context, fn func(context.Context, *persistence.MigrationManager) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openDatabase(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(ctx, persistence.NewMigrationManager(db, log))
}

func confirm(in io.Reader, out io.Writer) bool {
	fmt.Fprintln(out, warnStyle.Render("⚠️  WARNING: Rolling back migrations is dangerous!"))
	fmt.Fprint(out, "Are you sure you want to proceed? (yes/no): ")

	var response string
	if _, err := fmt.Fscanln(in, &response); err != nil {
		return false
	}
	return response == "yes"
}

func printMigrationStatus(w io.Writer, status []persistence.MigrationStatus) {
	if len(status) == 0 {
		fmt.Fprintln(w, "No migrations found")
		return
	}

	fmt.Fprintln(w, titleStyle.Render("📊 Migration Status"))
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-10s %-10s %s", "Version", "Status", "Description")))

	applied, pending := 0, 0
	for _, m := range status {
		state := warnStyle.Render(fmt.Sprintf("%-10s", "⏳ pending"))
		if m.Applied {
			state = okStyle.Render(fmt.Sprintf("%-10s", "✅ applied"))
			applied++
		} else {
			pending++
		}
		fmt.Fprintf(w, "%-10d %s %s\n", m.Version, state, m.Description)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Applied: %d | Pending: %d | Total: %d\n", applied, pending, len(status))

	if pending > 0 {
		fmt.Fprintln(w, "\nRun 'techdigest migrate up' to apply pending migrations")
	}
}
