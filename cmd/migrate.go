package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/streed/snapnotes/internal/database"
	"github.com/streed/snapnotes/internal/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration management",
	Long: `Manage database migrations and schema changes.

Migrations are applied automatically whenever the database is opened, so these
commands are mostly useful for troubleshooting.`,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of database migrations",
	RunE:  showMigrationStatus,
}

var migrateRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run pending database migrations",
	RunE:  runMigrations,
}

var migrateRollbackCmd = &cobra.Command{
	Use:   "rollback [migration id]",
	Short: "Roll back one applied migration",
	Args:  cobra.ExactArgs(1),
	RunE:  rollbackMigration,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
	migrateCmd.AddCommand(migrateRunCmd)
	migrateCmd.AddCommand(migrateRollbackCmd)
}

func migrationRunner() (*migrations.Runner, func(), error) {
	db, err := database.New(appConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return migrations.NewRunner(db.Conn()), func() { db.Close() }, nil
}

func showMigrationStatus(cmd *cobra.Command, args []string) error {
	runner, closeDB, err := migrationRunner()
	if err != nil {
		return err
	}
	defer closeDB()

	status, err := runner.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "MIGRATION ID\tSTATUS\tAPPLIED AT\tDESCRIPTION\n")
	fmt.Fprintf(w, "------------\t------\t----------\t-----------\n")

	applied := 0
	for _, m := range status {
		state, at := "PENDING", "-"
		if m.Applied {
			applied++
			state = "APPLIED"
			if m.AppliedAt != nil {
				at = m.AppliedAt.Local().Format("2006-01-02 15:04")
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, state, at, m.Description)
	}
	w.Flush()

	fmt.Printf("\nTotal migrations: %d\n", len(status))
	fmt.Printf("Applied: %d\n", applied)
	fmt.Printf("Pending: %d\n", len(status)-applied)
	return nil
}

func runMigrations(cmd *cobra.Command, args []string) error {
	runner, closeDB, err := migrationRunner()
	if err != nil {
		return err
	}
	defer closeDB()

	n, err := runner.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	fmt.Printf("Migration run completed: %d applied.\n", n)
	return nil
}

func rollbackMigration(cmd *cobra.Command, args []string) error {
	runner, closeDB, err := migrationRunner()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := runner.Rollback(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to roll back %s: %w", args[0], err)
	}
	fmt.Printf("Rolled back migration %s.\n", args[0])
	fmt.Println("It will be re-applied the next time the database is opened.")
	return nil
}
