package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/kozaktomas/attendance-engine/internal/config"
	"github.com/kozaktomas/attendance-engine/internal/store/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply all pending schema migrations to the attendance database.
Serve does this on startup; this command covers deployments where the
schema is rolled forward separately from the server.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().Bool("check", false, "List applied migrations without applying new ones")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	pool, err := postgres.NewPool(&config.Load().Database)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	ctx := cmd.Context()

	if mustGetBool(cmd, "check") {
		versions, err := pool.MigrationsApplied(ctx)
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			fmt.Println("No migrations applied yet")
			return nil
		}
		for _, v := range versions {
			fmt.Println(v)
		}
		return nil
	}

	if err := pool.Migrate(ctx); err != nil {
		return err
	}
	fmt.Println("Migrations up to date")
	return nil
}
