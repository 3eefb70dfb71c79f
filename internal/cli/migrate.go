package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/varianta/varianta/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Apply pending database migrations.

The server runs migrations on startup; this command exists for applying
them separately, e.g. in a deploy step before the new binary starts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate()
	},
}

// migrateFn is a function var so tests can stub it
var migrateFn = database.Migrate

func runMigrate() error {
	cleanup, err := ensureDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := migrateFn(); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	fmt.Println("Migrations applied successfully")
	return nil
}

func init() {
	RootCmd.AddCommand(migrateCmd)
}
