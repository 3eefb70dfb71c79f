package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/varianta/varianta/internal/database"
	"github.com/varianta/varianta/internal/logging"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Database lifecycle hooks (function vars so tests can stub them)
var (
	connectDatabase = database.Connect
	closeDatabase   = database.Close
)

// Persistent flags
var (
	flagDatabaseURL string
	flagPort        string
	flagDataDir     string
)

// RootCmd is the varianta command. Running it without a subcommand
// starts the server.
var RootCmd = &cobra.Command{
	Use:   "varianta",
	Short: "Self-hosted A/B experiment analytics",
	Long: `Varianta is a self-hosted A/B experiment analytics server.

It ingests exposure and conversion events, stores them in PostgreSQL, and
answers results queries with a two-proportion z-test significance engine.

Running varianta without a subcommand starts the server.`,
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

// Execute runs the CLI. Errors are printed by cobra; we just set the
// exit code.
func Execute() error {
	defer func() { _ = logging.Sync() }()
	return RootCmd.Execute()
}

// ensureDatabase connects the global pool if a command needs it.
func ensureDatabase() (cleanup func(), err error) {
	if database.DB != nil {
		return func() {}, nil
	}
	if err := connectDatabase(); err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	return func() { _ = closeDatabase() }, nil
}

func init() {
	RootCmd.PersistentFlags().StringVar(&flagDatabaseURL, "database-url", "", "PostgreSQL connection URL (overrides config and DATABASE_URL)")
	RootCmd.PersistentFlags().StringVar(&flagPort, "port", "", "HTTP listen port (overrides config and PORT)")
	RootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Data directory for GeoIP databases (overrides config and DATA_DIR)")
}
