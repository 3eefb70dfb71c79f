package cli

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/varianta/varianta/internal/database"
	"github.com/varianta/varianta/internal/models"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage dashboard users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create a dashboard user",
	Long: `Create a user for the management dashboard.

The password is prompted interactively and never echoed.

Examples:
  varianta user create admin
  varianta user create alice --name "Alice Example"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUserCreate(args[0])
	},
}

// Command flags
var userDisplayName string

// Stub points for tests
var (
	readPasswordFn = func() ([]byte, error) {
		return term.ReadPassword(int(os.Stdin.Fd()))
	}
	createUserFn = func(ctx context.Context, db *sql.DB, username, password, name string) (*models.User, error) {
		return models.CreateUser(ctx, db, username, password, name)
	}
)

func runUserCreate(username string) error {
	if username == "" {
		return fmt.Errorf("username is required")
	}

	fmt.Print("Password: ")
	password, err := readPasswordFn()
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	fmt.Print("Confirm password: ")
	confirm, err := readPasswordFn()
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if !bytes.Equal(password, confirm) {
		return fmt.Errorf("passwords do not match")
	}

	cleanup, err := ensureDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	user, err := createUserFn(ctx, database.DB, username, string(password), userDisplayName)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Printf("User created: %s (%s)\n", user.Username, user.UserID)
	return nil
}

func init() {
	userCreateCmd.Flags().StringVar(&userDisplayName, "name", "", "Display name")

	userCmd.AddCommand(userCreateCmd)
	RootCmd.AddCommand(userCmd)
}
