package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/varianta/varianta/internal/models"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys for server-side ingestion",
	Long: `Manage API keys for the server-side event ingestion API.

API keys allow backends (Rails, Node, Python, etc.) to push experiment
events programmatically via POST /api/v1/ingest.`,
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new API key",
	Long: `Create a new API key for server-side event ingestion.

The full API key is displayed ONCE on creation. Save it securely - it cannot be retrieved later.

Examples:
  varianta apikey create
  varianta apikey create --name "Rails Backend"
  varianta apikey create --scopes ingest,results`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAPIKeyCreate()
	},
}

var apikeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	Long: `List all API keys, including revoked keys.

Examples:
  varianta apikey list`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAPIKeyList()
	},
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke <key-id-or-prefix>",
	Short: "Revoke an API key",
	Long: `Revoke an API key by its ID or prefix.

Revoked keys immediately stop working. This action cannot be undone.

Examples:
  varianta apikey revoke varianta_live_ab
  varianta apikey revoke 550e8400-e29b-41d4-a716-446655440000`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAPIKeyRevoke(args[0])
	},
}

var apikeyShowCmd = &cobra.Command{
	Use:   "show <key-id-or-prefix>",
	Short: "Show details of an API key",
	Long: `Display detailed information about an API key.

Examples:
  varianta apikey show varianta_live_ab
  varianta apikey show 550e8400-e29b-41d4-a716-446655440000`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAPIKeyShow(args[0])
	},
}

// Command flags
var (
	apikeyName   string
	apikeyScopes string
)

func runAPIKeyCreate() error {
	cleanup, err := ensureDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	var namePtr *string
	if apikeyName != "" {
		namePtr = &apikeyName
	}

	var scopes []string
	for _, s := range strings.Split(apikeyScopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}

	result, err := models.GenerateAPIKeyWithScopes(nil, namePtr, scopes)
	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}

	fmt.Println()
	fmt.Println("API Key created successfully!")
	fmt.Println()
	fmt.Println("============================================================")
	fmt.Println("IMPORTANT: Save this key now. It will NOT be shown again.")
	fmt.Println("============================================================")
	fmt.Println()
	fmt.Printf("API Key: %s\n", result.FullKey)
	fmt.Println()
	fmt.Println("------------------------------------------------------------")
	fmt.Printf("Key ID:     %s\n", result.APIKey.KeyID)
	if result.APIKey.Name != nil {
		fmt.Printf("Name:       %s\n", *result.APIKey.Name)
	}
	fmt.Printf("Scopes:     %s\n", strings.Join(result.APIKey.Scopes, ", "))
	fmt.Printf("Rate Limit: %d req/min\n", result.APIKey.RateLimitPerMinute)
	fmt.Printf("Created:    %s\n", result.APIKey.CreatedAt.Format(time.RFC3339))
	fmt.Println()
	fmt.Println("Usage example:")
	fmt.Println()
	fmt.Printf("  curl -X POST https://your-varianta-host/api/v1/ingest \\\n")
	fmt.Printf("    -H \"Authorization: Bearer %s\" \\\n", result.FullKey)
	fmt.Printf("    -H \"Content-Type: application/json\" \\\n")
	fmt.Printf("    -d '{\"events\": [{\"experiment_id\": \"...\", \"variant_id\": \"...\", \"session_id\": \"anon_123\", \"event_type\": \"exposure\"}]}'\n")
	fmt.Println()

	return nil
}

func runAPIKeyList() error {
	cleanup, err := ensureDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	keys, err := models.ListAPIKeys()
	if err != nil {
		return fmt.Errorf("failed to list API keys: %w", err)
	}

	if len(keys) == 0 {
		fmt.Println("No API keys found")
		fmt.Println()
		fmt.Println("Create one with: varianta apikey create")
		return nil
	}

	fmt.Printf("\nAPI Keys (%d total)\n\n", len(keys))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PREFIX\tNAME\tSCOPES\tSTATUS\tLAST USED\tCREATED")
	_, _ = fmt.Fprintln(w, "------\t----\t------\t------\t---------\t-------")

	for _, key := range keys {
		name := "-"
		if key.Name != nil {
			name = *key.Name
		}

		status := "active"
		if key.RevokedAt != nil {
			status = "revoked"
		} else if key.ExpiresAt != nil && key.ExpiresAt.Before(time.Now()) {
			status = "expired"
		}

		lastUsed := "never"
		if key.LastUsedAt != nil {
			lastUsed = key.LastUsedAt.Format("2006-01-02 15:04")
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			key.KeyPrefix,
			name,
			strings.Join(key.Scopes, ","),
			status,
			lastUsed,
			key.CreatedAt.Format("2006-01-02 15:04"),
		)
	}

	_ = w.Flush()
	fmt.Println()

	return nil
}

func runAPIKeyRevoke(keyIDOrPrefix string) error {
	cleanup, err := ensureDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	// Try parsing as UUID first
	if keyID, err := uuid.Parse(keyIDOrPrefix); err == nil {
		if err := models.RevokeAPIKey(keyID); err != nil {
			return fmt.Errorf("failed to revoke API key: %w", err)
		}
		fmt.Printf("API key %s revoked successfully\n", keyID)
		return nil
	}

	// Try as prefix
	if err := models.RevokeAPIKeyByPrefix(keyIDOrPrefix); err != nil {
		return fmt.Errorf("failed to revoke API key with prefix '%s': %w", keyIDOrPrefix, err)
	}

	fmt.Printf("API key with prefix '%s' revoked successfully\n", keyIDOrPrefix)
	return nil
}

func runAPIKeyShow(keyIDOrPrefix string) error {
	cleanup, err := ensureDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	var key *models.APIKey
	var err2 error

	// Try parsing as UUID first
	if keyID, parseErr := uuid.Parse(keyIDOrPrefix); parseErr == nil {
		key, err2 = models.GetAPIKeyByID(keyID)
	} else {
		key, err2 = models.GetAPIKeyByPrefix(keyIDOrPrefix)
	}

	if err2 != nil {
		return fmt.Errorf("API key not found: %w", err2)
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "Key ID:\t%s\n", key.KeyID)
	_, _ = fmt.Fprintf(w, "Prefix:\t%s\n", key.KeyPrefix)

	if key.Name != nil {
		_, _ = fmt.Fprintf(w, "Name:\t%s\n", *key.Name)
	} else {
		_, _ = fmt.Fprintf(w, "Name:\t(none)\n")
	}

	_, _ = fmt.Fprintf(w, "Scopes:\t%s\n", strings.Join(key.Scopes, ", "))
	_, _ = fmt.Fprintf(w, "Rate Limit:\t%d req/min\n", key.RateLimitPerMinute)

	status := "active"
	if key.RevokedAt != nil {
		status = fmt.Sprintf("revoked (%s)", key.RevokedAt.Format(time.RFC3339))
	} else if key.ExpiresAt != nil && key.ExpiresAt.Before(time.Now()) {
		status = fmt.Sprintf("expired (%s)", key.ExpiresAt.Format(time.RFC3339))
	}
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", status)

	_, _ = fmt.Fprintf(w, "Created:\t%s\n", key.CreatedAt.Format(time.RFC3339))

	if key.LastUsedAt != nil {
		_, _ = fmt.Fprintf(w, "Last Used:\t%s\n", key.LastUsedAt.Format(time.RFC3339))
	} else {
		_, _ = fmt.Fprintf(w, "Last Used:\tnever\n")
	}

	if key.ExpiresAt != nil {
		_, _ = fmt.Fprintf(w, "Expires:\t%s\n", key.ExpiresAt.Format(time.RFC3339))
	}

	_ = w.Flush()
	fmt.Println()

	return nil
}

func init() {
	// Create command flags
	apikeyCreateCmd.Flags().StringVarP(&apikeyName, "name", "n", "", "Friendly name for the API key (e.g., 'Rails Backend')")
	apikeyCreateCmd.Flags().StringVar(&apikeyScopes, "scopes", "ingest", "Comma-separated scopes (ingest, results)")

	// Add subcommands
	apikeyCmd.AddCommand(apikeyCreateCmd)
	apikeyCmd.AddCommand(apikeyListCmd)
	apikeyCmd.AddCommand(apikeyRevokeCmd)
	apikeyCmd.AddCommand(apikeyShowCmd)

	// Register with root command
	RootCmd.AddCommand(apikeyCmd)
}
