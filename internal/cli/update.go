package cli

import (
	"fmt"
	"os"

	"github.com/blang/semver"
	"github.com/spf13/cobra"

	"github.com/varianta/varianta/internal/selfupdate"
)

const (
	releaseOwner = "varianta"
	releaseRepo  = "varianta"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update varianta to the latest release",
	Long: `Check GitHub for a newer release and replace the running binary.

Examples:
  varianta update
  varianta update --check`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpdate(updateCheckOnly)
	},
}

// Command flags
var updateCheckOnly bool

// Stub points for tests
var (
	detectLatestFn = func() (*selfupdate.Release, error) {
		return selfupdate.NewClient(releaseOwner, releaseRepo).DetectLatest()
	}
	applyUpdateFn = selfupdate.UpdateTo
)

func runUpdate(checkOnly bool) error {
	current, err := semver.ParseTolerant(Version)
	if err != nil {
		return fmt.Errorf("cannot update a development build (version %q)", Version)
	}

	release, err := detectLatestFn()
	if err != nil {
		return fmt.Errorf("failed to check for updates: %w", err)
	}

	if !release.Version.GT(current) {
		fmt.Printf("Already up to date (v%s)\n", current)
		return nil
	}

	fmt.Printf("New version available: v%s (current v%s)\n", release.Version, current)

	if checkOnly {
		fmt.Println("Run 'varianta update' to install it")
		return nil
	}

	asset, err := release.FindAsset()
	if err != nil {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}

	if err := selfupdate.CheckPermissions(exe); err != nil {
		return fmt.Errorf("cannot update %s: %w", exe, err)
	}

	fmt.Printf("Downloading %s...\n", asset.Name)
	if err := applyUpdateFn(asset.BrowserDownloadURL, exe); err != nil {
		return fmt.Errorf("update failed: %w", err)
	}

	fmt.Printf("Updated to v%s\n", release.Version)
	return nil
}

func init() {
	updateCmd.Flags().BoolVar(&updateCheckOnly, "check", false, "Only check for a newer version, do not install")

	RootCmd.AddCommand(updateCmd)
}
