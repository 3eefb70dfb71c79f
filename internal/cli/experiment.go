package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/varianta/varianta/internal/models"
)

var experimentCmd = &cobra.Command{
	Use:   "experiment",
	Short: "Manage experiments",
	Long: `Create, inspect, and control the lifecycle of experiments.

Examples:
  varianta experiment create "Checkout test" --goal purchase
  varianta experiment list
  varianta experiment show 550e8400-e29b-41d4-a716-446655440000
  varianta experiment status 550e8400-e29b-41d4-a716-446655440000 running`,
}

var experimentCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new experiment",
	Long: `Create a new experiment in draft status.

The --variants flag takes a comma-separated list of variant names; the
first one becomes the control. Without it the experiment starts empty
and variants are added through the API.

Examples:
  varianta experiment create "Checkout test" --goal purchase
  varianta experiment create "Pricing page" --goal signup --variants control,annual-first --allocation 50`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExperimentCreate(args[0])
	},
}

var experimentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List experiments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExperimentList(experimentFormat)
	},
}

var experimentShowCmd = &cobra.Command{
	Use:   "show <experiment-id>",
	Short: "Show an experiment and its variants",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExperimentShow(args[0], experimentFormat)
	},
}

var experimentStatusCmd = &cobra.Command{
	Use:   "status <experiment-id> <status>",
	Short: "Change an experiment's lifecycle status",
	Long: `Change an experiment's lifecycle status.

Valid statuses: draft, running, paused, completed, archived.
Only forward transitions are allowed (draft -> running -> paused/completed -> archived).`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExperimentStatus(args[0], args[1])
	},
}

// Command flags
var (
	experimentGoal        string
	experimentDescription string
	experimentHypothesis  string
	experimentAllocation  int
	experimentVariants    string
	experimentFormat      string
)

// Fetchers as function vars so tests can stub them
var (
	listExperimentsFn     = models.ListExperiments
	fetchExperimentFn     = models.GetExperiment
	fetchVariantsFn       = models.ListVariants
	createExperimentFn    = models.CreateExperiment
	createVariantFn       = models.CreateVariant
	setExperimentStatusFn = models.UpdateExperimentStatus
)

func runExperimentCreate(name string) error {
	if experimentGoal == "" {
		return fmt.Errorf("--goal is required")
	}
	if experimentAllocation < 1 || experimentAllocation > 100 {
		return fmt.Errorf("allocation must be between 1 and 100")
	}

	cleanup, err := ensureDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var description, hypothesis *string
	if experimentDescription != "" {
		description = &experimentDescription
	}
	if experimentHypothesis != "" {
		hypothesis = &experimentHypothesis
	}

	experiment, err := createExperimentFn(ctx, name, description, hypothesis, experimentAllocation, experimentGoal)
	if err != nil {
		return fmt.Errorf("failed to create experiment: %w", err)
	}

	var variantNames []string
	for _, v := range strings.Split(experimentVariants, ",") {
		if v = strings.TrimSpace(v); v != "" {
			variantNames = append(variantNames, v)
		}
	}

	for i, vn := range variantNames {
		variant := &models.Variant{
			ExperimentID:  experiment.ID,
			Name:          vn,
			IsControl:     i == 0, // first listed variant is the control
			TrafficWeight: 100 / len(variantNames),
		}
		if err := createVariantFn(ctx, variant); err != nil {
			return fmt.Errorf("failed to create variant '%s': %w", vn, err)
		}
	}

	fmt.Printf("Experiment created: %s\n", experiment.ID)
	fmt.Printf("Name:   %s\n", experiment.Name)
	fmt.Printf("Goal:   %s\n", experiment.PrimaryGoal)
	fmt.Printf("Status: %s\n", experiment.Status)
	if len(variantNames) > 0 {
		fmt.Printf("Variants: %s (control: %s)\n", strings.Join(variantNames, ", "), variantNames[0])
	}
	fmt.Println()
	fmt.Println("Start it with: varianta experiment status", experiment.ID, "running")

	return nil
}

func runExperimentList(format string) error {
	cleanup, err := ensureDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	experiments, err := listExperimentsFn(ctx)
	if err != nil {
		return fmt.Errorf("failed to list experiments: %w", err)
	}

	switch format {
	case "json":
		encoded, err := json.MarshalIndent(experiments, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(encoded))
		return nil
	case "table":
		if len(experiments) == 0 {
			fmt.Println("No experiments found")
			fmt.Println()
			fmt.Println("Create one with: varianta experiment create <name> --goal <event>")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tNAME\tSTATUS\tGOAL\tALLOCATION\tCREATED")
		_, _ = fmt.Fprintln(w, "--\t----\t------\t----\t----------\t-------")
		for _, e := range experiments {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d%%\t%s\n",
				e.ID, e.Name, e.Status, e.PrimaryGoal, e.TrafficAllocation,
				e.CreatedAt.Format("2006-01-02"))
		}
		_ = w.Flush()
		return nil
	default:
		return fmt.Errorf("invalid format: %s (valid: table, json)", format)
	}
}

func runExperimentShow(idArg, format string) error {
	id, err := uuid.Parse(idArg)
	if err != nil {
		return fmt.Errorf("invalid experiment ID: %w", err)
	}

	cleanup, err := ensureDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	experiment, err := fetchExperimentFn(ctx, id)
	if err != nil {
		return fmt.Errorf("experiment not found: %w", err)
	}

	variants, err := fetchVariantsFn(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load variants: %w", err)
	}

	if format == "json" {
		encoded, err := json.MarshalIndent(map[string]interface{}{
			"experiment": experiment,
			"variants":   variants,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(encoded))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "ID:\t%s\n", experiment.ID)
	_, _ = fmt.Fprintf(w, "Name:\t%s\n", experiment.Name)
	if experiment.Description != nil {
		_, _ = fmt.Fprintf(w, "Description:\t%s\n", *experiment.Description)
	}
	if experiment.Hypothesis != nil {
		_, _ = fmt.Fprintf(w, "Hypothesis:\t%s\n", *experiment.Hypothesis)
	}
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", experiment.Status)
	_, _ = fmt.Fprintf(w, "Goal:\t%s\n", experiment.PrimaryGoal)
	_, _ = fmt.Fprintf(w, "Allocation:\t%d%%\n", experiment.TrafficAllocation)
	_, _ = fmt.Fprintf(w, "Created:\t%s\n", experiment.CreatedAt.Format(time.RFC3339))
	_ = w.Flush()

	fmt.Println()
	if len(variants) == 0 {
		fmt.Println("No variants configured")
		return nil
	}

	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VARIANT\tNAME\tCONTROL\tWEIGHT")
	_, _ = fmt.Fprintln(w, "-------\t----\t-------\t------")
	for _, v := range variants {
		control := ""
		if v.IsControl {
			control = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", v.ID, v.Name, control, v.TrafficWeight)
	}
	_ = w.Flush()

	return nil
}

func runExperimentStatus(idArg, status string) error {
	id, err := uuid.Parse(idArg)
	if err != nil {
		return fmt.Errorf("invalid experiment ID: %w", err)
	}
	if !models.ValidStatus(status) {
		return fmt.Errorf("unknown status: %s (valid: draft, running, paused, completed, archived)", status)
	}

	cleanup, err := ensureDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	experiment, err := fetchExperimentFn(ctx, id)
	if err != nil {
		return fmt.Errorf("experiment not found: %w", err)
	}

	if !models.CanTransition(experiment.Status, status) {
		return fmt.Errorf("invalid status transition: %s -> %s", experiment.Status, status)
	}

	if err := setExperimentStatusFn(ctx, id, status); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	fmt.Printf("Experiment %s: %s -> %s\n", id, experiment.Status, status)
	return nil
}

func init() {
	experimentCreateCmd.Flags().StringVarP(&experimentGoal, "goal", "g", "", "Primary goal event type (required)")
	experimentCreateCmd.Flags().StringVar(&experimentDescription, "description", "", "Experiment description")
	experimentCreateCmd.Flags().StringVar(&experimentHypothesis, "hypothesis", "", "Hypothesis being tested")
	experimentCreateCmd.Flags().IntVar(&experimentAllocation, "allocation", 100, "Traffic allocation percentage (1-100)")
	experimentCreateCmd.Flags().StringVar(&experimentVariants, "variants", "", "Comma-separated variant names, first is the control")

	experimentListCmd.Flags().StringVarP(&experimentFormat, "format", "f", "table", "Output format (table, json)")
	experimentShowCmd.Flags().StringVarP(&experimentFormat, "format", "f", "table", "Output format (table, json)")

	experimentCmd.AddCommand(experimentCreateCmd)
	experimentCmd.AddCommand(experimentListCmd)
	experimentCmd.AddCommand(experimentShowCmd)
	experimentCmd.AddCommand(experimentStatusCmd)

	RootCmd.AddCommand(experimentCmd)
}
