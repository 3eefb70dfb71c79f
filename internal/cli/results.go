package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/varianta/varianta/internal/handlers"
)

var resultsCmd = &cobra.Command{
	Use:   "results <experiment-id>",
	Short: "Show experiment results with statistical significance",
	Long: `Show aggregated results for an experiment: per-variant visitors,
conversions, and conversion rates, plus a two-proportion z-test of the
control against the leading treatment.

Examples:
  varianta results 550e8400-e29b-41d4-a716-446655440000
  varianta results 550e8400-e29b-41d4-a716-446655440000 --days 7 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResults(args[0], resultsDays, resultsFormat)
	},
}

// Command flags
var (
	resultsDays   int
	resultsFormat string
)

// fetchResultsFn assembles the results payload (function var so tests can stub it)
var fetchResultsFn = handlers.AssembleResults

func runResults(idArg string, days int, format string) error {
	id, err := uuid.Parse(idArg)
	if err != nil {
		return fmt.Errorf("invalid experiment ID: %w", err)
	}
	if days < 1 || days > 365 {
		return fmt.Errorf("days must be between 1 and 365")
	}

	switch format {
	case "table", "json", "csv", "yaml":
	default:
		return fmt.Errorf("invalid format: %s (valid: table, json, csv, yaml)", format)
	}

	cleanup, err := ensureDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results, err := fetchResultsFn(ctx, id, days)
	if err != nil {
		return fmt.Errorf("failed to load results: %w", err)
	}

	switch format {
	case "json":
		encoded, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(encoded))
	case "yaml":
		encoded, err := yaml.Marshal(results)
		if err != nil {
			return err
		}
		fmt.Print(string(encoded))
	case "csv":
		return resultsCSV(results)
	default:
		return resultsTable(results)
	}

	return nil
}

func resultsCSV(results *handlers.ExperimentResults) error {
	w := csv.NewWriter(os.Stdout)
	if err := w.Write([]string{"variant", "is_control", "visitors", "conversions", "conversion_rate"}); err != nil {
		return err
	}
	for _, r := range results.Results {
		record := []string{
			r.VariantName,
			strconv.FormatBool(r.IsControl),
			strconv.Itoa(r.Visitors),
			strconv.Itoa(r.Conversions),
			strconv.FormatFloat(r.ConversionRate, 'f', 4, 64),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func resultsTable(results *handlers.ExperimentResults) error {
	e := results.Experiment
	fmt.Printf("\nResults for %s (%s, last %d days)\n\n", e.Name, e.Status, results.Days)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VARIANT\tCONTROL\tVISITORS\tCONVERSIONS\tRATE")
	_, _ = fmt.Fprintln(w, "-------\t-------\t--------\t-----------\t----")
	for _, r := range results.Results {
		control := ""
		if r.IsControl {
			control = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.2f%%\n",
			r.VariantName, control, r.Visitors, r.Conversions, r.ConversionRate*100)
	}
	_ = w.Flush()
	fmt.Println()

	sig := results.StatisticalSignificance
	if sig == nil {
		fmt.Println("Significance: not computed (needs a control and at least one treatment)")
		return nil
	}

	fmt.Printf("Significance: %s vs %s\n", sig.ControlName, sig.TreatmentName)
	fmt.Printf("  p-value:    %.4f (z = %.2f)\n", sig.PValue, sig.ZScore)
	fmt.Printf("  confidence: %s\n", sig.Confidence)
	if sig.Winner != nil {
		fmt.Printf("  winner:     %s\n", *sig.Winner)
	}
	fmt.Printf("  %s\n", sig.Summary)

	return nil
}

func init() {
	resultsCmd.Flags().IntVarP(&resultsDays, "days", "d", 30, "Analysis window in days (1-365)")
	resultsCmd.Flags().StringVarP(&resultsFormat, "format", "f", "table", "Output format (table, json, csv, yaml)")

	RootCmd.AddCommand(resultsCmd)
}
