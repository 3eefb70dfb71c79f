package handlers

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/varianta/varianta/internal/logging"
	"github.com/varianta/varianta/internal/models"
	"github.com/varianta/varianta/internal/stats"
)

// minSampleSize is the combined sample floor applied to significance
// tests; serve.go overrides it from config at startup. 0 disables it.
var minSampleSize = stats.DefaultMinSampleSize

// SetMinSampleSize configures the significance sample floor.
func SetMinSampleSize(n int) {
	if n >= 0 {
		minSampleSize = n
	}
}

// ExperimentResults is the full assembled results payload.
type ExperimentResults struct {
	Experiment              *models.Experiment    `json:"experiment"`
	Results                 []stats.VariantResult `json:"results"`
	StatisticalSignificance *stats.TestResult     `json:"statisticalSignificance"`
	Comparisons             []*stats.TestResult   `json:"comparisons,omitempty"`
	TimeSeries              []stats.DailyPoint    `json:"timeSeries"`
	Days                    int                   `json:"days"`
}

// HandleResults → GET /api/experiments/:experiment_id/results?days=30
// Loads the experiment, aggregates its event window, and runs the
// significance engine: the headline test is control vs the leading
// treatment, with one pairwise comparison per treatment beyond that.
func HandleResults(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("experiment_id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid experiment_id"})
	}
	days := queryDays(c)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	assembled, status, err := assembleResults(ctx, id, days)
	if err != nil {
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(assembled)
}

// HandleTimeseries → GET /api/experiments/:experiment_id/timeseries?days=30
func HandleTimeseries(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("experiment_id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid experiment_id"})
	}
	days := queryDays(c)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	assembled, status, err := assembleResults(ctx, id, days)
	if err != nil {
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"experiment_id": id.String(),
		"days":          days,
		"points":        assembled.TimeSeries,
	})
}

// AssembleResults builds the full results payload outside an HTTP
// request. The results CLI command uses it.
func AssembleResults(ctx context.Context, id uuid.UUID, days int) (*ExperimentResults, error) {
	assembled, _, err := assembleResults(ctx, id, days)
	return assembled, err
}

// assembleResults builds the complete results payload. Returns the HTTP
// status to use when err is non-nil.
func assembleResults(ctx context.Context, id uuid.UUID, days int) (*ExperimentResults, int, error) {
	experiment, err := models.GetExperiment(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 404, errors.New("Experiment not found")
	}
	if err != nil {
		logging.L().Error("experiment lookup failed", zap.String("experiment_id", id.String()), zap.Error(err))
		return nil, 500, errors.New("database error")
	}

	variants, err := models.ListVariants(ctx, id)
	if err != nil {
		return nil, 500, errors.New("database error")
	}

	records, err := models.GetEvents(ctx, id, days)
	if err != nil {
		return nil, 500, errors.New("database error")
	}

	events := make([]stats.Event, 0, len(records))
	for _, r := range records {
		events = append(events, stats.Event{
			VariantID: r.VariantID.String(),
			SessionID: r.SessionID,
			EventType: r.EventType,
			Timestamp: r.CreatedAt,
		})
	}

	refs := make([]stats.VariantRef, 0, len(variants))
	for _, v := range variants {
		refs = append(refs, stats.VariantRef{
			ID:        v.ID.String(),
			Name:      v.Name,
			IsControl: v.IsControl,
		})
	}

	goal := experiment.PrimaryGoal
	results := stats.Aggregate(events, refs, goal)

	assembled := &ExperimentResults{
		Experiment: experiment,
		Results:    results,
		TimeSeries: []stats.DailyPoint{},
		Days:       days,
	}

	var control *stats.VariantResult
	var treatments []*stats.VariantResult
	for i := range results {
		if results[i].IsControl && control == nil {
			control = &results[i]
		} else {
			treatments = append(treatments, &results[i])
		}
	}

	if control == nil || len(treatments) == 0 {
		return assembled, 0, nil
	}

	controlGroup := stats.Group{
		Name:        control.VariantName,
		Visitors:    control.Visitors,
		Conversions: control.Conversions,
	}

	// Headline test: control against the best-performing treatment
	leading := treatments[0]
	for _, t := range treatments[1:] {
		if t.ConversionRate > leading.ConversionRate {
			leading = t
		}
	}

	for _, t := range treatments {
		test, err := stats.Compare(controlGroup, stats.Group{
			Name:        t.VariantName,
			Visitors:    t.Visitors,
			Conversions: t.Conversions,
		}, minSampleSize)
		if err != nil {
			return nil, 500, errors.New("significance computation failed")
		}
		assembled.Comparisons = append(assembled.Comparisons, test)
		if t == leading {
			assembled.StatisticalSignificance = test
		}
	}

	assembled.TimeSeries = stats.BuildDaily(events, goal, control.VariantID, leading.VariantID)

	return assembled, 0, nil
}

// queryDays parses the ?days= window, defaulting to 30, clamped to 1..365.
func queryDays(c fiber.Ctx) int {
	days, err := strconv.Atoi(c.Query("days", "30"))
	if err != nil || days < 1 {
		return 30
	}
	if days > 365 {
		return 365
	}
	return days
}
