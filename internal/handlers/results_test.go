package handlers

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varianta/varianta/internal/models"
)

func newResultsApp() *fiber.App {
	app := fiber.New()
	app.Get("/api/experiments/:experiment_id/results", HandleResults)
	app.Get("/api/experiments/:experiment_id/timeseries", HandleTimeseries)
	return app
}

func getJSON(t *testing.T, app *fiber.App, path string) (*http.Response, []byte) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestQueryDaysDefaultsAndClamps(t *testing.T) {
	app := fiber.New()
	var got int
	app.Get("/", func(c fiber.Ctx) error {
		got = queryDays(c)
		return c.SendStatus(200)
	})

	cases := map[string]int{
		"/":          30,
		"/?days=7":   7,
		"/?days=abc": 30,
		"/?days=-5":  30,
		"/?days=900": 365,
	}
	for path, expected := range cases {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		_, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, expected, got, path)
	}
}

func TestHandleResultsInvalidID(t *testing.T) {
	app := newResultsApp()
	resp, _ := getJSON(t, app, "/api/experiments/not-a-uuid/results")
	assert.Equal(t, 400, resp.StatusCode)
}

func TestHandleResultsUnknownExperiment(t *testing.T) {
	mock := useMockDB(t)

	id := uuid.New()
	mock.ExpectQuery("SELECT .* FROM experiment WHERE experiment_id").
		WithArgs(id).WillReturnError(sql.ErrNoRows)

	app := newResultsApp()
	resp, body := getJSON(t, app, "/api/experiments/"+id.String()+"/results")
	assert.Equal(t, 404, resp.StatusCode)
	assert.Contains(t, string(body), "Experiment not found")
}

// expectResultsQueries wires the three reads the assembler performs:
// experiment, variants, then the event window.
func expectResultsQueries(mock sqlmock.Sqlmock, experimentID uuid.UUID, goal string,
	variants []*models.Variant, events *sqlmock.Rows, days int) {

	mock.ExpectQuery("SELECT .* FROM experiment WHERE experiment_id").
		WithArgs(experimentID).
		WillReturnRows(experimentRow(experimentID, "Checkout test", models.StatusRunning, goal))
	mock.ExpectQuery("SELECT .* FROM variant").
		WithArgs(experimentID).
		WillReturnRows(variantRows(experimentID, variants...))
	mock.ExpectQuery("SELECT .* FROM experiment_event").
		WithArgs(experimentID, days).
		WillReturnRows(events)
}

func TestHandleResultsAssemblesSignificantOutcome(t *testing.T) {
	mock := useMockDB(t)

	experimentID := uuid.New()
	control := &models.Variant{ID: uuid.New(), Name: "original", IsControl: true, TrafficWeight: 50}
	treatment := &models.Variant{ID: uuid.New(), Name: "new-checkout", TrafficWeight: 50}

	// 40 sessions per variant; 5 control conversions vs 20 treatment
	events := sqlmock.NewRows(eventColumns)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	addSession := func(variantID uuid.UUID, n int, converts bool) {
		session := fmt.Sprintf("%s-s%d-%v", variantID.String()[:8], n, converts)
		at := base.Add(time.Duration(n%3) * 24 * time.Hour)
		events.AddRow(experimentID, variantID, session, "exposure", nil, at)
		if converts {
			events.AddRow(experimentID, variantID, session, "purchase", nil, at.Add(time.Minute))
		}
	}
	for i := 0; i < 40; i++ {
		addSession(control.ID, i, i < 5)
		addSession(treatment.ID, i, i < 20)
	}

	expectResultsQueries(mock, experimentID, "purchase",
		[]*models.Variant{control, treatment}, events, 30)

	app := newResultsApp()
	resp, body := getJSON(t, app, "/api/experiments/"+experimentID.String()+"/results")
	require.Equal(t, 200, resp.StatusCode, string(body))

	var result struct {
		Results []struct {
			VariantName    string  `json:"variant_name"`
			IsControl      bool    `json:"is_control"`
			Visitors       int     `json:"visitors"`
			Conversions    int     `json:"conversions"`
			ConversionRate float64 `json:"conversion_rate"`
		} `json:"results"`
		StatisticalSignificance struct {
			Significant bool    `json:"is_significant"`
			Winner      *string `json:"winner"`
			Confidence  string  `json:"confidence"`
		} `json:"statisticalSignificance"`
		Comparisons []json.RawMessage `json:"comparisons"`
		TimeSeries  []struct {
			Date          string  `json:"date"`
			ControlRate   float64 `json:"control_rate"`
			TreatmentRate float64 `json:"treatment_rate"`
		} `json:"timeSeries"`
		Days int `json:"days"`
	}
	require.NoError(t, json.Unmarshal(body, &result))

	require.Len(t, result.Results, 2)
	assert.Equal(t, "original", result.Results[0].VariantName)
	assert.True(t, result.Results[0].IsControl)
	assert.Equal(t, 40, result.Results[0].Visitors)
	assert.Equal(t, 5, result.Results[0].Conversions)
	assert.Equal(t, 40, result.Results[1].Visitors)
	assert.Equal(t, 20, result.Results[1].Conversions)

	assert.True(t, result.StatisticalSignificance.Significant)
	require.NotNil(t, result.StatisticalSignificance.Winner)
	assert.Equal(t, "new-checkout", *result.StatisticalSignificance.Winner)
	assert.Equal(t, "99%", result.StatisticalSignificance.Confidence)

	assert.Len(t, result.Comparisons, 1)
	assert.Equal(t, 30, result.Days)

	// Sessions span three UTC days, ascending and deduplicated
	require.Len(t, result.TimeSeries, 3)
	assert.Equal(t, "2025-06-01", result.TimeSeries[0].Date)
	assert.Equal(t, "2025-06-03", result.TimeSeries[2].Date)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleResultsControlOnly(t *testing.T) {
	mock := useMockDB(t)

	experimentID := uuid.New()
	control := &models.Variant{ID: uuid.New(), Name: "original", IsControl: true}

	events := sqlmock.NewRows(eventColumns).
		AddRow(experimentID, control.ID, "s1", "exposure", nil, time.Now().UTC())

	expectResultsQueries(mock, experimentID, "purchase",
		[]*models.Variant{control}, events, 30)

	app := newResultsApp()
	resp, body := getJSON(t, app, "/api/experiments/"+experimentID.String()+"/results")
	require.Equal(t, 200, resp.StatusCode)

	var result map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "null", string(result["statisticalSignificance"]))
	assert.Equal(t, "[]", string(result["timeSeries"]))
}

func TestHandleTimeseries(t *testing.T) {
	mock := useMockDB(t)

	experimentID := uuid.New()
	control := &models.Variant{ID: uuid.New(), Name: "original", IsControl: true}
	treatment := &models.Variant{ID: uuid.New(), Name: "variant-b"}

	day := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	events := sqlmock.NewRows(eventColumns).
		AddRow(experimentID, control.ID, "c1", "exposure", nil, day).
		AddRow(experimentID, treatment.ID, "t1", "exposure", nil, day).
		AddRow(experimentID, treatment.ID, "t1", "purchase", nil, day.Add(time.Hour))

	expectResultsQueries(mock, experimentID, "purchase",
		[]*models.Variant{control, treatment}, events, 7)

	app := newResultsApp()
	resp, body := getJSON(t, app, "/api/experiments/"+experimentID.String()+"/timeseries?days=7")
	require.Equal(t, 200, resp.StatusCode)

	var result struct {
		ExperimentID string `json:"experiment_id"`
		Days         int    `json:"days"`
		Points       []struct {
			Date          string  `json:"date"`
			ControlRate   float64 `json:"control_rate"`
			TreatmentRate float64 `json:"treatment_rate"`
		} `json:"points"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, experimentID.String(), result.ExperimentID)
	assert.Equal(t, 7, result.Days)
	require.Len(t, result.Points, 1)
	assert.Equal(t, "2025-06-02", result.Points[0].Date)
	assert.Zero(t, result.Points[0].ControlRate)
	assert.Equal(t, 1.0, result.Points[0].TreatmentRate)
}
