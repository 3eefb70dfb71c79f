package handlers

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/biter777/countries"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/varianta/varianta/internal/models"
)

// CountryRow is one row of the country breakdown, with the ISO code
// resolved to a display name.
type CountryRow struct {
	CountryCode    string  `json:"country_code"`
	CountryName    string  `json:"country_name"`
	Visitors       int     `json:"visitors"`
	Conversions    int     `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
}

// HandleCountryBreakdown → GET /api/experiments/:experiment_id/breakdown/country?days=30
func HandleCountryBreakdown(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("experiment_id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid experiment_id"})
	}
	days := queryDays(c)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	experiment, err := models.GetExperiment(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return c.Status(404).JSON(fiber.Map{"error": "Experiment not found"})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	slices, err := models.GetCountryBreakdown(ctx, id, experiment.PrimaryGoal, days)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	rows := make([]CountryRow, 0, len(slices))
	for _, s := range slices {
		rows = append(rows, countryRow(s))
	}

	return c.JSON(fiber.Map{
		"experiment_id": id.String(),
		"days":          days,
		"countries":     rows,
	})
}

// countryRow resolves the stored ISO code to a country name. Events
// without geography group under "unknown".
func countryRow(s *models.CountrySlice) CountryRow {
	row := CountryRow{
		CountryCode: s.Country,
		CountryName: "Unknown",
		Visitors:    s.Visitors,
		Conversions: s.Conversions,
	}
	if row.CountryCode == "" {
		row.CountryCode = "unknown"
	} else if country := countries.ByName(s.Country); country != countries.Unknown {
		row.CountryName = country.String()
	}
	if row.Visitors > 0 {
		row.ConversionRate = float64(row.Conversions) / float64(row.Visitors)
	}
	return row
}
