package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/varianta/varianta/internal/models"
)

// HandleIndex renders the minimal dashboard index: the experiment list
// with current status. Everything richer goes through the JSON API.
func HandleIndex(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	experiments, err := models.ListExperiments(ctx)
	if err != nil {
		// Render the page anyway; an empty list beats a bare 500 here
		experiments = nil
	}

	return c.Render("index", fiber.Map{
		"Title":       "Varianta",
		"Experiments": experiments,
	})
}
