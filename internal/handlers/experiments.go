package handlers

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/varianta/varianta/internal/models"
)

// HandleExperimentList → GET /api/experiments
func HandleExperimentList(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	experiments, err := models.ListExperiments(ctx)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	if experiments == nil {
		experiments = []*models.Experiment{}
	}
	return c.JSON(experiments)
}

// HandleExperimentCreate → POST /api/experiments
// Creates a draft experiment, optionally with its variants in one call.
func HandleExperimentCreate(c fiber.Ctx) error {
	var req struct {
		Name              string  `json:"name"`
		Description       *string `json:"description"`
		Hypothesis        *string `json:"hypothesis"`
		TrafficAllocation *int    `json:"traffic_allocation"`
		PrimaryGoal       string  `json:"primary_goal"`
		Variants          []struct {
			Name          string                 `json:"name"`
			Description   *string                `json:"description"`
			IsControl     bool                   `json:"is_control"`
			TrafficWeight *int                   `json:"traffic_weight"`
			Config        map[string]interface{} `json:"config"`
		} `json:"variants"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}

	if strings.TrimSpace(req.Name) == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}
	if strings.TrimSpace(req.PrimaryGoal) == "" {
		return c.Status(400).JSON(fiber.Map{"error": "primary_goal is required"})
	}

	allocation := 100
	if req.TrafficAllocation != nil {
		allocation = *req.TrafficAllocation
	}
	if allocation < 1 || allocation > 100 {
		return c.Status(400).JSON(fiber.Map{"error": "traffic_allocation must be between 1 and 100"})
	}

	controls := 0
	for _, v := range req.Variants {
		if strings.TrimSpace(v.Name) == "" {
			return c.Status(400).JSON(fiber.Map{"error": "variant name is required"})
		}
		if v.IsControl {
			controls++
		}
	}
	if len(req.Variants) > 0 && controls != 1 {
		return c.Status(400).JSON(fiber.Map{"error": "exactly one variant must be the control"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	experiment, err := models.CreateExperiment(ctx, req.Name, req.Description,
		req.Hypothesis, allocation, req.PrimaryGoal)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to create experiment"})
	}

	variants := make([]*models.Variant, 0, len(req.Variants))
	for _, v := range req.Variants {
		weight := 50
		if v.TrafficWeight != nil {
			weight = *v.TrafficWeight
		}
		variant := &models.Variant{
			ExperimentID:  experiment.ID,
			Name:          v.Name,
			Description:   v.Description,
			IsControl:     v.IsControl,
			TrafficWeight: weight,
			Config:        v.Config,
		}
		if err := models.CreateVariant(ctx, variant); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "failed to create variant"})
		}
		variants = append(variants, variant)
	}

	return c.Status(201).JSON(fiber.Map{
		"experiment": experiment,
		"variants":   variants,
	})
}

// HandleExperimentGet → GET /api/experiments/:experiment_id
func HandleExperimentGet(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("experiment_id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid experiment_id"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	experiment, err := models.GetExperiment(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return c.Status(404).JSON(fiber.Map{"error": "Experiment not found"})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	variants, err := models.ListVariants(ctx, id)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	return c.JSON(fiber.Map{
		"experiment": experiment,
		"variants":   variants,
	})
}

// HandleExperimentUpdate → PUT /api/experiments/:experiment_id
func HandleExperimentUpdate(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("experiment_id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid experiment_id"})
	}

	var req struct {
		Name              *string `json:"name"`
		Description       *string `json:"description"`
		Hypothesis        *string `json:"hypothesis"`
		PrimaryGoal       *string `json:"primary_goal"`
		TrafficAllocation *int    `json:"traffic_allocation"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}
	if req.TrafficAllocation != nil && (*req.TrafficAllocation < 1 || *req.TrafficAllocation > 100) {
		return c.Status(400).JSON(fiber.Map{"error": "traffic_allocation must be between 1 and 100"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := models.GetExperiment(ctx, id); errors.Is(err, sql.ErrNoRows) {
		return c.Status(404).JSON(fiber.Map{"error": "Experiment not found"})
	} else if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	if err := models.UpdateExperiment(ctx, id, req.Name, req.Description,
		req.Hypothesis, req.PrimaryGoal, req.TrafficAllocation); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "update failed"})
	}
	return c.SendStatus(200)
}

// HandleExperimentStatus → PUT /api/experiments/:experiment_id/status
// Validates the lifecycle transition before applying it.
func HandleExperimentStatus(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("experiment_id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid experiment_id"})
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}
	if !models.ValidStatus(req.Status) {
		return c.Status(400).JSON(fiber.Map{"error": "unknown status"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	experiment, err := models.GetExperiment(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return c.Status(404).JSON(fiber.Map{"error": "Experiment not found"})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	if !models.CanTransition(experiment.Status, req.Status) {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid status transition",
			"from":  experiment.Status,
			"to":    req.Status,
		})
	}

	if err := models.UpdateExperimentStatus(ctx, id, req.Status); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "update failed"})
	}
	return c.JSON(fiber.Map{"status": req.Status})
}

// HandleExperimentDelete → DELETE /api/experiments/:experiment_id
func HandleExperimentDelete(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("experiment_id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid experiment_id"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := models.DeleteExperiment(ctx, id); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "delete failed"})
	}
	return c.SendStatus(204)
}

// HandleVariantCreate → POST /api/experiments/:experiment_id/variants
func HandleVariantCreate(c fiber.Ctx) error {
	experimentID, err := uuid.Parse(c.Params("experiment_id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid experiment_id"})
	}

	var req struct {
		Name          string                 `json:"name"`
		Description   *string                `json:"description"`
		IsControl     bool                   `json:"is_control"`
		TrafficWeight *int                   `json:"traffic_weight"`
		Config        map[string]interface{} `json:"config"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}
	if strings.TrimSpace(req.Name) == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := models.GetExperiment(ctx, experimentID); errors.Is(err, sql.ErrNoRows) {
		return c.Status(404).JSON(fiber.Map{"error": "Experiment not found"})
	} else if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	if req.IsControl {
		existing, err := models.ListVariants(ctx, experimentID)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "database error"})
		}
		for _, v := range existing {
			if v.IsControl {
				return c.Status(400).JSON(fiber.Map{"error": "experiment already has a control variant"})
			}
		}
	}

	weight := 50
	if req.TrafficWeight != nil {
		weight = *req.TrafficWeight
	}

	variant := &models.Variant{
		ExperimentID:  experimentID,
		Name:          req.Name,
		Description:   req.Description,
		IsControl:     req.IsControl,
		TrafficWeight: weight,
		Config:        req.Config,
	}
	if err := models.CreateVariant(ctx, variant); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to create variant"})
	}

	return c.Status(201).JSON(variant)
}

// HandleVariantUpdate → PUT /api/variants/:variant_id
func HandleVariantUpdate(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("variant_id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid variant_id"})
	}

	var req struct {
		Name          *string                `json:"name"`
		Description   *string                `json:"description"`
		TrafficWeight *int                   `json:"traffic_weight"`
		Config        map[string]interface{} `json:"config"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := models.UpdateVariant(ctx, id, req.Name, req.Description, req.TrafficWeight, req.Config); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "update failed"})
	}
	return c.SendStatus(200)
}

// HandleVariantDelete → DELETE /api/variants/:variant_id
func HandleVariantDelete(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("variant_id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid variant_id"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := models.DeleteVariant(ctx, id); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "delete failed"})
	}
	return c.SendStatus(204)
}
