package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/varianta/varianta/internal/logging"
	"github.com/varianta/varianta/internal/models"
)

const MaxBatchSize = 100 // Max events per ingest request

// IngestEvent is one event in a server-side batch. Unlike /api/send,
// callers are trusted backends and may carry their own country code.
type IngestEvent struct {
	ExperimentID string  `json:"experiment_id"`
	VariantID    string  `json:"variant_id"`
	SessionID    string  `json:"session_id"`
	EventType    string  `json:"event_type"`
	Country      *string `json:"country,omitempty"`
	Timestamp    *int64  `json:"timestamp,omitempty"`
}

// BatchIngestRequest is the /api/v1/ingest body.
type BatchIngestRequest struct {
	Events []IngestEvent `json:"events"`
}

// HandleIngest is the API-key protected batch ingestion endpoint.
// POST /api/v1/ingest
func HandleIngest(c fiber.Ctx) error {
	var req BatchIngestRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid JSON payload",
		})
	}

	if len(req.Events) == 0 {
		return c.Status(400).JSON(fiber.Map{
			"error": "events is required",
		})
	}
	if len(req.Events) > MaxBatchSize {
		return c.Status(400).JSON(fiber.Map{
			"error": "batch exceeds maximum of 100 events",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Experiment status is resolved once per batch, not once per event
	running := make(map[uuid.UUID]string) // experiment_id -> primary goal

	accepted := 0
	dropped := 0
	var firstErr string

	for i := range req.Events {
		ev := &req.Events[i]
		if err := validateIngestEvent(ev); err != nil {
			if firstErr == "" {
				firstErr = err.Error()
			}
			dropped++
			continue
		}

		experimentID, _ := uuid.Parse(ev.ExperimentID)
		variantID, _ := uuid.Parse(ev.VariantID)

		goal, ok := running[experimentID]
		if !ok {
			experiment, err := models.GetExperiment(ctx, experimentID)
			if err != nil || experiment.Status != models.StatusRunning {
				running[experimentID] = ""
				dropped++
				continue
			}
			goal = experiment.PrimaryGoal
			running[experimentID] = goal
		}
		if goal == "" {
			dropped++
			continue
		}

		createdAt := time.Now().UTC()
		if ev.Timestamp != nil {
			createdAt = time.Unix(*ev.Timestamp, 0).UTC()
		}

		record := &models.EventRecord{
			ExperimentID: experimentID,
			VariantID:    variantID,
			SessionID:    ev.SessionID,
			EventType:    ev.EventType,
			Country:      ev.Country,
			CreatedAt:    createdAt,
		}

		if err := models.InsertEvent(ctx, record); err != nil {
			logging.L().Error("ingest insert failed",
				zap.String("experiment_id", experimentID.String()),
				zap.Error(err))
			return c.Status(500).JSON(fiber.Map{
				"error":    "Failed to record events",
				"accepted": accepted,
			})
		}
		accepted++
	}

	resp := fiber.Map{
		"accepted": accepted,
		"dropped":  dropped,
	}
	if firstErr != "" {
		resp["first_error"] = firstErr
	}
	return c.Status(202).JSON(resp)
}

// validateIngestEvent checks one batch entry. Identifier parse failures
// count as validation errors so a bad entry never aborts the batch.
func validateIngestEvent(ev *IngestEvent) error {
	if strings.TrimSpace(ev.SessionID) == "" {
		return errors.New("session_id is required")
	}
	if strings.TrimSpace(ev.EventType) == "" {
		return errors.New("event_type is required")
	}
	if len(ev.EventType) > MaxEventNameSize {
		return errors.New("event_type exceeds maximum length")
	}
	if _, err := uuid.Parse(ev.ExperimentID); err != nil {
		return errors.New("invalid experiment_id")
	}
	if _, err := uuid.Parse(ev.VariantID); err != nil {
		return errors.New("invalid variant_id")
	}
	if ev.Country != nil && *ev.Country != "" && len(*ev.Country) != 2 {
		return errors.New("country must be a 2-letter code")
	}
	if ev.Timestamp != nil {
		ts := time.Unix(*ev.Timestamp, 0)
		if ts.Before(time.Now().Add(-30*24*time.Hour)) || ts.After(time.Now().Add(30*24*time.Hour)) {
			return errors.New("timestamp must be within 30 days")
		}
	}
	return nil
}
