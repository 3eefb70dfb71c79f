package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/varianta/varianta/internal/geoip"
	"github.com/varianta/varianta/internal/logging"
	"github.com/varianta/varianta/internal/models"
	"github.com/varianta/varianta/internal/realtime"
)

const MaxEventNameSize = 50 // Max event_type length

// TrackPayload is the /api/send body. One exposure or conversion event.
type TrackPayload struct {
	ExperimentID string `json:"experiment_id"`
	VariantID    string `json:"variant_id"`
	SessionID    string `json:"session_id"`
	EventType    string `json:"event_type"`
	Timestamp    *int64 `json:"timestamp,omitempty"`
}

// HandleTracking is the public /api/send endpoint. Events for experiments
// that are not running are acknowledged but dropped: the tracking script
// must never surface errors to visitors.
func HandleTracking(c fiber.Ctx) error {
	var payload TrackPayload
	if err := c.Bind().Body(&payload); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid JSON payload",
		})
	}

	if err := validateTrackPayload(&payload); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	experimentID, err := uuid.Parse(payload.ExperimentID)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid experiment_id",
		})
	}
	variantID, err := uuid.Parse(payload.VariantID)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid variant_id",
		})
	}

	// Public endpoint: the tracking script runs on arbitrary origins
	c.Set("Access-Control-Allow-Origin", "*")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	experiment, err := models.GetExperiment(ctx, experimentID)
	if errors.Is(err, sql.ErrNoRows) {
		return c.Status(404).JSON(fiber.Map{
			"error": "Experiment not found",
		})
	}
	if err != nil {
		logging.L().Error("experiment lookup failed",
			zap.String("experiment_id", experimentID.String()),
			zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"error": "database error",
		})
	}

	// Only running experiments accrue events. Acknowledge and drop the
	// rest so paused experiments don't break client pages.
	if experiment.Status != models.StatusRunning {
		return c.Status(200).JSON(fiber.Map{
			"dropped": "experiment_not_running",
		})
	}

	createdAt := time.Now().UTC()
	if payload.Timestamp != nil {
		createdAt = time.Unix(*payload.Timestamp, 0).UTC()
	}

	var country *string
	if code := geoip.LookupCountry(c.IP()); code != "" {
		country = &code
	}

	record := &models.EventRecord{
		ExperimentID: experimentID,
		VariantID:    variantID,
		SessionID:    payload.SessionID,
		EventType:    payload.EventType,
		Country:      country,
		CreatedAt:    createdAt,
	}

	if err := models.InsertEvent(ctx, record); err != nil {
		logging.L().Error("failed to insert event",
			zap.String("experiment_id", experimentID.String()),
			zap.String("variant_id", variantID.String()),
			zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to record event",
		})
	}

	// Push fresh counts to live dashboard watchers; never blocks tracking
	go publishLive(experimentID, experiment.PrimaryGoal)

	return c.Status(200).JSON(fiber.Map{
		"accepted": true,
	})
}

// validateTrackPayload checks required fields and bounds before any
// database work.
func validateTrackPayload(p *TrackPayload) error {
	if strings.TrimSpace(p.ExperimentID) == "" {
		return errors.New("experiment_id is required")
	}
	if strings.TrimSpace(p.VariantID) == "" {
		return errors.New("variant_id is required")
	}
	if strings.TrimSpace(p.SessionID) == "" {
		return errors.New("session_id is required")
	}
	if strings.TrimSpace(p.EventType) == "" {
		return errors.New("event_type is required")
	}
	if len(p.EventType) > MaxEventNameSize {
		return errors.New("event_type exceeds maximum length")
	}
	if p.Timestamp != nil {
		ts := time.Unix(*p.Timestamp, 0)
		if ts.Before(time.Now().Add(-30*24*time.Hour)) || ts.After(time.Now().Add(30*24*time.Hour)) {
			return errors.New("timestamp must be within 30 days")
		}
	}
	return nil
}

// publishLive is stubbed in tests to keep the async publish deterministic
var publishLive = publishLiveCounts

// publishLiveCounts fetches current per-variant totals and fans them out
// to websocket subscribers of the experiment.
func publishLiveCounts(experimentID uuid.UUID, goal string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	counts, err := models.GetLiveCounts(ctx, experimentID, goal)
	if err != nil {
		logging.L().Warn("live counts query failed",
			zap.String("experiment_id", experimentID.String()),
			zap.Error(err))
		return
	}

	payload, err := json.Marshal(fiber.Map{
		"experiment_id": experimentID.String(),
		"variants":      counts,
	})
	if err != nil {
		return
	}

	realtime.Default().Publish(experimentID.String(), payload)
}
