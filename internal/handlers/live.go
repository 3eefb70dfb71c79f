package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/v3/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/varianta/varianta/internal/logging"
	"github.com/varianta/varianta/internal/models"
	"github.com/varianta/varianta/internal/realtime"
)

// RequireWebSocketUpgrade rejects plain HTTP requests to the live endpoint.
func RequireWebSocketUpgrade(c fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
		"error": "websocket upgrade required",
	})
}

// HandleLive → GET /api/live/:experiment_id (websocket)
// Sends a snapshot of per-variant counts on connect, then pushes updates
// published by the tracking path until the client goes away.
var HandleLive = websocket.New(func(conn *websocket.Conn) {
	defer func() { _ = conn.Close() }()

	id, err := uuid.Parse(conn.Params("experiment_id"))
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid experiment_id"}`))
		return
	}

	if err := writeLiveSnapshot(conn, id); err != nil {
		return
	}

	ch, cancel := realtime.Default().Subscribe(id.String())
	defer cancel()

	// Reader goroutine exists only to observe the close handshake
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case payload := <-ch:
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
})

func writeLiveSnapshot(conn *websocket.Conn, experimentID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	experiment, err := models.GetExperiment(ctx, experimentID)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"Experiment not found"}`))
		return err
	}

	counts, err := models.GetLiveCounts(ctx, experimentID, experiment.PrimaryGoal)
	if err != nil {
		logging.L().Warn("live snapshot query failed",
			zap.String("experiment_id", experimentID.String()),
			zap.Error(err))
		return err
	}

	payload, err := json.Marshal(fiber.Map{
		"experiment_id": experimentID.String(),
		"variants":      counts,
	})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}
