package cli

import (
	"context"
	"fmt"
	"time"

	fiberzap "github.com/gofiber/contrib/v3/zap"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/template/html/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/varianta/varianta/internal/config"
	"github.com/varianta/varianta/internal/database"
	"github.com/varianta/varianta/internal/geoip"
	"github.com/varianta/varianta/internal/handlers"
	"github.com/varianta/varianta/internal/logging"
	"github.com/varianta/varianta/internal/middleware"
	"github.com/varianta/varianta/internal/models"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the varianta server",
	Long: `Run the HTTP server: tracking and ingestion endpoints, the
experiment management API, results queries, and the live websocket feed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, err := config.LoadWithOverrides(flagDatabaseURL, flagPort, flagDataDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("no database configured: set DATABASE_URL or database_url in varianta.toml")
	}

	if err := database.ConnectWithURL(cfg.DatabaseURL); err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	if err := database.Migrate(); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	// Country enrichment is best-effort: the server runs without it
	if cfg.GeoIPDB != "" {
		_ = geoip.InitFile(cfg.GeoIPDB)
	} else {
		_ = geoip.Init(cfg.DataDir)
	}
	defer func() { _ = geoip.Close() }()

	handlers.SetMinSampleSize(cfg.MinSampleSize)
	handlers.SetSecureCookies(cfg.SecureCookies)

	go sessionCleanupLoop()

	app := newServerApp()

	logging.L().Info("server starting",
		zap.String("port", cfg.Port),
		zap.Int("min_sample_size", cfg.MinSampleSize))

	return app.Listen(":" + cfg.Port)
}

// sessionCleanupLoop clears expired dashboard sessions hourly.
func sessionCleanupLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		deleted, err := models.DeleteExpiredSessions(ctx, database.DB)
		cancel()
		if err != nil {
			logging.L().Warn("session cleanup failed", zap.Error(err))
			continue
		}
		if deleted > 0 {
			logging.L().Debug("expired sessions deleted", zap.Int64("count", deleted))
		}
	}
}

// newServerApp assembles the Fiber app and all routes.
func newServerApp() *fiber.App {
	engine := html.New("./views", ".html")

	cfg := createFiberConfig("varianta")
	cfg.Views = engine
	app := fiber.New(cfg)

	app.Use(fiberzap.New(fiberzap.Config{
		Logger: logging.L(),
	}))

	// Public surface
	app.Get("/", handlers.HandleIndex)
	app.Post("/api/send", handlers.HandleTracking)

	// Server-side ingestion (API key)
	app.Post("/api/v1/ingest", handlers.HandleIngest, middleware.APIKeyAuth)

	// Auth
	app.Post("/api/auth/login", handlers.HandleLogin)
	app.Post("/api/auth/logout", handlers.HandleLogout, middleware.RequireAuth)

	// Experiment management (session)
	api := app.Group("/api/experiments", middleware.RequireAuth)
	api.Get("/", handlers.HandleExperimentList)
	api.Post("/", handlers.HandleExperimentCreate)
	api.Get("/:experiment_id", handlers.HandleExperimentGet)
	api.Put("/:experiment_id", handlers.HandleExperimentUpdate)
	api.Delete("/:experiment_id", handlers.HandleExperimentDelete)
	api.Put("/:experiment_id/status", handlers.HandleExperimentStatus)
	api.Post("/:experiment_id/variants", handlers.HandleVariantCreate)
	api.Get("/:experiment_id/results", handlers.HandleResults)
	api.Get("/:experiment_id/timeseries", handlers.HandleTimeseries)
	api.Get("/:experiment_id/breakdown/country", handlers.HandleCountryBreakdown)

	variants := app.Group("/api/variants", middleware.RequireAuth)
	variants.Put("/:variant_id", handlers.HandleVariantUpdate)
	variants.Delete("/:variant_id", handlers.HandleVariantDelete)

	// Live counts websocket
	app.Get("/api/live/:experiment_id", handlers.HandleLive, handlers.RequireWebSocketUpgrade)

	return app
}

func init() {
	RootCmd.AddCommand(serveCmd)
}
