package handlers

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/varianta/varianta/internal/database"
	"github.com/varianta/varianta/internal/models"
)

// useMockDB swaps the global connection for a sqlmock for one test.
func useMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	original := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = original
		_ = db.Close()
	})
	return mock
}

// stubPublishLive disables the async live-counts publish for one test.
func stubPublishLive(t *testing.T) {
	t.Helper()
	original := publishLive
	publishLive = func(uuid.UUID, string) {}
	t.Cleanup(func() {
		publishLive = original
	})
}

var experimentColumns = []string{
	"experiment_id", "name", "description", "hypothesis", "status",
	"traffic_allocation", "primary_goal", "created_at", "updated_at",
}

func experimentRow(id uuid.UUID, name, status, goal string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(experimentColumns).
		AddRow(id, name, nil, nil, status, 100, goal, now, now)
}

var variantColumns = []string{
	"variant_id", "experiment_id", "name", "description",
	"is_control", "traffic_weight", "config", "created_at",
}

func variantRows(experimentID uuid.UUID, variants ...*models.Variant) *sqlmock.Rows {
	rows := sqlmock.NewRows(variantColumns)
	for _, v := range variants {
		rows.AddRow(v.ID, experimentID, v.Name, nil, v.IsControl, v.TrafficWeight, []byte(`{}`), "2025-01-01T00:00:00Z")
	}
	return rows
}

var eventColumns = []string{
	"experiment_id", "variant_id", "session_id", "event_type", "country", "created_at",
}
