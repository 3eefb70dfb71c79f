package models

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/varianta/varianta/internal/database"
)

// Experiment lifecycle statuses. Only running experiments accrue new events.
const (
	StatusDraft     = "draft"
	StatusRunning   = "running"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusArchived  = "archived"
)

// Experiment is a configured A/B test optimizing for a primary goal event.
type Experiment struct {
	ID                uuid.UUID `json:"experiment_id"`
	Name              string    `json:"name"`
	Description       *string   `json:"description,omitempty"`
	Hypothesis        *string   `json:"hypothesis,omitempty"`
	Status            string    `json:"status"`
	TrafficAllocation int       `json:"traffic_allocation"`
	PrimaryGoal       string    `json:"primary_goal"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ValidStatus reports whether s is a known lifecycle status.
func ValidStatus(s string) bool {
	switch s {
	case StatusDraft, StatusRunning, StatusPaused, StatusCompleted, StatusArchived:
		return true
	}
	return false
}

// CanTransition reports whether an experiment may move between two statuses.
// Draft experiments start running; running ones pause or complete; paused
// ones resume or complete; completed ones archive. Archived is terminal.
func CanTransition(from, to string) bool {
	switch from {
	case StatusDraft:
		return to == StatusRunning || to == StatusArchived
	case StatusRunning:
		return to == StatusPaused || to == StatusCompleted
	case StatusPaused:
		return to == StatusRunning || to == StatusCompleted
	case StatusCompleted:
		return to == StatusArchived
	}
	return false
}

const experimentColumns = `experiment_id, name, description, hypothesis, status,
	traffic_allocation, primary_goal, created_at, updated_at`

func scanExperiment(row interface {
	Scan(dest ...interface{}) error
}) (*Experiment, error) {
	var e Experiment
	err := row.Scan(
		&e.ID,
		&e.Name,
		&e.Description,
		&e.Hypothesis,
		&e.Status,
		&e.TrafficAllocation,
		&e.PrimaryGoal,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateExperiment inserts a new draft experiment and returns the stored row.
func CreateExperiment(ctx context.Context, name string, description, hypothesis *string, trafficAllocation int, primaryGoal string) (*Experiment, error) {
	query := `
		INSERT INTO experiment (experiment_id, name, description, hypothesis, status, traffic_allocation, primary_goal, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'draft', $5, $6, NOW(), NOW())
		RETURNING ` + experimentColumns

	return scanExperiment(database.DB.QueryRowContext(ctx, query,
		uuid.New(), name, description, hypothesis, trafficAllocation, primaryGoal))
}

// GetExperiment returns one experiment or sql.ErrNoRows.
func GetExperiment(ctx context.Context, id uuid.UUID) (*Experiment, error) {
	query := `SELECT ` + experimentColumns + ` FROM experiment WHERE experiment_id = $1`
	return scanExperiment(database.DB.QueryRowContext(ctx, query, id))
}

// ListExperiments returns all experiments, newest first.
func ListExperiments(ctx context.Context) ([]*Experiment, error) {
	query := `SELECT ` + experimentColumns + ` FROM experiment ORDER BY created_at DESC`

	rows, err := database.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var experiments []*Experiment
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		experiments = append(experiments, e)
	}
	return experiments, rows.Err()
}

// UpdateExperiment patches mutable fields; nil pointers leave columns alone.
func UpdateExperiment(ctx context.Context, id uuid.UUID, name, description, hypothesis, primaryGoal *string, trafficAllocation *int) error {
	query := `
		UPDATE experiment
		SET name = COALESCE($1, name),
		    description = COALESCE($2, description),
		    hypothesis = COALESCE($3, hypothesis),
		    primary_goal = COALESCE($4, primary_goal),
		    traffic_allocation = COALESCE($5, traffic_allocation),
		    updated_at = NOW()
		WHERE experiment_id = $6`

	_, err := database.DB.ExecContext(ctx, query,
		name, description, hypothesis, primaryGoal, trafficAllocation, id)
	return err
}

// UpdateExperimentStatus sets the lifecycle status without transition checks;
// callers validate with CanTransition first.
func UpdateExperimentStatus(ctx context.Context, id uuid.UUID, status string) error {
	query := `UPDATE experiment SET status = $1, updated_at = NOW() WHERE experiment_id = $2`
	_, err := database.DB.ExecContext(ctx, query, status, id)
	return err
}

// DeleteExperiment removes the experiment; variants and events cascade.
func DeleteExperiment(ctx context.Context, id uuid.UUID) error {
	_, err := database.DB.ExecContext(ctx,
		`DELETE FROM experiment WHERE experiment_id = $1`, id)
	return err
}
