package cli

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varianta/varianta/internal/models"
)

func stubListExperiments(t *testing.T, fn func(ctx context.Context) ([]*models.Experiment, error)) {
	t.Helper()
	original := listExperimentsFn
	listExperimentsFn = fn
	t.Cleanup(func() {
		listExperimentsFn = original
	})
}

func stubFetchExperiment(t *testing.T, fn func(ctx context.Context, id uuid.UUID) (*models.Experiment, error)) {
	t.Helper()
	original := fetchExperimentFn
	fetchExperimentFn = fn
	t.Cleanup(func() {
		fetchExperimentFn = original
	})
}

func stubFetchVariants(t *testing.T, fn func(ctx context.Context, experimentID uuid.UUID) ([]*models.Variant, error)) {
	t.Helper()
	original := fetchVariantsFn
	fetchVariantsFn = fn
	t.Cleanup(func() {
		fetchVariantsFn = original
	})
}

func stubSetExperimentStatus(t *testing.T, fn func(ctx context.Context, id uuid.UUID, status string) error) {
	t.Helper()
	original := setExperimentStatusFn
	setExperimentStatusFn = fn
	t.Cleanup(func() {
		setExperimentStatusFn = original
	})
}

func sampleExperiment() *models.Experiment {
	return &models.Experiment{
		ID:                uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		Name:              "Checkout test",
		Status:            models.StatusRunning,
		TrafficAllocation: 100,
		PrimaryGoal:       "purchase",
		CreatedAt:         time.Unix(0, 0).UTC(),
		UpdatedAt:         time.Unix(0, 0).UTC(),
	}
}

func TestRunExperimentCreateRequiresGoal(t *testing.T) {
	originalGoal := experimentGoal
	experimentGoal = ""
	t.Cleanup(func() { experimentGoal = originalGoal })

	err := runExperimentCreate("Checkout test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--goal is required")
}

func TestRunExperimentCreateInvalidAllocation(t *testing.T) {
	originalGoal := experimentGoal
	originalAllocation := experimentAllocation
	experimentGoal = "purchase"
	experimentAllocation = 150
	t.Cleanup(func() {
		experimentGoal = originalGoal
		experimentAllocation = originalAllocation
	})

	err := runExperimentCreate("Checkout test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allocation must be between 1 and 100")
}

func TestRunExperimentListTable(t *testing.T) {
	stubDB(t)
	stubConnectClose(t)

	stubListExperiments(t, func(ctx context.Context) ([]*models.Experiment, error) {
		return []*models.Experiment{sampleExperiment()}, nil
	})

	output, err := captureOutput(t, func() error {
		return runExperimentList("table")
	})
	require.NoError(t, err)
	assert.Contains(t, output, "NAME")
	assert.Contains(t, output, "Checkout test")
	assert.Contains(t, output, "running")
}

func TestRunExperimentListEmpty(t *testing.T) {
	stubDB(t)
	stubConnectClose(t)

	stubListExperiments(t, func(ctx context.Context) ([]*models.Experiment, error) {
		return nil, nil
	})

	output, err := captureOutput(t, func() error {
		return runExperimentList("table")
	})
	require.NoError(t, err)
	assert.Contains(t, output, "No experiments found")
}

func TestRunExperimentListJSON(t *testing.T) {
	stubDB(t)
	stubConnectClose(t)

	stubListExperiments(t, func(ctx context.Context) ([]*models.Experiment, error) {
		return []*models.Experiment{sampleExperiment()}, nil
	})

	output, err := captureOutput(t, func() error {
		return runExperimentList("json")
	})
	require.NoError(t, err)
	assert.Contains(t, output, `"name": "Checkout test"`)
	assert.Contains(t, output, `"primary_goal": "purchase"`)
}

func TestRunExperimentListInvalidFormat(t *testing.T) {
	stubDB(t)
	stubConnectClose(t)

	stubListExperiments(t, func(ctx context.Context) ([]*models.Experiment, error) {
		return nil, nil
	})

	_, err := captureOutput(t, func() error {
		return runExperimentList("yaml")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRunExperimentShowTable(t *testing.T) {
	stubDB(t)
	stubConnectClose(t)

	experiment := sampleExperiment()
	stubFetchExperiment(t, func(ctx context.Context, id uuid.UUID) (*models.Experiment, error) {
		assert.Equal(t, experiment.ID, id)
		return experiment, nil
	})
	stubFetchVariants(t, func(ctx context.Context, experimentID uuid.UUID) ([]*models.Variant, error) {
		return []*models.Variant{
			{ID: uuid.New(), ExperimentID: experimentID, Name: "control", IsControl: true, TrafficWeight: 50},
			{ID: uuid.New(), ExperimentID: experimentID, Name: "new-checkout", TrafficWeight: 50},
		}, nil
	})

	output, err := captureOutput(t, func() error {
		return runExperimentShow(experiment.ID.String(), "table")
	})
	require.NoError(t, err)
	assert.Contains(t, output, "Checkout test")
	assert.Contains(t, output, "control")
	assert.Contains(t, output, "new-checkout")
}

func TestRunExperimentShowInvalidID(t *testing.T) {
	err := runExperimentShow("not-a-uuid", "table")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid experiment ID")
}

func TestRunExperimentStatusTransition(t *testing.T) {
	stubDB(t)
	stubConnectClose(t)

	experiment := sampleExperiment()
	experiment.Status = models.StatusDraft
	stubFetchExperiment(t, func(ctx context.Context, id uuid.UUID) (*models.Experiment, error) {
		return experiment, nil
	})

	var appliedStatus string
	stubSetExperimentStatus(t, func(ctx context.Context, id uuid.UUID, status string) error {
		appliedStatus = status
		return nil
	})

	output, err := captureOutput(t, func() error {
		return runExperimentStatus(experiment.ID.String(), "running")
	})
	require.NoError(t, err)
	assert.Equal(t, "running", appliedStatus)
	assert.Contains(t, output, "draft -> running")
}

func TestRunExperimentStatusInvalidTransition(t *testing.T) {
	stubDB(t)
	stubConnectClose(t)

	experiment := sampleExperiment()
	experiment.Status = models.StatusDraft
	stubFetchExperiment(t, func(ctx context.Context, id uuid.UUID) (*models.Experiment, error) {
		return experiment, nil
	})

	_, err := captureOutput(t, func() error {
		return runExperimentStatus(experiment.ID.String(), "completed")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid status transition")
}

func TestRunExperimentStatusUnknown(t *testing.T) {
	err := runExperimentStatus(uuid.NewString(), "finished")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")
}
