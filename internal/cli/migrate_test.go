package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubMigrate(t *testing.T, fn func() error) {
	t.Helper()
	original := migrateFn
	migrateFn = fn
	t.Cleanup(func() {
		migrateFn = original
	})
}

func TestRunMigrateSuccess(t *testing.T) {
	stubDB(t)
	stubConnectClose(t)
	stubMigrate(t, func() error { return nil })

	output, err := captureOutput(t, func() error {
		return runMigrate()
	})
	require.NoError(t, err)
	assert.Contains(t, output, "Migrations applied successfully")
}

func TestRunMigrateFailure(t *testing.T) {
	stubDB(t)
	stubConnectClose(t)
	stubMigrate(t, func() error { return errors.New("dirty database version") })

	_, err := captureOutput(t, func() error {
		return runMigrate()
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrations failed")
	assert.Contains(t, err.Error(), "dirty database version")
}
