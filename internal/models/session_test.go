package models

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockConn(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestHashSessionToken(t *testing.T) {
	hash := HashSessionToken("some-token")
	assert.Len(t, hash, 64)
	assert.Equal(t, hash, HashSessionToken("some-token"))
	assert.NotEqual(t, hash, HashSessionToken("other-token"))
}

func TestCreateSession(t *testing.T) {
	db, mock := newMockConn(t)

	userID := uuid.New()
	mock.ExpectExec("INSERT INTO user_sessions").
		WithArgs(sqlmock.AnyArg(), userID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	token, expiresAt, err := CreateSession(context.Background(), db, userID)
	require.NoError(t, err)
	assert.Len(t, token, 64) // 32 random bytes hex-encoded
	assert.WithinDuration(t, time.Now().Add(SessionTTL), expiresAt, time.Minute)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSessionUser(t *testing.T) {
	db, mock := newMockConn(t)

	userID := uuid.New()
	hash := HashSessionToken("raw-token")
	rows := sqlmock.NewRows([]string{"user_id", "username"}).AddRow(userID, "admin")
	mock.ExpectQuery("SELECT u.user_id, u.username").
		WithArgs(hash).WillReturnRows(rows)

	user, err := GetSessionUser(context.Background(), db, hash)
	require.NoError(t, err)
	assert.Equal(t, userID, user.UserID)
	assert.Equal(t, "admin", user.Username)
	assert.Equal(t, hash, user.TokenHash)
}

func TestGetSessionUserExpired(t *testing.T) {
	db, mock := newMockConn(t)

	// The query filters on expires_at, so an expired session is no rows
	mock.ExpectQuery("SELECT u.user_id, u.username").
		WithArgs(sqlmock.AnyArg()).WillReturnError(sql.ErrNoRows)

	_, err := GetSessionUser(context.Background(), db, HashSessionToken("stale"))
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestDeleteExpiredSessions(t *testing.T) {
	db, mock := newMockConn(t)

	mock.ExpectExec("DELETE FROM user_sessions WHERE expires_at").
		WillReturnResult(sqlmock.NewResult(0, 3))

	deleted, err := DeleteExpiredSessions(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
}
