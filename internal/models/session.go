package models

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// SessionTTL is how long a dashboard login stays valid.
const SessionTTL = 7 * 24 * time.Hour

// SessionUser is the authenticated identity attached to a request.
type SessionUser struct {
	UserID    uuid.UUID
	Username  string
	TokenHash string
}

// HashSessionToken hashes a raw session token for storage and lookup.
// Only the hash ever touches the database.
func HashSessionToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// CreateSession issues a new session for a user and returns the raw token
// to be set as a cookie.
func CreateSession(ctx context.Context, db *sql.DB, userID uuid.UUID) (string, time.Time, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", time.Time{}, err
	}
	token := hex.EncodeToString(tokenBytes)
	expiresAt := time.Now().Add(SessionTTL)

	query := `
		INSERT INTO user_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
	`

	if _, err := db.ExecContext(ctx, query, HashSessionToken(token), userID, expiresAt); err != nil {
		return "", time.Time{}, err
	}

	return token, expiresAt, nil
}

// GetSessionUser resolves a token hash to its user. Expired sessions
// behave exactly like missing ones (sql.ErrNoRows).
func GetSessionUser(ctx context.Context, db *sql.DB, tokenHash string) (*SessionUser, error) {
	query := `
		SELECT u.user_id, u.username
		FROM user_sessions s
		JOIN users u ON u.user_id = s.user_id
		WHERE s.token_hash = $1 AND s.expires_at > NOW()
	`

	user := &SessionUser{TokenHash: tokenHash}
	err := db.QueryRowContext(ctx, query, tokenHash).Scan(&user.UserID, &user.Username)
	if err != nil {
		return nil, err
	}

	return user, nil
}

// DeleteSession removes a session (logout).
func DeleteSession(ctx context.Context, db *sql.DB, tokenHash string) error {
	_, err := db.ExecContext(ctx, "DELETE FROM user_sessions WHERE token_hash = $1", tokenHash)
	return err
}

// DeleteExpiredSessions clears out stale rows. Called opportunistically
// from the serve loop.
func DeleteExpiredSessions(ctx context.Context, db *sql.DB) (int64, error) {
	result, err := db.ExecContext(ctx, "DELETE FROM user_sessions WHERE expires_at <= NOW()")
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
