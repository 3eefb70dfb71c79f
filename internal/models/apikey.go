package models

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/varianta/varianta/internal/database"
)

// APIKey authenticates server-side event ingestion. Keys are instance-wide;
// scopes restrict which endpoints a key may call.
type APIKey struct {
	KeyID              uuid.UUID  `json:"key_id"`
	CreatedBy          *uuid.UUID `json:"created_by,omitempty"`
	KeyHash            string     `json:"-"` // Never expose hash
	KeyPrefix          string     `json:"key_prefix"`
	Name               *string    `json:"name,omitempty"`
	Scopes             []string   `json:"scopes"`
	RateLimitPerMinute int        `json:"rate_limit_per_minute"`
	CreatedAt          time.Time  `json:"created_at"`
	LastUsedAt         *time.Time `json:"last_used_at,omitempty"`
	RevokedAt          *time.Time `json:"revoked_at,omitempty"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
}

// APIKeyCreateResult contains the full key (shown once) and the stored record
type APIKeyCreateResult struct {
	FullKey string  `json:"api_key"` // Only returned on creation
	APIKey  *APIKey `json:"key"`
}

const (
	apiKeyPrefix = "varianta_live_"
	keyByteLen   = 32 // 256-bit entropy
)

// GenerateAPIKey creates a new API key with default ingest scope
func GenerateAPIKey(createdBy *uuid.UUID, name *string) (*APIKeyCreateResult, error) {
	return GenerateAPIKeyWithScopes(createdBy, name, []string{"ingest"})
}

// GenerateAPIKeyWithScopes creates a new API key with custom scopes
func GenerateAPIKeyWithScopes(createdBy *uuid.UUID, name *string, scopes []string) (*APIKeyCreateResult, error) {
	validScopes := map[string]bool{"ingest": true, "results": true}
	for _, scope := range scopes {
		if !validScopes[scope] {
			return nil, fmt.Errorf("invalid scope: %s (valid: ingest, results)", scope)
		}
	}
	if len(scopes) == 0 {
		scopes = []string{"ingest"}
	}

	// 32 random bytes; full key: varianta_live_<64 hex chars>
	randomBytes := make([]byte, keyByteLen)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, err
	}
	fullKey := apiKeyPrefix + hex.EncodeToString(randomBytes)

	keyHash := HashAPIKey(fullKey)

	// Prefix for display (first 16 chars including prefix)
	keyPrefixDisplay := fullKey[:16]

	keyID := uuid.New()

	query := `
		INSERT INTO api_keys (key_id, created_by, key_hash, key_prefix, name, scopes, rate_limit_per_minute, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING key_id, created_by, key_prefix, name, scopes, rate_limit_per_minute, created_at
	`

	var apiKey APIKey
	var createdByNull sql.NullString
	if createdBy != nil {
		createdByNull = sql.NullString{String: createdBy.String(), Valid: true}
	}
	var scopesJoined string

	err := database.DB.QueryRow(
		query,
		keyID,
		createdByNull,
		keyHash,
		keyPrefixDisplay,
		name,
		strings.Join(scopes, ","),
		600, // Default rate limit
	).Scan(
		&apiKey.KeyID,
		&createdByNull,
		&apiKey.KeyPrefix,
		&apiKey.Name,
		&scopesJoined,
		&apiKey.RateLimitPerMinute,
		&apiKey.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if createdByNull.Valid {
		id, _ := uuid.Parse(createdByNull.String)
		apiKey.CreatedBy = &id
	}
	apiKey.Scopes = splitScopes(scopesJoined)

	return &APIKeyCreateResult{
		FullKey: fullKey,
		APIKey:  &apiKey,
	}, nil
}

// HashAPIKey creates SHA256 hash of an API key for lookup
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

func splitScopes(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ",")
}

const apiKeyColumns = `key_id, created_by, key_prefix, name, scopes,
	rate_limit_per_minute, created_at, last_used_at, revoked_at, expires_at`

func scanAPIKey(row interface {
	Scan(dest ...interface{}) error
}) (*APIKey, error) {
	var apiKey APIKey
	var createdByNull, nameNull sql.NullString
	var scopesJoined string
	var lastUsedAt, revokedAt, expiresAt sql.NullTime

	err := row.Scan(
		&apiKey.KeyID,
		&createdByNull,
		&apiKey.KeyPrefix,
		&nameNull,
		&scopesJoined,
		&apiKey.RateLimitPerMinute,
		&apiKey.CreatedAt,
		&lastUsedAt,
		&revokedAt,
		&expiresAt,
	)
	if err != nil {
		return nil, err
	}

	if createdByNull.Valid {
		id, _ := uuid.Parse(createdByNull.String)
		apiKey.CreatedBy = &id
	}
	if nameNull.Valid {
		apiKey.Name = &nameNull.String
	}
	apiKey.Scopes = splitScopes(scopesJoined)
	if lastUsedAt.Valid {
		apiKey.LastUsedAt = &lastUsedAt.Time
	}
	if revokedAt.Valid {
		apiKey.RevokedAt = &revokedAt.Time
	}
	if expiresAt.Valid {
		apiKey.ExpiresAt = &expiresAt.Time
	}

	return &apiKey, nil
}

// GetAPIKeyByHash retrieves an API key by its hash (for authentication)
func GetAPIKeyByHash(keyHash string) (*APIKey, error) {
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE key_hash = $1
		  AND revoked_at IS NULL
		  AND (expires_at IS NULL OR expires_at > NOW())
	`
	return scanAPIKey(database.DB.QueryRow(query, keyHash))
}

// GetAPIKeyByID retrieves an API key by its ID
func GetAPIKeyByID(keyID uuid.UUID) (*APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_id = $1`
	return scanAPIKey(database.DB.QueryRow(query, keyID))
}

// GetAPIKeyByPrefix retrieves an API key by its display prefix
func GetAPIKeyByPrefix(prefix string) (*APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_prefix = $1`
	return scanAPIKey(database.DB.QueryRow(query, prefix))
}

// ListAPIKeys returns all API keys, newest first, including revoked ones.
func ListAPIKeys() ([]*APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys ORDER BY created_at DESC`

	rows, err := database.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var keys []*APIKey
	for rows.Next() {
		apiKey, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, apiKey)
	}

	return keys, rows.Err()
}

// RevokeAPIKey marks an API key as revoked
func RevokeAPIKey(keyID uuid.UUID) error {
	query := `UPDATE api_keys SET revoked_at = NOW() WHERE key_id = $1 AND revoked_at IS NULL`
	result, err := database.DB.Exec(query, keyID)
	if err != nil {
		return err
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RevokeAPIKeyByPrefix revokes a key by its prefix
func RevokeAPIKeyByPrefix(prefix string) error {
	query := `UPDATE api_keys SET revoked_at = NOW() WHERE key_prefix = $1 AND revoked_at IS NULL`
	result, err := database.DB.Exec(query, prefix)
	if err != nil {
		return err
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateAPIKeyLastUsed updates the last_used_at timestamp (fire and forget)
func UpdateAPIKeyLastUsed(keyID uuid.UUID) {
	if database.DB == nil {
		return // Skip if no database connection (e.g., during tests)
	}
	query := `UPDATE api_keys SET last_used_at = NOW() WHERE key_id = $1`
	_, _ = database.DB.Exec(query, keyID)
}

// HasScope checks if the API key has a specific scope
func (k *APIKey) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// IsValid checks if the key is valid (not revoked, not expired)
func (k *APIKey) IsValid() bool {
	if k.RevokedAt != nil {
		return false
	}
	if k.ExpiresAt != nil && k.ExpiresAt.Before(time.Now()) {
		return false
	}
	return true
}
