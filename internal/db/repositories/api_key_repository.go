// api_key_repository.go implements APIKeyRepository, providing database queries for
// API key creation, unique-hash lookup, revocation, and last-used timestamp updates.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/feedbase/feedbase/internal/db/models"
)

// APIKeyRepository handles API key database operations
type APIKeyRepository struct {
	db *sql.DB
}

// NewAPIKeyRepository creates a new APIKeyRepository
func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

const apiKeyColumns = `id, organization_id, key_hash, key_prefix, name, is_active, expires_at, last_used_at, created_by, created_at`

func scanAPIKey(row *sql.Row) (*models.APIKey, error) {
	key := &models.APIKey{}
	err := row.Scan(
		&key.ID,
		&key.OrganizationID,
		&key.KeyHash,
		&key.KeyPrefix,
		&key.Name,
		&key.IsActive,
		&key.ExpiresAt,
		&key.LastUsedAt,
		&key.CreatedBy,
		&key.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return key, nil
}

// Create inserts a new API key record. Only the keyed hash and the display
// prefix are persisted; the plaintext never reaches this layer.
func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	query := `
		INSERT INTO api_keys (organization_id, key_hash, key_prefix, name, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, is_active, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		key.OrganizationID,
		key.KeyHash,
		key.KeyPrefix,
		key.Name,
		key.ExpiresAt,
		key.CreatedBy,
	).Scan(&key.ID, &key.IsActive, &key.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}

	return nil
}

// GetByHash retrieves an API key by its unique hash. This is the hot path of
// every machine-authenticated request: a single indexed exact-match lookup.
func (r *APIKeyRepository) GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_hash = $1`
	return scanAPIKey(r.db.QueryRowContext(ctx, query, keyHash))
}

// GetByID retrieves an API key by ID
func (r *APIKeyRepository) GetByID(ctx context.Context, id string) (*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`
	return scanAPIKey(r.db.QueryRowContext(ctx, query, id))
}

// ListByOrganization retrieves all keys belonging to one organization
func (r *APIKeyRepository) ListByOrganization(ctx context.Context, orgID string) ([]*models.APIKey, error) {
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE organization_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		key := &models.APIKey{}
		if err := rows.Scan(
			&key.ID,
			&key.OrganizationID,
			&key.KeyHash,
			&key.KeyPrefix,
			&key.Name,
			&key.IsActive,
			&key.ExpiresAt,
			&key.LastUsedAt,
			&key.CreatedBy,
			&key.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// Revoke clears the active flag. Idempotent: revoking an already-revoked key
// succeeds without touching other rows.
func (r *APIKeyRepository) Revoke(ctx context.Context, id string) error {
	query := `UPDATE api_keys SET is_active = FALSE WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}
	return nil
}

// UpdateLastUsed sets the last-used timestamp. Called asynchronously after a
// successful validation; a lost update here is acceptable.
func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, id string) error {
	query := `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, time.Now())
	return err
}
