// registration_repository.go implements RegistrationRepository, the single
// write path behind self-service signup. The organization, its first admin
// user, and its first API key commit together or not at all; a partial
// signup would leave a slug claimed by an organization nobody can log in to.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/feedbase/feedbase/internal/db/models"
)

// RegistrationRepository creates a new tenant and its initial credentials in
// one transaction.
type RegistrationRepository struct {
	db *sql.DB
}

// NewRegistrationRepository creates a new RegistrationRepository
func NewRegistrationRepository(db *sql.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// CreateTenant inserts the organization, its admin user, and its first API
// key, filling in the generated fields on all three. Any failure rolls the
// whole signup back. The caller links user.OrganizationID to the new
// organization; key.OrganizationID and key.CreatedBy are filled in here once
// the generated ids exist.
func (r *RegistrationRepository) CreateTenant(ctx context.Context, org *models.Organization, user *models.User, key *models.APIKey) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin registration: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	err = tx.QueryRowContext(ctx, `
		INSERT INTO organizations (name, slug, contact_email, rate_limit_per_hour)
		VALUES ($1, $2, $3, $4)
		RETURNING id, is_active, created_at, updated_at
	`, org.Name, org.Slug, org.ContactEmail, org.RateLimitPerHour).
		Scan(&org.ID, &org.IsActive, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	user.OrganizationID = &org.ID
	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (name, email, role, country_id, organization_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, is_active, created_at, updated_at
	`, user.Name, user.Email, user.Role, user.CountryID, user.OrganizationID).
		Scan(&user.ID, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	key.OrganizationID = org.ID
	key.CreatedBy = &user.ID
	err = tx.QueryRowContext(ctx, `
		INSERT INTO api_keys (organization_id, key_hash, key_prefix, name, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, is_active, created_at
	`, key.OrganizationID, key.KeyHash, key.KeyPrefix, key.Name, key.ExpiresAt, key.CreatedBy).
		Scan(&key.ID, &key.IsActive, &key.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}

	return tx.Commit()
}
