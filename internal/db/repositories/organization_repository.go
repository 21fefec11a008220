// organization_repository.go implements OrganizationRepository, providing database
// queries for tenant CRUD and soft-disable.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/feedbase/feedbase/internal/db/models"
)

// OrganizationRepository handles database operations for organizations
type OrganizationRepository struct {
	db *sql.DB
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db *sql.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

const organizationColumns = `id, name, slug, contact_email, is_active, rate_limit_per_hour, created_at, updated_at`

func scanOrganization(row *sql.Row) (*models.Organization, error) {
	org := &models.Organization{}
	err := row.Scan(
		&org.ID,
		&org.Name,
		&org.Slug,
		&org.ContactEmail,
		&org.IsActive,
		&org.RateLimitPerHour,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// GetByID retrieves an organization by ID
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE id = $1`
	return scanOrganization(r.db.QueryRowContext(ctx, query, id))
}

// GetBySlug retrieves an organization by its unique slug
func (r *OrganizationRepository) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE slug = $1`
	return scanOrganization(r.db.QueryRowContext(ctx, query, slug))
}

// Create inserts a new organization and fills in the generated fields
func (r *OrganizationRepository) Create(ctx context.Context, org *models.Organization) error {
	query := `
		INSERT INTO organizations (name, slug, contact_email, rate_limit_per_hour)
		VALUES ($1, $2, $3, $4)
		RETURNING id, is_active, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		org.Name,
		org.Slug,
		org.ContactEmail,
		org.RateLimitPerHour,
	).Scan(&org.ID, &org.IsActive, &org.CreatedAt, &org.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	return nil
}

// Update modifies name, contact email, and the hourly quota
func (r *OrganizationRepository) Update(ctx context.Context, org *models.Organization) error {
	query := `
		UPDATE organizations
		SET name = $2, contact_email = $3, rate_limit_per_hour = $4, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, org.ID, org.Name, org.ContactEmail, org.RateLimitPerHour)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("organization not found: %s", org.ID)
	}

	return nil
}

// SetActive soft-enables or soft-disables an organization. Disabled tenants
// fail API key validation; their rows are never hard-deleted while keys
// reference them.
func (r *OrganizationRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE organizations SET is_active = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, active)
	if err != nil {
		return fmt.Errorf("failed to set organization active flag: %w", err)
	}
	return nil
}

// List retrieves all organizations ordered by creation time
func (r *OrganizationRepository) List(ctx context.Context, limit, offset int) ([]*models.Organization, error) {
	query := `
		SELECT ` + organizationColumns + `
		FROM organizations
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*models.Organization
	for rows.Next() {
		org := &models.Organization{}
		if err := rows.Scan(
			&org.ID,
			&org.Name,
			&org.Slug,
			&org.ContactEmail,
			&org.IsActive,
			&org.RateLimitPerHour,
			&org.CreatedAt,
			&org.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}

	return orgs, rows.Err()
}
