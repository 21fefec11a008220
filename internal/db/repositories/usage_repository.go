// usage_repository.go implements UsageRepository over sqlx. The quota check
// and the usage append are one SQL statement (ReserveSlot), so a request can
// never pass the window count and then skip accounting; the reserved row IS
// the accounting. Under high concurrency the rolling window can still be
// transiently exceeded by the number of in-flight transactions, since READ
// COMMITTED counts only committed rows; that overshoot is bounded and
// accepted in favour of not serializing all writes per tenant.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/feedbase/feedbase/internal/db/models"
)

// UsageRepository handles usage accounting database operations
type UsageRepository struct {
	db *sqlx.DB
}

// NewUsageRepository creates a new UsageRepository
func NewUsageRepository(db *sqlx.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// ReserveSlot counts the organization's usage inside the trailing window and,
// only if the count is below limit, appends the new usage row, all in one
// statement. Returns the reserved row id, or ok=false when the quota is
// exhausted (no row is written in that case; rejected requests do not consume
// quota).
func (r *UsageRepository) ReserveSlot(ctx context.Context, orgID string, apiKeyID *string, endpoint, method string, limit int, windowStart time.Time) (id string, ok bool, err error) {
	query := `
		INSERT INTO api_usage (organization_id, api_key_id, endpoint, method)
		SELECT $1, $2, $3, $4
		WHERE (
			SELECT COUNT(*) FROM api_usage
			WHERE organization_id = $1 AND created_at > $5
		) < $6
		RETURNING id
	`

	err = r.db.GetContext(ctx, &id, query, orgID, apiKeyID, endpoint, method, windowStart, limit)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to reserve usage slot: %w", err)
	}
	return id, true, nil
}

// Finalize fills in the outcome of a completed request on its reserved row.
// The quota slot was already consumed at reservation time, so a failure here
// can only lose the status/latency detail, never bypass the limit.
func (r *UsageRepository) Finalize(ctx context.Context, id string, status, responseTimeMs int) error {
	query := `UPDATE api_usage SET response_status = $2, response_time_ms = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, responseTimeMs); err != nil {
		return fmt.Errorf("failed to finalize usage record: %w", err)
	}
	return nil
}

// Record appends a completed usage row in one step. Used by the Redis limiter
// backend, where admission control happens outside the database and the row
// is purely for accounting.
func (r *UsageRepository) Record(ctx context.Context, rec *models.UsageRecord) error {
	query := `
		INSERT INTO api_usage (organization_id, api_key_id, endpoint, method, response_status, response_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	row := r.db.QueryRowxContext(ctx, query,
		rec.OrganizationID, rec.APIKeyID, rec.Endpoint, rec.Method, rec.ResponseStatus, rec.ResponseTimeMs)
	if err := row.Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// CountSince returns the number of usage rows for an organization after the
// given instant.
func (r *UsageRepository) CountSince(ctx context.Context, orgID string, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM api_usage WHERE organization_id = $1 AND created_at > $2`
	if err := r.db.GetContext(ctx, &count, query, orgID, since); err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}
	return count, nil
}

// OldestInWindow returns the created_at of the oldest usage row inside the
// trailing window, or (zero, nil) when the window is empty. Drives the
// Retry-After hint: quota recovers when that row ages out.
func (r *UsageRepository) OldestInWindow(ctx context.Context, orgID string, windowStart time.Time) (time.Time, error) {
	var oldest time.Time
	query := `
		SELECT created_at FROM api_usage
		WHERE organization_id = $1 AND created_at > $2
		ORDER BY created_at ASC
		LIMIT 1
	`
	err := r.db.GetContext(ctx, &oldest, query, orgID, windowStart)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get oldest usage row: %w", err)
	}
	return oldest, nil
}

// ListByOrganization retrieves usage rows for offline accounting, newest first.
func (r *UsageRepository) ListByOrganization(ctx context.Context, orgID string, from, to time.Time, limit, offset int) ([]*models.UsageRecord, error) {
	query := `
		SELECT id, organization_id, api_key_id, endpoint, method, response_status, response_time_ms, created_at
		FROM api_usage
		WHERE organization_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`

	var records []*models.UsageRecord
	if err := r.db.SelectContext(ctx, &records, query, orgID, from, to, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	return records, nil
}
