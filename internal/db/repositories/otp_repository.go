// otp_repository.go implements OtpRepository over sqlx, providing the
// concurrency-critical conditional-update queries behind OTP issuance and
// verification. The single-use guarantee lives entirely in Consume's WHERE
// clause: the row is read, compared, and marked used in one statement, so
// among N concurrent verifications of the same code exactly one sees
// is_used = FALSE and wins.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/feedbase/feedbase/internal/db/models"
)

// OtpRepository handles OTP code database operations
type OtpRepository struct {
	db *sqlx.DB
}

// NewOtpRepository creates a new OtpRepository
func NewOtpRepository(db *sqlx.DB) *OtpRepository {
	return &OtpRepository{db: db}
}

// CountCreatedSince returns how many codes were issued for (email, purpose)
// after the given instant. Drives the rolling-hour request cap, which is
// checked before any new code is generated.
func (r *OtpRepository) CountCreatedSince(ctx context.Context, email string, purpose models.OtpPurpose, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM otp_codes WHERE email = $1 AND purpose = $2 AND created_at > $3`
	if err := r.db.GetContext(ctx, &count, query, email, purpose, since); err != nil {
		return 0, fmt.Errorf("failed to count otp requests: %w", err)
	}
	return count, nil
}

// ReplaceActive retires any live code for (email, purpose) and inserts the
// replacement in one transaction. Retire and insert must commit together:
// two concurrent requests for the same identity would otherwise both retire,
// then race their inserts into the partial unique index on active codes. At
// most one code per identity is ever live.
func (r *OtpRepository) ReplaceActive(ctx context.Context, otp *models.OtpCode) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to replace active otp: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	retire := `UPDATE otp_codes SET is_used = TRUE WHERE email = $1 AND purpose = $2 AND is_used = FALSE`
	if _, err := tx.ExecContext(ctx, retire, otp.Email, otp.Purpose); err != nil {
		return fmt.Errorf("failed to retire active otp: %w", err)
	}

	insert := `
		INSERT INTO otp_codes (email, otp_code, purpose, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, is_used, attempts, created_at
	`
	row := tx.QueryRowxContext(ctx, insert, otp.Email, otp.Code, otp.Purpose, otp.ExpiresAt)
	if err := row.Scan(&otp.ID, &otp.IsUsed, &otp.Attempts, &otp.CreatedAt); err != nil {
		return fmt.Errorf("failed to create otp code: %w", err)
	}

	return tx.Commit()
}

// Consume atomically marks the latest live code for (email, purpose) as used,
// but only if the presented code matches and the attempt ceiling has not been
// reached. Returns (nil, nil) when no row qualified: wrong code, expired,
// already used, or attempts exhausted; the caller inspects the latest row to
// classify the failure for logging.
func (r *OtpRepository) Consume(ctx context.Context, email string, purpose models.OtpPurpose, code string, maxAttempts int, now time.Time) (*models.OtpCode, error) {
	query := `
		UPDATE otp_codes
		SET is_used = TRUE
		WHERE id = (
			SELECT id FROM otp_codes
			WHERE email = $1 AND purpose = $2 AND is_used = FALSE AND expires_at > $3
			ORDER BY created_at DESC
			LIMIT 1
		)
		AND is_used = FALSE
		AND otp_code = $4
		AND attempts < $5
		RETURNING id, email, otp_code, purpose, expires_at, is_used, attempts, created_at
	`

	otp := &models.OtpCode{}
	err := r.db.GetContext(ctx, otp, query, email, purpose, now, code, maxAttempts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume otp code: %w", err)
	}
	return otp, nil
}

// GetLatest returns the most recent code row for (email, purpose) regardless
// of state, or (nil, nil) when none exists. Used to classify a failed
// verification and to attribute the attempt increment.
func (r *OtpRepository) GetLatest(ctx context.Context, email string, purpose models.OtpPurpose) (*models.OtpCode, error) {
	query := `
		SELECT id, email, otp_code, purpose, expires_at, is_used, attempts, created_at
		FROM otp_codes
		WHERE email = $1 AND purpose = $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	otp := &models.OtpCode{}
	err := r.db.GetContext(ctx, otp, query, email, purpose)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest otp code: %w", err)
	}
	return otp, nil
}

// IncrementAttempts bumps the attempt counter for a failed comparison and
// returns the new value.
func (r *OtpRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	query := `UPDATE otp_codes SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts`
	if err := r.db.GetContext(ctx, &attempts, query, id); err != nil {
		return 0, fmt.Errorf("failed to increment otp attempts: %w", err)
	}
	return attempts, nil
}

// DeleteExpired removes codes that expired before the cutoff. Housekeeping
// only; expiry is enforced by timestamp comparison at verification time, so
// correctness never depends on this running.
func (r *OtpRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM otp_codes WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired otp codes: %w", err)
	}
	return result.RowsAffected()
}
