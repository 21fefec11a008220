// Package models - otp_code.go defines the OtpCode model for short-lived
// numeric login codes delivered over email.
package models

import "time"

// OtpPurpose distinguishes why a code was requested. Request-rate caps and
// active-code lookups are keyed by (email, purpose), so a pending login code
// never interferes with a pending registration code for the same address.
type OtpPurpose string

const (
	OtpPurposeLogin         OtpPurpose = "login"
	OtpPurposeRegistration  OtpPurpose = "registration"
	OtpPurposePasswordReset OtpPurpose = "password_reset"
)

// ValidOtpPurpose reports whether s is one of the known purposes.
func ValidOtpPurpose(s string) bool {
	switch OtpPurpose(s) {
	case OtpPurposeLogin, OtpPurposeRegistration, OtpPurposePasswordReset:
		return true
	}
	return false
}

// OtpCode represents a one-time passcode. It is keyed by email, not by user:
// a registration code must be valid before any user record exists.
//
// A code is valid only while IsUsed is false, ExpiresAt is in the future, and
// Attempts is below the configured ceiling. Consumption (read-compare-mark
// used) is a single atomic conditional UPDATE in the repository so two
// concurrent verifications of the same code cannot both succeed.
type OtpCode struct {
	ID        string     `db:"id"`
	Email     string     `db:"email"`
	Code      string     `db:"otp_code"` // 6 decimal digits, leading zeros preserved
	Purpose   OtpPurpose `db:"purpose"`
	ExpiresAt time.Time  `db:"expires_at"`
	IsUsed    bool       `db:"is_used"`
	Attempts  int        `db:"attempts"` // Incremented on every failed comparison
	CreatedAt time.Time  `db:"created_at"`
}
