// Package models - user.go defines the User model for human administrator
// accounts authenticated via email OTP.
package models

import "time"

// Admin role kinds as stored in the users.role column. The tagged Role value
// that handlers authorize against is built from these in internal/auth; the
// precedence rule (superadmin overrides country/organization scoping) lives
// there as well.
const (
	RoleSuperadmin        = "superadmin"
	RoleCountryAdmin      = "country_admin"
	RoleOrganizationAdmin = "organization_admin"
	RoleMember            = "member"
)

// User represents a human account. Login is OTP-over-email; PasswordHash is
// a deprecated bcrypt hash kept only for the legacy fallback login path that
// is being phased out.
type User struct {
	ID             string
	Name           string
	Email          string // Unique
	PasswordHash   *string
	Role           string  // One of the Role* constants
	CountryID      *string // Scope for country_admin, nil otherwise
	OrganizationID *string // Scope for organization_admin, nil otherwise
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
