// Package auth - roles.go implements the role and scope model.
//
// A user's capability is a single tagged Role value rather than independent
// nullable admin flags on the user record. This makes the precedence rule
// (superadmin overrides country scoping overrides organization scoping) a
// total function over four cases instead of an if-chain over nullable fields,
// and a user can never be in a contradictory state such as "superadmin AND
// scoped to one country".
package auth

import "github.com/feedbase/feedbase/internal/db/models"

// RoleKind enumerates the role tags, most to least privileged.
type RoleKind string

const (
	RoleSuperadmin        RoleKind = models.RoleSuperadmin
	RoleCountryAdmin      RoleKind = models.RoleCountryAdmin
	RoleOrganizationAdmin RoleKind = models.RoleOrganizationAdmin
	RoleMember            RoleKind = models.RoleMember
)

// Role is the tagged capability of a human principal. Exactly one of the
// scope fields is meaningful, selected by Kind:
//
//	Superadmin        - no scope restriction
//	CountryAdmin      - restricted to CountryID
//	OrganizationAdmin - restricted to OrganizationID
//	Member            - authenticated, no admin capability
type Role struct {
	Kind           RoleKind
	CountryID      string
	OrganizationID string
}

// RoleFromUser resolves the stored role columns into a tagged Role. Unknown
// or inconsistent rows (e.g. country_admin with no country id) degrade to
// Member rather than granting any scope.
func RoleFromUser(u *models.User) Role {
	switch u.Role {
	case models.RoleSuperadmin:
		return Role{Kind: RoleSuperadmin}
	case models.RoleCountryAdmin:
		if u.CountryID == nil || *u.CountryID == "" {
			return Role{Kind: RoleMember}
		}
		return Role{Kind: RoleCountryAdmin, CountryID: *u.CountryID}
	case models.RoleOrganizationAdmin:
		if u.OrganizationID == nil || *u.OrganizationID == "" {
			return Role{Kind: RoleMember}
		}
		return Role{Kind: RoleOrganizationAdmin, OrganizationID: *u.OrganizationID}
	}
	return Role{Kind: RoleMember}
}

// PrincipalKind distinguishes how a principal authenticated.
type PrincipalKind string

const (
	// PrincipalMachine is an organization authenticated by bearer API key.
	PrincipalMachine PrincipalKind = "machine"
	// PrincipalHuman is a user authenticated by OTP login (session JWT).
	PrincipalHuman PrincipalKind = "human"
)

// Principal is the resolved identity of an authenticated request. A machine
// principal carries the owning organization and key id; a human principal
// carries the user id and their Role.
type Principal struct {
	Kind           PrincipalKind
	OrganizationID string // Machine: owning organization
	APIKeyID       string // Machine: the validated key
	UserID         string // Human
	Email          string // Human
	Role           Role   // Human; zero value (Member, no scope) for machines
}

// CanActOnCountry reports whether the principal may perform country-scoped
// actions (e.g. editing a feed record) for the given country. Machine
// principals never hold country scope.
func (p Principal) CanActOnCountry(countryID string) bool {
	if p.Kind != PrincipalHuman {
		return false
	}
	switch p.Role.Kind {
	case RoleSuperadmin:
		return true
	case RoleCountryAdmin:
		return countryID != "" && p.Role.CountryID == countryID
	}
	return false
}

// CanActOnOrganization reports whether the principal may perform
// organization-scoped actions (e.g. managing API keys) for the given
// organization. A machine principal may act only on its own organization.
func (p Principal) CanActOnOrganization(orgID string) bool {
	if orgID == "" {
		return false
	}
	if p.Kind == PrincipalMachine {
		return p.OrganizationID == orgID
	}
	switch p.Role.Kind {
	case RoleSuperadmin:
		return true
	case RoleOrganizationAdmin:
		return p.Role.OrganizationID == orgID
	}
	return false
}

// IsSuperadmin reports whether the principal is an unrestricted human admin.
func (p Principal) IsSuperadmin() bool {
	return p.Kind == PrincipalHuman && p.Role.Kind == RoleSuperadmin
}
