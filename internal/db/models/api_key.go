// Package models - api_key.go defines the APIKey model for long-lived bearer
// credentials scoped to one organization.
package models

import "time"

// APIKey represents a machine credential for an organization.
// The plaintext secret is never stored, only its keyed hash. The short
// KeyPrefix is kept for display and operator debugging.
type APIKey struct {
	ID             string
	OrganizationID string
	Name           *string    // Optional friendly name (e.g. "Reporting batch job")
	KeyHash        string     // HMAC-SHA256 hex digest of the full key, unique across all keys
	KeyPrefix      string     // First chars of the full key (e.g. "fdb_live_a1b2")
	IsActive       bool       // Cleared on revocation; revocation is idempotent
	ExpiresAt      *time.Time // Optional expiry
	LastUsedAt     *time.Time // Best-effort, updated asynchronously on validation
	CreatedBy      *string    // User who issued the key, nullable for operator-issued keys
	CreatedAt      time.Time
}

// Expired reports whether the key's optional expiry has passed at the given
// instant. Keys without an expiry never expire.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}
