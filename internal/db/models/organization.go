// Package models defines the database model types for the Feedbase backend.
// Each type corresponds to a database table. Models are pure data types;
// business logic belongs in the service layer, query logic belongs in the
// repositories layer.
package models

import "time"

// Organization represents an external tenant that calls the recommendation
// API under quota. All API keys and usage records belong to exactly one
// organization.
type Organization struct {
	ID               string
	Name             string // Human-readable display name
	Slug             string // URL-safe unique identifier
	ContactEmail     string
	IsActive         bool // Soft-disable flag; organizations are never hard-deleted while keys reference them
	RateLimitPerHour int  // Hourly request quota, evaluated over a rolling window
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
