// Package models - usage_record.go defines the UsageRecord model, the
// append-only accounting event behind both rate limiting and billing.
package models

import "time"

// UsageRecord is one accounted API request by a tenant. Rows are reserved
// atomically together with the rolling-window quota check before the handler
// runs, then finalized with status and latency after it completes. The
// (organization_id, created_at) index drives the window count.
type UsageRecord struct {
	ID             string    `db:"id"`
	OrganizationID string    `db:"organization_id"`
	APIKeyID       *string   `db:"api_key_id"` // Nullable: requests authenticated by session rather than key
	Endpoint       string    `db:"endpoint"`
	Method         string    `db:"method"`
	ResponseStatus int       `db:"response_status"`
	ResponseTimeMs int       `db:"response_time_ms"`
	CreatedAt      time.Time `db:"created_at"`
}
