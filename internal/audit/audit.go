// Package audit emits structured records for security-relevant events:
// credential issuance and revocation, role changes, tenant lifecycle changes,
// and logins. Audit records are kept separate from application logs because
// they have different consumers and retention requirements. Application logs
// are ephemeral debug output for on-call engineers, while audit records are
// append-only history for security review and may be retained for years. The
// Shipper interface routes records to one or more destinations (file, webhook)
// independently of the application's own logging pipeline.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/feedbase/feedbase/internal/safego"
)

// Actions recorded by the admin API. The dotted form groups related events
// for downstream filtering.
const (
	ActionKeyIssued     = "apikey.issued"
	ActionKeyRevoked    = "apikey.revoked"
	ActionOrgCreated    = "organization.created"
	ActionOrgEnabled    = "organization.enabled"
	ActionOrgDisabled   = "organization.disabled"
	ActionRoleChanged   = "user.role_changed"
	ActionLogin         = "auth.login"
	ActionRegistration  = "auth.registration"
	ActionPasswordReset = "auth.password_reset_requested"
)

// Event is a single audit record. Zero-valued optional fields are omitted
// from the serialized form.
type Event struct {
	Timestamp      time.Time      `json:"timestamp"`
	Action         string         `json:"action"`
	ActorKind      string         `json:"actor_kind,omitempty"`
	ActorID        string         `json:"actor_id,omitempty"`
	OrganizationID string         `json:"organization_id,omitempty"`
	ResourceType   string         `json:"resource_type,omitempty"`
	ResourceID     string         `json:"resource_id,omitempty"`
	IPAddress      string         `json:"ip_address,omitempty"`
	Detail         map[string]any `json:"detail,omitempty"`
}

// Trail records events without blocking request handlers. A nil Trail is a
// valid no-op recorder, so callers never need to branch on whether auditing
// is configured.
type Trail struct {
	shipper Shipper
}

// NewTrail wraps a shipper in a Trail. A nil shipper yields a no-op trail.
func NewTrail(shipper Shipper) *Trail {
	if shipper == nil {
		return nil
	}
	return &Trail{shipper: shipper}
}

// Record stamps the event and ships it on a background goroutine. Delivery
// failures are logged, never surfaced to the request path: an audit outage
// must not take the API down with it.
func (t *Trail) Record(ev Event) {
	if t == nil || t.shipper == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.shipper.Ship(ctx, &ev); err != nil {
			slog.Error("failed to ship audit event", "action", ev.Action, "error", err)
		}
	})
}

// Close flushes and closes the underlying shipper.
func (t *Trail) Close() error {
	if t == nil || t.shipper == nil {
		return nil
	}
	return t.shipper.Close()
}
