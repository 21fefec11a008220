package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/feedbase/feedbase/internal/audit"
	"github.com/feedbase/feedbase/internal/auth"
	"github.com/feedbase/feedbase/internal/middleware"
)

// auditEvent seeds an event with the acting principal and client address.
// Handlers fill in the resource fields before recording.
func auditEvent(c *gin.Context, action string) audit.Event {
	ev := audit.Event{
		Action:    action,
		IPAddress: c.ClientIP(),
	}
	if p, ok := middleware.GetPrincipal(c); ok {
		ev.ActorKind = string(p.Kind)
		switch p.Kind {
		case auth.PrincipalMachine:
			ev.ActorID = p.APIKeyID
			ev.OrganizationID = p.OrganizationID
		case auth.PrincipalHuman:
			ev.ActorID = p.UserID
		}
	}
	return ev
}
