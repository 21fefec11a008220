// scope.go implements role-scope authorization middleware.
//
// The principal's role is re-resolved from the user row on every request (see
// auth.go), so a demotion or deactivation takes effect on the next request
// without invalidating the session token. These handlers only compare the
// already-resolved role against the route's scope requirement.
//
// Authentication and authorization fail differently on purpose: a bad
// credential is 401 with a generic message, while a valid credential lacking
// scope is 403. Collapsing the two would make permission debugging miserable
// without improving security, since the caller already proved who they are.
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/feedbase/feedbase/internal/api/apierror"
	"github.com/feedbase/feedbase/internal/auth"
)

// RequireHuman rejects machine principals. Admin surfaces are interactive
// only; an API key never grants admin capability regardless of its owner.
func RequireHuman() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			apierror.Authentication(c, "no principal in context")
			return
		}
		if p.Kind != auth.PrincipalHuman {
			apierror.Authorization(c, "machine credential on interactive route")
			return
		}
		c.Next()
	}
}

// RequireSuperadmin restricts a route to unrestricted admins.
func RequireSuperadmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			apierror.Authentication(c, "no principal in context")
			return
		}
		if !p.IsSuperadmin() {
			apierror.Authorization(c, "superadmin required")
			return
		}
		c.Next()
	}
}

// RequireCountryScope restricts a route to principals who may act on the
// country named by the given path parameter. Superadmins always pass; country
// admins pass only for their own country; everyone else is denied.
func RequireCountryScope(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			apierror.Authentication(c, "no principal in context")
			return
		}
		countryID := c.Param(param)
		if countryID == "" {
			apierror.Validation(c, "missing country id")
			return
		}
		if !p.CanActOnCountry(countryID) {
			apierror.Authorization(c, "no scope for country "+countryID)
			return
		}
		c.Next()
	}
}

// RequireOrganizationScope restricts a route to principals who may act on the
// organization named by the given path parameter. Superadmins and that
// organization's admins pass; a machine principal passes only for its own
// organization.
func RequireOrganizationScope(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			apierror.Authentication(c, "no principal in context")
			return
		}
		orgID := c.Param(param)
		if orgID == "" {
			apierror.Validation(c, "missing organization id")
			return
		}
		if !p.CanActOnOrganization(orgID) {
			apierror.Authorization(c, "no scope for organization "+orgID)
			return
		}
		c.Next()
	}
}
