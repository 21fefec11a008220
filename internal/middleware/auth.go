// Package middleware provides Gin HTTP middleware for authentication,
// authorization scoping, tenant rate limiting, security headers, request IDs,
// and Prometheus metrics.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RequestID → Metrics → Auth → RateLimit → Scope → Handler
//
// Security headers run first so they appear on all responses including errors.
// Auth resolves the principal before rate limiting because the quota is
// per-organization, and the organization is only known after the credential is
// validated. Scope checks read the principal set by Auth.
package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feedbase/feedbase/internal/api/apierror"
	"github.com/feedbase/feedbase/internal/auth"
	"github.com/feedbase/feedbase/internal/config"
	"github.com/feedbase/feedbase/internal/db/models"
	"github.com/feedbase/feedbase/internal/db/repositories"
	"github.com/feedbase/feedbase/internal/safego"
	"github.com/feedbase/feedbase/internal/telemetry"
)

// Context keys set by AuthMiddleware.
const (
	// PrincipalKey holds the resolved auth.Principal.
	PrincipalKey = "principal"
	// OrganizationKey holds the *models.Organization for machine principals.
	OrganizationKey = "organization"
)

// Authenticator validates bearer credentials and resolves them to a Principal.
// It holds the repositories and the key hasher so the middleware closure stays
// small and testable.
type Authenticator struct {
	cfg        *config.Config
	hasher     *auth.KeyHasher
	apiKeyRepo *repositories.APIKeyRepository
	userRepo   *repositories.UserRepository
	orgRepo    *repositories.OrganizationRepository
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(cfg *config.Config, hasher *auth.KeyHasher, apiKeyRepo *repositories.APIKeyRepository, userRepo *repositories.UserRepository, orgRepo *repositories.OrganizationRepository) *Authenticator {
	return &Authenticator{
		cfg:        cfg,
		hasher:     hasher,
		apiKeyRepo: apiKeyRepo,
		userRepo:   userRepo,
		orgRepo:    orgRepo,
	}
}

// Middleware returns the Gin handler that authenticates every request.
//
// The credential shape routes the validation strategy: tokens matching the
// configured API key format ("fdb_<env>_...") are validated as machine keys by
// exact digest lookup, everything else is tried as a session JWT. All failure
// modes collapse to the same 401 response; the distinguishing reason goes to
// the auth_failures_total metric and the log only.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			telemetry.AuthFailuresTotal.WithLabelValues("missing_header").Inc()
			apierror.Authentication(c, err.Error())
			return
		}

		if auth.ValidKeyFormat(token, a.cfg.Auth.APIKeys.Prefix) {
			a.authenticateAPIKey(c, token)
			return
		}

		a.authenticateSession(c, token)
	}
}

// authenticateAPIKey resolves a machine credential. The stored digest is
// unique, so validation is a single indexed lookup on the HMAC of the
// presented key. Checks run in order: known, active, unexpired, owning
// organization active.
func (a *Authenticator) authenticateAPIKey(c *gin.Context, token string) {
	ctx := c.Request.Context()

	key, err := a.apiKeyRepo.GetByHash(ctx, a.hasher.Hash(token))
	if err != nil {
		apierror.Internal(c, err)
		return
	}
	if key == nil {
		telemetry.AuthFailuresTotal.WithLabelValues("unknown_key").Inc()
		apierror.Authentication(c, "api key not found")
		return
	}

	if !key.IsActive {
		telemetry.AuthFailuresTotal.WithLabelValues("revoked").Inc()
		apierror.Authentication(c, "api key revoked")
		return
	}

	if key.Expired(time.Now()) {
		telemetry.AuthFailuresTotal.WithLabelValues("expired").Inc()
		apierror.Authentication(c, "api key expired")
		return
	}

	org, err := a.orgRepo.GetByID(ctx, key.OrganizationID)
	if err != nil {
		apierror.Internal(c, err)
		return
	}
	if org == nil || !org.IsActive {
		// A disabled organization invalidates all of its keys at once.
		telemetry.AuthFailuresTotal.WithLabelValues("inactive_org").Inc()
		apierror.Authentication(c, "organization disabled")
		return
	}

	// Last-used tracking is best-effort and off the request path. A lost
	// update costs nothing but staleness in the key listing.
	keyID := key.ID
	updateLastUsed := a.apiKeyRepo.UpdateLastUsed
	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = updateLastUsed(ctx, keyID)
	})

	c.Set(PrincipalKey, auth.Principal{
		Kind:           auth.PrincipalMachine,
		OrganizationID: key.OrganizationID,
		APIKeyID:       key.ID,
	})
	c.Set(OrganizationKey, org)
	c.Next()
}

// authenticateSession resolves a human credential. The JWT carries the role
// claims, but the user row is re-read on every request so deactivation and
// role changes take effect immediately rather than at token expiry.
func (a *Authenticator) authenticateSession(c *gin.Context, token string) {
	claims, err := auth.ValidateJWT(token)
	if err != nil {
		telemetry.AuthFailuresTotal.WithLabelValues("bad_session").Inc()
		apierror.Authentication(c, "invalid session token")
		return
	}

	user, err := a.userRepo.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		apierror.Internal(c, err)
		return
	}
	if user == nil || !user.IsActive {
		telemetry.AuthFailuresTotal.WithLabelValues("bad_session").Inc()
		apierror.Authentication(c, "session user missing or deactivated")
		return
	}

	c.Set(PrincipalKey, auth.Principal{
		Kind:   auth.PrincipalHuman,
		UserID: user.ID,
		Email:  user.Email,
		Role:   auth.RoleFromUser(user),
	})
	c.Next()
}

// GetPrincipal returns the Principal set by AuthMiddleware. ok is false on
// unauthenticated routes.
func GetPrincipal(c *gin.Context) (auth.Principal, bool) {
	v, exists := c.Get(PrincipalKey)
	if !exists {
		return auth.Principal{}, false
	}
	p, ok := v.(auth.Principal)
	return p, ok
}

// GetOrganization returns the organization loaded during machine
// authentication, or nil for human principals.
func GetOrganization(c *gin.Context) *models.Organization {
	v, exists := c.Get(OrganizationKey)
	if !exists {
		return nil
	}
	org, _ := v.(*models.Organization)
	return org
}
