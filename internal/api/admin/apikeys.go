package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feedbase/feedbase/internal/api/apierror"
	"github.com/feedbase/feedbase/internal/audit"
	"github.com/feedbase/feedbase/internal/auth"
	"github.com/feedbase/feedbase/internal/config"
	"github.com/feedbase/feedbase/internal/db/models"
	"github.com/feedbase/feedbase/internal/db/repositories"
	"github.com/feedbase/feedbase/internal/middleware"
	"github.com/feedbase/feedbase/internal/telemetry"
)

// APIKeyHandlers handles API key management endpoints
type APIKeyHandlers struct {
	cfg        *config.Config
	hasher     *auth.KeyHasher
	apiKeyRepo *repositories.APIKeyRepository
	trail      *audit.Trail
}

// NewAPIKeyHandlers creates a new APIKeyHandlers instance
func NewAPIKeyHandlers(cfg *config.Config, hasher *auth.KeyHasher, apiKeyRepo *repositories.APIKeyRepository, trail *audit.Trail) *APIKeyHandlers {
	return &APIKeyHandlers{cfg: cfg, hasher: hasher, apiKeyRepo: apiKeyRepo, trail: trail}
}

// IssueKeyRequest is the payload for issuing a new API key.
type IssueKeyRequest struct {
	Name      *string    `json:"name"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func apiKeyJSON(key *models.APIKey) gin.H {
	out := gin.H{
		"id":              key.ID,
		"organization_id": key.OrganizationID,
		"name":            key.Name,
		"key_prefix":      key.KeyPrefix,
		"is_active":       key.IsActive,
		"created_at":      key.CreatedAt.Format(time.RFC3339),
	}
	if key.ExpiresAt != nil {
		out["expires_at"] = key.ExpiresAt.Format(time.RFC3339)
	}
	if key.LastUsedAt != nil {
		out["last_used_at"] = key.LastUsedAt.Format(time.RFC3339)
	}
	return out
}

// @Summary      Issue API key
// @Description  Issues a new key for the organization. The plaintext key appears in this response only and is never retrievable again.
// @Tags         API Keys
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  IssueKeyRequest  false  "Key options"
// @Success      201  {object}  map[string]interface{}
// @Router       /api/v1/organizations/{orgId}/apikeys [post]
// POST /api/v1/organizations/:orgId/apikeys
func (h *APIKeyHandlers) Issue(c *gin.Context) {
	var req IssueKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		apierror.Validation(c, err.Error())
		return
	}

	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		apierror.Validation(c, "expires_at must be in the future")
		return
	}

	plaintext, displayPrefix, err := auth.GenerateAPIKey(h.cfg.Auth.APIKeys.Prefix, h.cfg.Auth.APIKeys.Env)
	if err != nil {
		apierror.Internal(c, err)
		return
	}

	key := &models.APIKey{
		OrganizationID: c.Param("orgId"),
		Name:           req.Name,
		KeyHash:        h.hasher.Hash(plaintext),
		KeyPrefix:      displayPrefix,
		ExpiresAt:      req.ExpiresAt,
	}
	if p, ok := middleware.GetPrincipal(c); ok && p.Kind == auth.PrincipalHuman {
		userID := p.UserID
		key.CreatedBy = &userID
	}

	if err := h.apiKeyRepo.Create(c.Request.Context(), key); err != nil {
		apierror.Internal(c, err)
		return
	}

	telemetry.APIKeysIssuedTotal.Inc()

	ev := auditEvent(c, audit.ActionKeyIssued)
	ev.OrganizationID = key.OrganizationID
	ev.ResourceType = "api_key"
	ev.ResourceID = key.ID
	h.trail.Record(ev)

	resp := apiKeyJSON(key)
	resp["key"] = plaintext
	c.JSON(http.StatusCreated, resp)
}

// GET /api/v1/organizations/:orgId/apikeys
func (h *APIKeyHandlers) List(c *gin.Context) {
	keys, err := h.apiKeyRepo.ListByOrganization(c.Request.Context(), c.Param("orgId"))
	if err != nil {
		apierror.Internal(c, err)
		return
	}

	resp := make([]gin.H, 0, len(keys))
	for _, key := range keys {
		resp = append(resp, apiKeyJSON(key))
	}
	c.JSON(http.StatusOK, gin.H{"api_keys": resp})
}

// @Summary      Revoke API key
// @Description  Revokes a key belonging to the organization. Idempotent: revoking an already revoked key succeeds.
// @Tags         API Keys
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      403  {object}  map[string]interface{}  "Key belongs to another organization"
// @Router       /api/v1/organizations/{orgId}/apikeys/{keyId} [delete]
// DELETE /api/v1/organizations/:orgId/apikeys/:keyId
func (h *APIKeyHandlers) Revoke(c *gin.Context) {
	key, err := h.apiKeyRepo.GetByID(c.Request.Context(), c.Param("keyId"))
	if err != nil {
		apierror.Internal(c, err)
		return
	}
	if key == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
		return
	}
	// The scope middleware has already matched the principal against :orgId;
	// this check stops a tenant admin revoking another tenant's key by ID.
	if key.OrganizationID != c.Param("orgId") {
		apierror.Authorization(c, "key belongs to another organization")
		return
	}

	if err := h.apiKeyRepo.Revoke(c.Request.Context(), key.ID); err != nil {
		apierror.Internal(c, err)
		return
	}

	ev := auditEvent(c, audit.ActionKeyRevoked)
	ev.OrganizationID = key.OrganizationID
	ev.ResourceType = "api_key"
	ev.ResourceID = key.ID
	h.trail.Record(ev)

	c.JSON(http.StatusOK, gin.H{"message": "API key revoked"})
}
