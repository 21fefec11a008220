// Package admin implements the administrative HTTP handlers for the Feedbase
// backend: organization lifecycle, API key issuance and revocation, user role
// management, and the OTP/session authentication endpoints. Scope enforcement
// (superadmin, country, organization) happens in route middleware (see
// internal/middleware/scope.go); handlers only perform checks that need the
// loaded record, such as key ownership on revocation.
package admin

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feedbase/feedbase/internal/api/apierror"
	"github.com/feedbase/feedbase/internal/audit"
	"github.com/feedbase/feedbase/internal/db/models"
	"github.com/feedbase/feedbase/internal/db/repositories"
)

// DefaultRateLimitPerHour is applied to organizations created without an
// explicit quota.
const DefaultRateLimitPerHour = 1000

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// OrganizationHandlers handles organization management endpoints
type OrganizationHandlers struct {
	orgRepo   *repositories.OrganizationRepository
	usageRepo *repositories.UsageRepository
	trail     *audit.Trail
}

// NewOrganizationHandlers creates a new OrganizationHandlers instance
func NewOrganizationHandlers(orgRepo *repositories.OrganizationRepository, usageRepo *repositories.UsageRepository, trail *audit.Trail) *OrganizationHandlers {
	return &OrganizationHandlers{orgRepo: orgRepo, usageRepo: usageRepo, trail: trail}
}

// CreateOrganizationRequest is the payload for creating a tenant.
type CreateOrganizationRequest struct {
	Name             string `json:"name" binding:"required"`
	Slug             string `json:"slug" binding:"required"`
	ContactEmail     string `json:"contact_email" binding:"required,email"`
	RateLimitPerHour int    `json:"rate_limit_per_hour"`
}

// UpdateOrganizationRequest is the payload for updating a tenant. Omitted
// fields keep their current value.
type UpdateOrganizationRequest struct {
	Name             *string `json:"name"`
	ContactEmail     *string `json:"contact_email"`
	RateLimitPerHour *int    `json:"rate_limit_per_hour"`
}

func organizationJSON(org *models.Organization) gin.H {
	return gin.H{
		"id":                  org.ID,
		"name":                org.Name,
		"slug":                org.Slug,
		"contact_email":       org.ContactEmail,
		"is_active":           org.IsActive,
		"rate_limit_per_hour": org.RateLimitPerHour,
		"created_at":          org.CreatedAt.Format(time.RFC3339),
		"updated_at":          org.UpdatedAt.Format(time.RFC3339),
	}
}

// @Summary      List organizations
// @Tags         Organizations
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "List of organizations"
// @Router       /api/v1/organizations [get]
// GET /api/v1/organizations
func (h *OrganizationHandlers) List(c *gin.Context) {
	limit, offset := paginationParams(c, 50)

	orgs, err := h.orgRepo.List(c.Request.Context(), limit, offset)
	if err != nil {
		apierror.Internal(c, err)
		return
	}

	resp := make([]gin.H, 0, len(orgs))
	for _, org := range orgs {
		resp = append(resp, organizationJSON(org))
	}
	c.JSON(http.StatusOK, gin.H{"organizations": resp})
}

// @Summary      Create organization
// @Tags         Organizations
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateOrganizationRequest  true  "Organization"
// @Success      201  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]interface{}  "Invalid payload or duplicate slug"
// @Router       /api/v1/organizations [post]
// POST /api/v1/organizations
func (h *OrganizationHandlers) Create(c *gin.Context) {
	var req CreateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Validation(c, err.Error())
		return
	}

	if !slugPattern.MatchString(req.Slug) {
		apierror.Validation(c, "slug must be lowercase letters, digits, and hyphens")
		return
	}
	if req.RateLimitPerHour < 0 {
		apierror.Validation(c, "rate_limit_per_hour must not be negative")
		return
	}
	if req.RateLimitPerHour == 0 {
		req.RateLimitPerHour = DefaultRateLimitPerHour
	}

	existing, err := h.orgRepo.GetBySlug(c.Request.Context(), req.Slug)
	if err != nil {
		apierror.Internal(c, err)
		return
	}
	if existing != nil {
		apierror.Validation(c, "slug is already taken")
		return
	}

	org := &models.Organization{
		Name:             req.Name,
		Slug:             req.Slug,
		ContactEmail:     req.ContactEmail,
		RateLimitPerHour: req.RateLimitPerHour,
	}
	if err := h.orgRepo.Create(c.Request.Context(), org); err != nil {
		apierror.Internal(c, err)
		return
	}

	ev := auditEvent(c, audit.ActionOrgCreated)
	ev.ResourceType = "organization"
	ev.ResourceID = org.ID
	ev.Detail = map[string]any{"slug": org.Slug}
	h.trail.Record(ev)

	c.JSON(http.StatusCreated, organizationJSON(org))
}

// GET /api/v1/organizations/:orgId
func (h *OrganizationHandlers) Get(c *gin.Context) {
	org, err := h.orgRepo.GetByID(c.Request.Context(), c.Param("orgId"))
	if err != nil {
		apierror.Internal(c, err)
		return
	}
	if org == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found"})
		return
	}
	c.JSON(http.StatusOK, organizationJSON(org))
}

// PUT /api/v1/organizations/:orgId
func (h *OrganizationHandlers) Update(c *gin.Context) {
	var req UpdateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Validation(c, err.Error())
		return
	}

	org, err := h.orgRepo.GetByID(c.Request.Context(), c.Param("orgId"))
	if err != nil {
		apierror.Internal(c, err)
		return
	}
	if org == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found"})
		return
	}

	if req.Name != nil {
		org.Name = *req.Name
	}
	if req.ContactEmail != nil {
		org.ContactEmail = *req.ContactEmail
	}
	if req.RateLimitPerHour != nil {
		if *req.RateLimitPerHour < 0 {
			apierror.Validation(c, "rate_limit_per_hour must not be negative")
			return
		}
		org.RateLimitPerHour = *req.RateLimitPerHour
	}

	if err := h.orgRepo.Update(c.Request.Context(), org); err != nil {
		apierror.Internal(c, err)
		return
	}
	c.JSON(http.StatusOK, organizationJSON(org))
}

// @Summary      Disable organization
// @Description  Soft-disables a tenant. All of its API keys stop validating immediately; no data is deleted.
// @Tags         Organizations
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/organizations/{orgId}/disable [post]
// POST /api/v1/organizations/:orgId/disable
func (h *OrganizationHandlers) Disable(c *gin.Context) {
	h.setActive(c, false)
}

// POST /api/v1/organizations/:orgId/enable
func (h *OrganizationHandlers) Enable(c *gin.Context) {
	h.setActive(c, true)
}

func (h *OrganizationHandlers) setActive(c *gin.Context, active bool) {
	id := c.Param("orgId")

	org, err := h.orgRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		apierror.Internal(c, err)
		return
	}
	if org == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found"})
		return
	}

	if err := h.orgRepo.SetActive(c.Request.Context(), id, active); err != nil {
		apierror.Internal(c, err)
		return
	}
	org.IsActive = active

	action := audit.ActionOrgDisabled
	if active {
		action = audit.ActionOrgEnabled
	}
	ev := auditEvent(c, action)
	ev.ResourceType = "organization"
	ev.ResourceID = org.ID
	h.trail.Record(ev)

	c.JSON(http.StatusOK, organizationJSON(org))
}

// @Summary      List usage records
// @Description  Returns the organization's usage rows for an interval, newest first. Defaults to the trailing 24 hours.
// @Tags         Organizations
// @Security     Bearer
// @Produce      json
// @Param        from   query  string  false  "RFC3339 interval start"
// @Param        to     query  string  false  "RFC3339 interval end"
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/organizations/{orgId}/usage [get]
// GET /api/v1/organizations/:orgId/usage
func (h *OrganizationHandlers) Usage(c *gin.Context) {
	orgID := c.Param("orgId")
	limit, offset := paginationParams(c, 100)

	now := time.Now()
	from := now.Add(-24 * time.Hour)
	to := now

	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			apierror.Validation(c, "from must be RFC3339")
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			apierror.Validation(c, "to must be RFC3339")
			return
		}
		to = t
	}

	records, err := h.usageRepo.ListByOrganization(c.Request.Context(), orgID, from, to, limit, offset)
	if err != nil {
		apierror.Internal(c, err)
		return
	}

	resp := make([]gin.H, 0, len(records))
	for _, rec := range records {
		resp = append(resp, gin.H{
			"id":               rec.ID,
			"api_key_id":       rec.APIKeyID,
			"endpoint":         rec.Endpoint,
			"method":           rec.Method,
			"response_status":  rec.ResponseStatus,
			"response_time_ms": rec.ResponseTimeMs,
			"created_at":       rec.CreatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"usage": resp,
		"from":  from.Format(time.RFC3339),
		"to":    to.Format(time.RFC3339),
	})
}

// paginationParams reads limit/offset query parameters, clamped to sane
// bounds.
func paginationParams(c *gin.Context, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
