package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feedbase/feedbase/internal/api/apierror"
	"github.com/feedbase/feedbase/internal/audit"
	"github.com/feedbase/feedbase/internal/db/models"
	"github.com/feedbase/feedbase/internal/db/repositories"
)

// UserHandlers handles user management endpoints
type UserHandlers struct {
	userRepo *repositories.UserRepository
	trail    *audit.Trail
}

// NewUserHandlers creates a new UserHandlers instance
func NewUserHandlers(userRepo *repositories.UserRepository, trail *audit.Trail) *UserHandlers {
	return &UserHandlers{userRepo: userRepo, trail: trail}
}

// UpdateRoleRequest is the payload for assigning a user's role. The scope id
// matching the role must be provided: country_id for country_admin,
// organization_id for organization_admin.
type UpdateRoleRequest struct {
	Role           string  `json:"role" binding:"required"`
	CountryID      *string `json:"country_id"`
	OrganizationID *string `json:"organization_id"`
}

func userJSON(u *models.User) gin.H {
	return gin.H{
		"id":              u.ID,
		"name":            u.Name,
		"email":           u.Email,
		"role":            u.Role,
		"country_id":      u.CountryID,
		"organization_id": u.OrganizationID,
		"is_active":       u.IsActive,
		"created_at":      u.CreatedAt.Format(time.RFC3339),
	}
}

// GET /api/v1/users
func (h *UserHandlers) List(c *gin.Context) {
	limit, offset := paginationParams(c, 50)

	users, err := h.userRepo.List(c.Request.Context(), limit, offset)
	if err != nil {
		apierror.Internal(c, err)
		return
	}

	resp := make([]gin.H, 0, len(users))
	for _, u := range users {
		resp = append(resp, userJSON(u))
	}
	c.JSON(http.StatusOK, gin.H{"users": resp})
}

// @Summary      Update user role
// @Description  Assigns a role. Scoped roles require their scope id: country_admin needs country_id, organization_admin needs organization_id. The other scope is cleared.
// @Tags         Users
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  UpdateRoleRequest  true  "Role assignment"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]interface{}  "Unknown role or missing scope id"
// @Router       /api/v1/users/{id}/role [put]
// PUT /api/v1/users/:id/role
func (h *UserHandlers) UpdateRole(c *gin.Context) {
	var req UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Validation(c, err.Error())
		return
	}

	var countryID, organizationID *string
	switch req.Role {
	case models.RoleSuperadmin, models.RoleMember:
		// No scope.
	case models.RoleCountryAdmin:
		if req.CountryID == nil || *req.CountryID == "" {
			apierror.Validation(c, "country_admin requires country_id")
			return
		}
		countryID = req.CountryID
	case models.RoleOrganizationAdmin:
		if req.OrganizationID == nil || *req.OrganizationID == "" {
			apierror.Validation(c, "organization_admin requires organization_id")
			return
		}
		organizationID = req.OrganizationID
	default:
		apierror.Validation(c, "unknown role")
		return
	}

	user, err := h.userRepo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		apierror.Internal(c, err)
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	if err := h.userRepo.UpdateRole(c.Request.Context(), user.ID, req.Role, countryID, organizationID); err != nil {
		apierror.Internal(c, err)
		return
	}

	user.Role = req.Role
	user.CountryID = countryID
	user.OrganizationID = organizationID

	ev := auditEvent(c, audit.ActionRoleChanged)
	ev.ResourceType = "user"
	ev.ResourceID = user.ID
	ev.Detail = map[string]any{"role": req.Role}
	h.trail.Record(ev)

	c.JSON(http.StatusOK, userJSON(user))
}
