package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/feedbase/feedbase/internal/api/apierror"
	"github.com/feedbase/feedbase/internal/audit"
	"github.com/feedbase/feedbase/internal/auth"
	"github.com/feedbase/feedbase/internal/config"
	"github.com/feedbase/feedbase/internal/db/models"
	"github.com/feedbase/feedbase/internal/db/repositories"
	"github.com/feedbase/feedbase/internal/middleware"
	"github.com/feedbase/feedbase/internal/otp"
	"github.com/feedbase/feedbase/internal/safego"
)

// passwordResetTokenTTL bounds the window between verifying a reset code and
// submitting the new password.
const passwordResetTokenTTL = 15 * time.Minute

// AuthHandlers handles login, registration, and OTP endpoints
type AuthHandlers struct {
	cfg      *config.Config
	otpSvc   *otp.Service
	userRepo *repositories.UserRepository
	orgRepo  *repositories.OrganizationRepository
	regRepo  *repositories.RegistrationRepository
	hasher   *auth.KeyHasher
	trail    *audit.Trail
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(cfg *config.Config, otpSvc *otp.Service, userRepo *repositories.UserRepository, orgRepo *repositories.OrganizationRepository, regRepo *repositories.RegistrationRepository, hasher *auth.KeyHasher, trail *audit.Trail) *AuthHandlers {
	return &AuthHandlers{
		cfg:      cfg,
		otpSvc:   otpSvc,
		userRepo: userRepo,
		orgRepo:  orgRepo,
		regRepo:  regRepo,
		hasher:   hasher,
		trail:    trail,
	}
}

// OtpRequestBody is the payload for requesting a one-time code.
type OtpRequestBody struct {
	Email   string `json:"email" binding:"required,email"`
	Purpose string `json:"purpose" binding:"required"`
}

// OtpVerifyBody is the payload for verifying a one-time code. The
// registration fields are required only for purpose "registration".
type OtpVerifyBody struct {
	Email   string `json:"email" binding:"required,email"`
	Code    string `json:"code" binding:"required"`
	Purpose string `json:"purpose" binding:"required"`

	Name             string `json:"name"`
	OrganizationName string `json:"organization_name"`
	OrganizationSlug string `json:"organization_slug"`
}

// LoginRequest is the payload for the legacy password login endpoint.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// @Summary      Request OTP
// @Description  Requests a one-time code by email. Always responds 202 regardless of whether the address is known, so the endpoint cannot be used to enumerate accounts. Responds 429 when the per-identity request cap is exceeded.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body  OtpRequestBody  true  "Email and purpose"
// @Success      202  {object}  map[string]interface{}
// @Failure      429  {object}  map[string]interface{}
// @Router       /api/v1/auth/otp/request [post]
// POST /api/v1/auth/otp/request
func (h *AuthHandlers) OtpRequest(c *gin.Context) {
	var req OtpRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Validation(c, err.Error())
		return
	}
	if !models.ValidOtpPurpose(req.Purpose) {
		apierror.Validation(c, "purpose must be login, registration, or password_reset")
		return
	}
	purpose := models.OtpPurpose(req.Purpose)

	send, err := h.shouldSendCode(c.Request.Context(), req.Email, purpose)
	if err != nil {
		apierror.Internal(c, err)
		return
	}

	if send {
		if err := h.otpSvc.Request(c.Request.Context(), req.Email, purpose); err != nil {
			if errors.Is(err, otp.ErrRateLimited) {
				apierror.RateLimit(c, h.cfg.Otp.RequestsPerHour, 3600)
				return
			}
			apierror.Internal(c, err)
			return
		}
	}

	// Identical response whether or not a code was actually issued.
	c.JSON(http.StatusAccepted, gin.H{"message": "If the address is valid, a code has been sent"})
}

// shouldSendCode decides whether a code may be issued for this identity
// without revealing the decision to the caller. Login and password reset
// require an existing active user; registration requires the address to be
// unclaimed.
func (h *AuthHandlers) shouldSendCode(ctx context.Context, email string, purpose models.OtpPurpose) (bool, error) {
	user, err := h.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	if purpose == models.OtpPurposeRegistration {
		return user == nil, nil
	}
	return user != nil && user.IsActive, nil
}

// @Summary      Verify OTP
// @Description  Verifies a one-time code. Login returns a session token; registration creates the organization, its admin user, and the first API key; password_reset returns a short-lived reset token. All verification failures get the same generic 401.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body  OtpVerifyBody  true  "Email, code, purpose"
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]interface{}  "Invalid or expired code"
// @Router       /api/v1/auth/otp/verify [post]
// POST /api/v1/auth/otp/verify
func (h *AuthHandlers) OtpVerify(c *gin.Context) {
	var req OtpVerifyBody
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Validation(c, err.Error())
		return
	}
	if !models.ValidOtpPurpose(req.Purpose) {
		apierror.Validation(c, "purpose must be login, registration, or password_reset")
		return
	}
	purpose := models.OtpPurpose(req.Purpose)

	// Registration payload problems are reported before the code is burned;
	// a typo in the slug should not consume a single-use code.
	if purpose == models.OtpPurposeRegistration {
		if req.Name == "" || req.OrganizationName == "" || req.OrganizationSlug == "" {
			apierror.Validation(c, "registration requires name, organization_name, and organization_slug")
			return
		}
		if !slugPattern.MatchString(req.OrganizationSlug) {
			apierror.Validation(c, "organization_slug must be lowercase letters, digits, and hyphens")
			return
		}
	}

	if _, err := h.otpSvc.Verify(c.Request.Context(), req.Email, req.Code, purpose); err != nil {
		if otp.IsOtpError(err) {
			apierror.Otp(c, err)
			return
		}
		apierror.Internal(c, err)
		return
	}

	switch purpose {
	case models.OtpPurposeLogin:
		h.completeLogin(c, req.Email)
	case models.OtpPurposeRegistration:
		h.completeRegistration(c, req)
	case models.OtpPurposePasswordReset:
		h.completePasswordReset(c, req.Email)
	}
}

func (h *AuthHandlers) completeLogin(c *gin.Context, email string) {
	user, err := h.userRepo.GetByEmail(c.Request.Context(), email)
	if err != nil {
		apierror.Internal(c, err)
		return
	}
	if user == nil || !user.IsActive {
		apierror.Authentication(c, "otp login for missing or deactivated user")
		return
	}

	// First successful OTP login retires the legacy password. Best effort:
	// the login must not fail because the cleanup write did.
	if user.PasswordHash != nil {
		userID := user.ID
		safego.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.userRepo.ClearPasswordHash(ctx, userID); err != nil {
				slog.Warn("failed to clear legacy password hash", "user_id", userID, "error", err)
			}
		})
	}

	token, err := auth.GenerateJWT(user.ID, user.Email, auth.RoleFromUser(user), h.cfg.Auth.SessionTTL)
	if err != nil {
		apierror.Internal(c, err)
		return
	}

	ev := auditEvent(c, audit.ActionLogin)
	ev.ActorKind = string(auth.PrincipalHuman)
	ev.ActorID = user.ID
	ev.Detail = map[string]any{"method": "otp"}
	h.trail.Record(ev)

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  userJSON(user),
	})
}

func (h *AuthHandlers) completeRegistration(c *gin.Context, req OtpVerifyBody) {
	ctx := c.Request.Context()

	existing, err := h.orgRepo.GetBySlug(ctx, req.OrganizationSlug)
	if err != nil {
		apierror.Internal(c, err)
		return
	}
	if existing != nil {
		apierror.Validation(c, "slug is already taken")
		return
	}

	plaintext, displayPrefix, err := auth.GenerateAPIKey(h.cfg.Auth.APIKeys.Prefix, h.cfg.Auth.APIKeys.Env)
	if err != nil {
		apierror.Internal(c, err)
		return
	}

	org := &models.Organization{
		Name:             req.OrganizationName,
		Slug:             req.OrganizationSlug,
		ContactEmail:     req.Email,
		RateLimitPerHour: DefaultRateLimitPerHour,
	}
	user := &models.User{
		Name:     req.Name,
		Email:    req.Email,
		Role:     models.RoleOrganizationAdmin,
		IsActive: true,
	}
	keyName := "Default key"
	key := &models.APIKey{
		Name:      &keyName,
		KeyHash:   h.hasher.Hash(plaintext),
		KeyPrefix: displayPrefix,
	}

	// One transaction: a failure part-way (say, the email was claimed after
	// the code was requested) must not leave the slug held by an orphaned
	// organization.
	if err := h.regRepo.CreateTenant(ctx, org, user, key); err != nil {
		apierror.Internal(c, err)
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.Email, auth.RoleFromUser(user), h.cfg.Auth.SessionTTL)
	if err != nil {
		apierror.Internal(c, err)
		return
	}

	keyResp := apiKeyJSON(key)
	keyResp["key"] = plaintext

	ev := auditEvent(c, audit.ActionRegistration)
	ev.ActorKind = string(auth.PrincipalHuman)
	ev.ActorID = user.ID
	ev.OrganizationID = org.ID
	ev.ResourceType = "organization"
	ev.ResourceID = org.ID
	ev.Detail = map[string]any{"slug": org.Slug}
	h.trail.Record(ev)

	c.JSON(http.StatusCreated, gin.H{
		"token":        token,
		"user":         userJSON(user),
		"organization": organizationJSON(org),
		"api_key":      keyResp,
	})
}

func (h *AuthHandlers) completePasswordReset(c *gin.Context, email string) {
	user, err := h.userRepo.GetByEmail(c.Request.Context(), email)
	if err != nil {
		apierror.Internal(c, err)
		return
	}
	if user == nil || !user.IsActive {
		apierror.Authentication(c, "password reset for missing or deactivated user")
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.Email, auth.RoleFromUser(user), passwordResetTokenTTL)
	if err != nil {
		apierror.Internal(c, err)
		return
	}

	ev := auditEvent(c, audit.ActionPasswordReset)
	ev.ActorKind = string(auth.PrincipalHuman)
	ev.ActorID = user.ID
	h.trail.Record(ev)

	c.JSON(http.StatusOK, gin.H{"reset_token": token})
}

// @Summary      Password login
// @Description  Legacy password authentication, kept only for accounts that have not completed an OTP login yet. Disabled unless auth.legacy_password_login is set.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body  LoginRequest  true  "Credentials"
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]interface{}
// @Router       /api/v1/auth/login [post]
// POST /api/v1/auth/login
func (h *AuthHandlers) Login(c *gin.Context) {
	if !h.cfg.Auth.LegacyPasswordLogin {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Validation(c, err.Error())
		return
	}

	user, err := h.userRepo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		apierror.Internal(c, err)
		return
	}
	// Accounts that completed an OTP login have no password hash left and can
	// no longer use this endpoint.
	if user == nil || !user.IsActive || user.PasswordHash == nil {
		apierror.Authentication(c, "legacy login for account without password")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		apierror.Authentication(c, "legacy login password mismatch")
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.Email, auth.RoleFromUser(user), h.cfg.Auth.SessionTTL)
	if err != nil {
		apierror.Internal(c, err)
		return
	}

	ev := auditEvent(c, audit.ActionLogin)
	ev.ActorKind = string(auth.PrincipalHuman)
	ev.ActorID = user.ID
	ev.Detail = map[string]any{"method": "password"}
	h.trail.Record(ev)

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  userJSON(user),
	})
}

// GET /api/v1/auth/me
func (h *AuthHandlers) Me(c *gin.Context) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		apierror.Authentication(c, "no principal in context")
		return
	}

	if p.Kind == auth.PrincipalMachine {
		resp := gin.H{
			"kind":       string(p.Kind),
			"api_key_id": p.APIKeyID,
		}
		if org := middleware.GetOrganization(c); org != nil {
			resp["organization"] = organizationJSON(org)
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	user, err := h.userRepo.GetByID(c.Request.Context(), p.UserID)
	if err != nil {
		apierror.Internal(c, err)
		return
	}
	if user == nil {
		apierror.Authentication(c, "session user missing")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"kind": string(p.Kind),
		"user": userJSON(user),
	})
}
