// Package api wires together all HTTP routes for the Feedbase backend.
//
// Route grouping philosophy:
//   - /healthz and /version are unauthenticated operational endpoints.
//   - /api/v1/auth/ is unauthenticated: it is where credentials come from.
//   - Everything else under /api/v1/ passes the full chain: authentication
//     (API key or session JWT), tenant rate limiting for machine principals,
//     then per-route scope checks.
//
// Scope gating per route group:
//   - Organization lifecycle and user management are superadmin-only.
//   - API key and usage routes require organization scope but NOT a human
//     principal: a machine credential may manage keys and read usage for its
//     own organization, which is how tenants rotate keys from automation.
package api

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/feedbase/feedbase/internal/api/admin"
	"github.com/feedbase/feedbase/internal/api/recommend"
	"github.com/feedbase/feedbase/internal/audit"
	"github.com/feedbase/feedbase/internal/auth"
	"github.com/feedbase/feedbase/internal/config"
	"github.com/feedbase/feedbase/internal/db/repositories"
	"github.com/feedbase/feedbase/internal/jobs"
	"github.com/feedbase/feedbase/internal/mailer"
	"github.com/feedbase/feedbase/internal/middleware"
	"github.com/feedbase/feedbase/internal/otp"
)

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	otpCleanupJob *jobs.OtpCleanupJob
	redisClient   *redis.Client
	auditTrail    *audit.Trail
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.otpCleanupJob != nil {
		bg.otpCleanupJob.Stop()
	}
	if bg.redisClient != nil {
		if err := bg.redisClient.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	if err := bg.auditTrail.Close(); err != nil {
		slog.Warn("failed to close audit trail", "error", err)
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router. rec may be nil when no
// recommendation engine is configured; the endpoint then responds 503.
func NewRouter(cfg *config.Config, db *sql.DB, rec recommend.Recommender) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	apiKeyRepo := repositories.NewAPIKeyRepository(db)
	orgRepo := repositories.NewOrganizationRepository(db)
	regRepo := repositories.NewRegistrationRepository(db)

	// Wrap *sql.DB with sqlx for the usage and OTP repositories
	sqlxDB := sqlx.NewDb(db, "postgres")
	usageRepo := repositories.NewUsageRepository(sqlxDB)
	otpRepo := repositories.NewOtpRepository(sqlxDB)

	hasher, err := auth.NewKeyHasher(cfg.Auth.APIKeys.HMACSecret)
	if err != nil {
		log.Fatalf("Failed to initialize API key hasher: %v", err)
	}

	// Outbound email channel: SMTP when configured, otherwise codes are only
	// logged as issued (useful for local development).
	var otpMailer mailer.Mailer = mailer.Noop{}
	if cfg.Smtp.Host != "" {
		otpMailer = mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.Smtp.Host,
			Port:     cfg.Smtp.Port,
			Username: cfg.Smtp.Username,
			Password: cfg.Smtp.Password,
			From:     cfg.Smtp.From,
			UseTLS:   cfg.Smtp.UseTLS,
		})
		log.Printf("SMTP mailer initialized (host: %s)", cfg.Smtp.Host)
	} else {
		log.Println("No SMTP host configured; OTP codes will not be delivered")
	}

	otpSvc := otp.NewService(otpRepo, otpMailer, otp.Config{
		CodeLength:      cfg.Otp.CodeLength,
		TTL:             cfg.Otp.TTL,
		MaxAttempts:     cfg.Otp.MaxAttempts,
		RequestsPerHour: cfg.Otp.RequestsPerHour,
	})

	// Tenant quota backend
	var limiter middleware.TenantLimiter
	var redisClient *redis.Client
	switch cfg.RateLimiting.Backend {
	case "redis":
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Failed to parse redis.url: %v", err)
		}
		if cfg.Redis.Password != "" {
			opts.Password = cfg.Redis.Password
		}
		redisClient = redis.NewClient(opts)
		limiter = middleware.NewRedisLimiter(redis_rate.NewLimiter(redisClient), usageRepo)
		log.Println("Rate limiting backend: redis")
	default:
		limiter = middleware.NewPostgresLimiter(usageRepo)
		log.Println("Rate limiting backend: postgres")
	}

	authenticator := middleware.NewAuthenticator(cfg, hasher, apiKeyRepo, userRepo, orgRepo)

	trail := newAuditTrail(cfg.Audit)

	// Start the OTP cleanup job
	otpCleanupJob := jobs.NewOtpCleanupJob(otpRepo, cfg.Jobs)
	go otpCleanupJob.Start(context.Background())

	// Handlers
	authHandlers := admin.NewAuthHandlers(cfg, otpSvc, userRepo, orgRepo, regRepo, hasher, trail)
	orgHandlers := admin.NewOrganizationHandlers(orgRepo, usageRepo, trail)
	keyHandlers := admin.NewAPIKeyHandlers(cfg, hasher, apiKeyRepo, trail)
	userHandlers := admin.NewUserHandlers(userRepo, trail)
	recommendHandler := recommend.NewHandler(rec)

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// Health check endpoint
	router.GET("/healthz", healthCheckHandler(db))

	// API version
	router.GET("/version", versionHandler())

	// Credential issuance: unauthenticated by definition
	authGroup := router.Group("/api/v1/auth")
	{
		authGroup.POST("/otp/request", authHandlers.OtpRequest)
		authGroup.POST("/otp/verify", authHandlers.OtpVerify)
		authGroup.POST("/login", authHandlers.Login)
	}

	// Everything below requires a resolved principal. Machine principals are
	// also metered against their organization's hourly quota here.
	authed := router.Group("/api/v1")
	authed.Use(authenticator.Middleware())
	authed.Use(middleware.TenantRateLimit(limiter))
	{
		authed.GET("/auth/me", authHandlers.Me)
		authed.POST("/recommend", recommendHandler.Recommend)

		orgs := authed.Group("/organizations")
		{
			orgs.GET("", middleware.RequireSuperadmin(), orgHandlers.List)
			orgs.POST("", middleware.RequireSuperadmin(), orgHandlers.Create)
			orgs.POST("/:orgId/enable", middleware.RequireSuperadmin(), orgHandlers.Enable)
			orgs.POST("/:orgId/disable", middleware.RequireSuperadmin(), orgHandlers.Disable)

			orgs.GET("/:orgId", middleware.RequireOrganizationScope("orgId"), orgHandlers.Get)
			orgs.PUT("/:orgId", middleware.RequireHuman(), middleware.RequireOrganizationScope("orgId"), orgHandlers.Update)

			// Key management and usage are open to the organization's own
			// machine credential, not just its human admins.
			orgs.GET("/:orgId/usage", middleware.RequireOrganizationScope("orgId"), orgHandlers.Usage)
			orgs.POST("/:orgId/apikeys", middleware.RequireOrganizationScope("orgId"), keyHandlers.Issue)
			orgs.GET("/:orgId/apikeys", middleware.RequireOrganizationScope("orgId"), keyHandlers.List)
			orgs.DELETE("/:orgId/apikeys/:keyId", middleware.RequireOrganizationScope("orgId"), keyHandlers.Revoke)
		}

		users := authed.Group("/users", middleware.RequireSuperadmin())
		{
			users.GET("", userHandlers.List)
			users.PUT("/:id/role", userHandlers.UpdateRole)
		}
	}

	return router, &BackgroundServices{
		otpCleanupJob: otpCleanupJob,
		redisClient:   redisClient,
		auditTrail:    trail,
	}
}

// newAuditTrail assembles the audit destinations from configuration. Returns
// a nil (no-op) trail when auditing is disabled.
func newAuditTrail(cfg config.AuditConfig) *audit.Trail {
	if !cfg.Enabled {
		return nil
	}

	var shipperConfigs []audit.ShipperConfig
	if cfg.File.Path != "" {
		shipperConfigs = append(shipperConfigs, audit.ShipperConfig{
			Enabled: true,
			Type:    "file",
			File: &audit.FileConfig{
				Path:       cfg.File.Path,
				MaxSizeMB:  cfg.File.MaxSizeMB,
				MaxBackups: cfg.File.MaxBackups,
			},
		})
	}
	if cfg.Webhook.URL != "" {
		var headers map[string]string
		if cfg.Webhook.AuthToken != "" {
			headers = map[string]string{"Authorization": "Bearer " + cfg.Webhook.AuthToken}
		}
		shipperConfigs = append(shipperConfigs, audit.ShipperConfig{
			Enabled: true,
			Type:    "webhook",
			Webhook: &audit.WebhookConfig{
				URL:           cfg.Webhook.URL,
				Headers:       headers,
				Timeout:       cfg.Webhook.Timeout,
				BatchSize:     cfg.Webhook.BatchSize,
				FlushInterval: cfg.Webhook.FlushInterval,
			},
		})
	}

	shipper, err := audit.NewMultiShipper(shipperConfigs)
	if err != nil {
		log.Fatalf("Failed to initialize audit trail: %v", err)
	}
	log.Println("Audit trail enabled")
	return audit.NewTrail(shipper)
}

// @Summary      Health check
// @Description  Returns whether the service and its database are reachable.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /healthz [get]
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check database connection
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured request logging via slog. Output
// format (json or text) follows the handler installed by telemetry.SetupLogger.
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", latency),
			slog.String("ip", c.ClientIP()),
			slog.Any("request_id", requestID),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}
