// ratelimit.go enforces the per-organization hourly request quota on machine
// traffic. Every authenticated API-key request consumes exactly one slot in
// the organization's rolling one-hour window; requests over the limit are
// rejected with 429 and a Retry-After hint, and rejected requests do not
// consume quota.
//
// Two interchangeable backends implement TenantLimiter:
//
//   - PostgresLimiter (default): the quota check and the usage append are a
//     single SQL statement, so admission and accounting cannot diverge.
//   - RedisLimiter: admission control via a Redis sliding window, with the
//     usage row appended afterwards purely for accounting. Lower database
//     load, at the cost of a second system in the serving path.
package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"

	"github.com/feedbase/feedbase/internal/api/apierror"
	"github.com/feedbase/feedbase/internal/auth"
	"github.com/feedbase/feedbase/internal/db/models"
	"github.com/feedbase/feedbase/internal/db/repositories"
	"github.com/feedbase/feedbase/internal/safego"
	"github.com/feedbase/feedbase/internal/telemetry"
)

// QuotaWindow is the rolling window over which the per-organization request
// limit applies.
const QuotaWindow = time.Hour

// Decision is the outcome of a quota check for a single request.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool
	// RetryAfter is the wait until a slot frees up. Meaningful only when
	// Allowed is false; always at least one second.
	RetryAfter time.Duration
	// finalize records the response outcome on the request's accounting row.
	// Nil when the backend has nothing left to write.
	finalize func(status int, elapsed time.Duration)
}

// TenantLimiter decides whether an organization request fits its hourly quota
// and owns the accounting write for admitted requests.
type TenantLimiter interface {
	Allow(ctx context.Context, org *models.Organization, apiKeyID, endpoint, method string) (Decision, error)
}

// PostgresLimiter enforces the quota against the api_usage table. The check
// and the append happen in one statement, so a request can never be admitted
// without leaving an accounting row.
type PostgresLimiter struct {
	usageRepo *repositories.UsageRepository
}

// NewPostgresLimiter creates the database-backed limiter.
func NewPostgresLimiter(usageRepo *repositories.UsageRepository) *PostgresLimiter {
	return &PostgresLimiter{usageRepo: usageRepo}
}

// Allow reserves a usage slot inside the trailing window. On rejection the
// Retry-After hint is derived from the oldest row in the window: quota
// recovers the moment that row ages out.
func (l *PostgresLimiter) Allow(ctx context.Context, org *models.Organization, apiKeyID, endpoint, method string) (Decision, error) {
	now := time.Now()
	windowStart := now.Add(-QuotaWindow)

	var keyID *string
	if apiKeyID != "" {
		keyID = &apiKeyID
	}

	id, ok, err := l.usageRepo.ReserveSlot(ctx, org.ID, keyID, endpoint, method, org.RateLimitPerHour, windowStart)
	if err != nil {
		return Decision{}, err
	}

	if !ok {
		retryAfter := time.Minute
		if oldest, err := l.usageRepo.OldestInWindow(ctx, org.ID, windowStart); err == nil && !oldest.IsZero() {
			retryAfter = oldest.Add(QuotaWindow).Sub(now)
		}
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return Decision{Allowed: false, RetryAfter: retryAfter}, nil
	}

	usageRepo := l.usageRepo
	return Decision{
		Allowed: true,
		finalize: func(status int, elapsed time.Duration) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := usageRepo.Finalize(ctx, id, status, int(elapsed.Milliseconds())); err != nil {
				telemetry.UsageWriteFailuresTotal.Inc()
			}
		},
	}, nil
}

// RedisLimiter enforces the quota with a redis_rate sliding window keyed per
// organization, then appends the usage row to PostgreSQL for accounting. The
// usage table is not consulted for admission, so a failed append loses
// accounting detail but cannot open the quota.
type RedisLimiter struct {
	limiter   *redis_rate.Limiter
	usageRepo *repositories.UsageRepository
}

// NewRedisLimiter creates the Redis-backed limiter.
func NewRedisLimiter(limiter *redis_rate.Limiter, usageRepo *repositories.UsageRepository) *RedisLimiter {
	return &RedisLimiter{limiter: limiter, usageRepo: usageRepo}
}

// Allow checks the organization's sliding window in Redis.
func (l *RedisLimiter) Allow(ctx context.Context, org *models.Organization, apiKeyID, endpoint, method string) (Decision, error) {
	res, err := l.limiter.Allow(ctx, "org_quota:"+org.ID, redis_rate.PerHour(org.RateLimitPerHour))
	if err != nil {
		return Decision{}, err
	}

	if res.Allowed == 0 {
		retryAfter := res.RetryAfter
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return Decision{Allowed: false, RetryAfter: retryAfter}, nil
	}

	var keyID *string
	if apiKeyID != "" {
		keyID = &apiKeyID
	}
	usageRepo := l.usageRepo
	orgID := org.ID
	return Decision{
		Allowed: true,
		finalize: func(status int, elapsed time.Duration) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			rec := &models.UsageRecord{
				OrganizationID: orgID,
				APIKeyID:       keyID,
				Endpoint:       endpoint,
				Method:         method,
				ResponseStatus: status,
			}
			rec.ResponseTimeMs = int(elapsed.Milliseconds())
			if err := usageRepo.Record(ctx, rec); err != nil {
				telemetry.UsageWriteFailuresTotal.Inc()
			}
		},
	}, nil
}

// TenantRateLimit returns the Gin handler that applies the hourly quota to
// machine principals. Human sessions pass through unmetered; admin traffic is
// authenticated interactively and not part of any organization's quota.
//
// Must be registered after AuthMiddleware: the quota key is the organization,
// which is only known once the credential has been resolved.
func TenantRateLimit(limiter TenantLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok || p.Kind != auth.PrincipalMachine {
			c.Next()
			return
		}

		org := GetOrganization(c)
		if org == nil {
			// Machine principal without a loaded organization means the auth
			// middleware contract was broken; refuse rather than skip metering.
			apierror.Authentication(c, "machine principal without organization")
			return
		}

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "<no-route>"
		}

		decision, err := limiter.Allow(c.Request.Context(), org, p.APIKeyID, endpoint, c.Request.Method)
		if err != nil {
			// Fail closed. If the limiter store is down, admitting unmetered
			// traffic would make the quota unenforceable exactly when the
			// system is least able to absorb load.
			apierror.Internal(c, err)
			return
		}

		if !decision.Allowed {
			telemetry.RateLimitRejectionsTotal.WithLabelValues(org.Slug).Inc()
			retrySeconds := int(decision.RetryAfter.Round(time.Second).Seconds())
			if retrySeconds < 1 {
				retrySeconds = 1
			}
			apierror.RateLimit(c, org.RateLimitPerHour, retrySeconds)
			return
		}

		start := time.Now()
		c.Next()

		if decision.finalize != nil {
			status := c.Writer.Status()
			elapsed := time.Since(start)
			finalize := decision.finalize
			safego.Go(func() {
				finalize(status, elapsed)
			})
		}
	}
}
