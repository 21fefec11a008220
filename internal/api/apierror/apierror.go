// Package apierror maps internal failures onto the sanitized client-facing
// error taxonomy. Every boundary handler responds through this package so
// that no store error text, stack trace, or credential-failure subtype ever
// reaches a client. The full detail is logged server-side via slog before
// the generic response is written.
//
// Taxonomy:
//
//	401 authentication: missing/malformed/unknown/expired/revoked credential,
//	    or failed OTP match; the response never says which.
//	403 authorization: authenticated principal lacks scope.
//	429 rate limit: the only class allowed structured detail (the
//	    configured limit), since it is not a security boundary.
//	400 validation: malformed payloads; field detail concerns the
//	    caller's own input and is safe to return.
//	500 internal: everything else, as a generic message.
package apierror

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Generic client-facing messages. Deliberately vague: confirming which part
// of a credential was wrong enables enumeration.
const (
	msgAuthentication = "Invalid credentials"
	msgAuthorization  = "Insufficient permissions"
	msgOtp            = "Invalid or expired code"
	msgRateLimit      = "Rate limit exceeded"
	msgInternal       = "Internal server error"
)

// Authentication aborts the request with 401. reason is logged, never sent.
func Authentication(c *gin.Context, reason string) {
	slog.Info("authentication failed",
		"reason", reason,
		"path", c.Request.URL.Path,
		"client_ip", c.ClientIP(),
	)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msgAuthentication})
}

// Authorization aborts the request with 403. reason is logged, never sent.
func Authorization(c *gin.Context, reason string) {
	slog.Info("authorization denied",
		"reason", reason,
		"path", c.Request.URL.Path,
	)
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": msgAuthorization})
}

// Otp aborts with 401 and the single generic OTP message. The distinguishable
// subtype (expired, already used, attempts exceeded, mismatch) is logged so
// operators can tell brute-force attempts from stale codes.
func Otp(c *gin.Context, err error) {
	slog.Info("otp verification failed",
		"subtype", err.Error(),
		"path", c.Request.URL.Path,
		"client_ip", c.ClientIP(),
	)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msgOtp})
}

// RateLimit aborts with 429, a Retry-After hint, and the configured limit.
// Current counts and internal thresholds are never revealed.
func RateLimit(c *gin.Context, limitPerHour int, retryAfterSeconds int) {
	c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":       msgRateLimit,
		"limit":       limitPerHour,
		"retry_after": retryAfterSeconds,
	})
}

// Validation aborts with 400 and field-level detail.
func Validation(c *gin.Context, detail string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request",
		"details": detail,
	})
}

// Internal logs the underlying error in full and aborts with a generic 500.
func Internal(c *gin.Context, err error) {
	slog.Error("internal error",
		"error", err,
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
}
