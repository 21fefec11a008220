package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the canonical HTTP header used to propagate the request identifier.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key under which the request ID string is stored so
	// that handlers and other middleware can retrieve it without reading the response header.
	RequestIDKey = "request_id"
)

// RequestIDMiddleware returns a Gin handler that gives every request a unique
// identifier, propagated as the X-Request-ID HTTP header.
//
// An inbound X-Request-ID (from a load balancer, gateway, or the caller) is
// reused unchanged; otherwise a UUID v4 is generated. The value is stored in
// gin.Context under RequestIDKey and echoed back in the response header, so a
// tenant reporting a rejected request can hand over the id and an operator can
// find the matching access log line and usage row.
//
// Register it before the logging and rate-limit middleware so their entries
// carry the id:
//
//	router.Use(gin.Recovery())
//	router.Use(RequestIDMiddleware())
//	router.Use(LoggerMiddleware(cfg))
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}
