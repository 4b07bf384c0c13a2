package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tubemetrics/freshness/pkg/telemetry"
)

const bearerPrefix = "Bearer "

// CronAuth rejects requests whose bearer token does not match secret. An
// empty secret rejects every request.
func CronAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, bearerPrefix)
		if secret == "" || !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// RequestLogger logs one line per request and wraps it in a span
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx, span := telemetry.StartSpan(c.Request.Context(), "http "+c.Request.Method+" "+c.FullPath())
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		span.End()
		logger.Debug("Request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
