package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"pagerduty-analytics/internal/logging"
)

// RequestLogger logs method, path, status, and latency for every request.
func RequestLogger(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Infof("%s %s -> %d (%s)",
			c.Request.Method,
			c.Request.URL.Path,
			c.Writer.Status(),
			time.Since(start),
		)
	}
}
