package middleware

import (
	"strconv"
	"time"

	"webhook-ingest/backend/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Metrics records request counts and latency per route template
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestLatency.WithLabelValues(path, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
