package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// RequestMetrics records per-request duration labelled by route and status.
func RequestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if RequestDuration == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		RequestDuration.Record(c.Request.Context(), time.Since(start).Seconds(),
			attribute.String("route", route),
			attribute.Int("status", c.Writer.Status()),
		)
	}
}
