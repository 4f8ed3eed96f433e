package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/erp/weclapp-migration/internal/infrastructure/telemetry"
)

// Profile label keys for API requests
const (
	ProfileLabelRoute  = "route"
	ProfileLabelMethod = "method"
)

// ProfileLabels tags CPU and heap samples taken while a request is served
// with its route pattern and method. Unmatched routes are left unlabelled.
func ProfileLabels() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			c.Next()
			return
		}
		labels := map[string]string{
			ProfileLabelRoute:  route,
			ProfileLabelMethod: c.Request.Method,
		}
		telemetry.WithProfileLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}
