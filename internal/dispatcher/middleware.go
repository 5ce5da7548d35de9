package dispatcher

import (
	"github.com/gin-gonic/gin"

	"github.com/fuaadabdullah/inference-gateway/internal/metrics"
	"github.com/fuaadabdullah/inference-gateway/pkg/errors"
	"github.com/fuaadabdullah/inference-gateway/pkg/utils"
)

// APIKeyAuth rejects requests whose x-api-key header matches no configured
// key. Runs before any cache, classifier or backend work. keysFn is called
// per request so config hot reloads take effect immediately.
func APIKeyAuth(keysFn func() []string, collector *metrics.Collector, logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader("X-API-Key")
		if presented == "" {
			rejectUnauthorized(c, collector, logger, "missing_api_key")
			return
		}

		for _, configured := range keysFn() {
			if utils.VerifyAPIKey(presented, configured) {
				c.Next()
				return
			}
		}

		rejectUnauthorized(c, collector, logger, "invalid_api_key")
	}
}

func rejectUnauthorized(c *gin.Context, collector *metrics.Collector, logger *utils.Logger, reason string) {
	collector.Increment(metrics.CounterAuthFailures, 1)
	logger.LogAuthFailure(reason, c.ClientIP(), c.Request.UserAgent())

	gatewayErr := errors.NewGatewayError(errors.ErrInvalidAPIKey, "Invalid or missing API key")
	c.JSON(gatewayErr.HTTPStatusCode, gin.H{
		"error": gin.H{
			"code":    gatewayErr.Code,
			"message": gatewayErr.Message,
		},
	})
	c.Abort()
}

// RequestID assigns a unique request ID to each request, reusing any
// client-supplied X-Request-ID header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = utils.GenerateRequestID()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// GetRequestIDFromContext extracts the request ID set by RequestID
func GetRequestIDFromContext(c *gin.Context) string {
	if id, exists := c.Get("request_id"); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}
