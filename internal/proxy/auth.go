package proxy

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/fuaadabdullah/inference-gateway/pkg/errors"
	"github.com/fuaadabdullah/inference-gateway/pkg/types"
	"github.com/fuaadabdullah/inference-gateway/pkg/utils"
)

// authMiddleware guards the internal boundary. The dispatcher presents the
// shared secret in x-api-key, or a short-lived HS256 service token signed
// with that secret. Failure is terminal: no retry, nothing downstream runs.
func authMiddleware(config *types.AuthConfig, logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authenticateSecret(c, config) || authenticateServiceToken(c, config) {
			c.Next()
			return
		}

		logger.LogAuthFailure("invalid_internal_credentials", c.ClientIP(), c.Request.UserAgent())

		gatewayErr := errors.NewGatewayError(errors.ErrInvalidAPIKey, "Invalid or missing API key")
		c.JSON(gatewayErr.HTTPStatusCode, gin.H{
			"error": gin.H{
				"code":    gatewayErr.Code,
				"message": gatewayErr.Message,
			},
		})
		c.Abort()
	}
}

func authenticateSecret(c *gin.Context, config *types.AuthConfig) bool {
	presented := c.GetHeader("X-API-Key")
	if presented == "" {
		return false
	}

	if config.ServiceSecret != "" && utils.VerifyAPIKey(presented, config.ServiceSecret) {
		return true
	}
	for _, configured := range config.APIKeys {
		if utils.VerifyAPIKey(presented, configured) {
			return true
		}
	}
	return false
}

func authenticateServiceToken(c *gin.Context, config *types.AuthConfig) bool {
	if config.ServiceSecret == "" {
		return false
	}

	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return false
	}
	tokenString := strings.TrimPrefix(header, "Bearer ")
	if tokenString == "" {
		return false
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(config.ServiceSecret), nil
	})

	return err == nil && token.Valid
}
