package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// WebhookSecretHeader carries the shared webhook secret.
const WebhookSecretHeader = "goldsky-webhook-secret"

// WebhookAuthMiddleware rejects requests whose secret header does not
// match the configured value. The comparison is constant-time; an empty
// configured secret rejects everything rather than open the endpoint.
func WebhookAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(WebhookSecretHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
