package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"climatedash/api/utils"
)

const (
	APIKeyHeader = "X-API-KEY"
	tokenCookie  = "jwt_token"

	ContextOperatorID    = "operator_id"
	ContextOperatorEmail = "operator_email"
)

// AuthRequired admits requests carrying the configured API key or a valid
// operator token from the jwt_token cookie or a Bearer header. An empty
// apiKey disables key access.
func AuthRequired(tokens *utils.TokenIssuer, apiKey string, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		if apiKey != "" {
			if key := c.GetHeader(APIKeyHeader); key != "" &&
				subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
				c.Next()
				return
			}
		}

		tokenString, err := c.Cookie(tokenCookie)
		if err != nil || tokenString == "" {
			tokenString = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: No token provided"})
			return
		}

		claims, err := tokens.Validate(tokenString)
		if err != nil {
			logger.Warn("rejected operator token", "error", err, "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid or expired token"})
			return
		}

		c.Set(ContextOperatorID, claims.OperatorID)
		c.Set(ContextOperatorEmail, claims.Email)
		c.Next()
	}
}
