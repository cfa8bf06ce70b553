package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"employee-manager/internal/common"
	"employee-manager/internal/token"
)

// Context keys set by AuthMiddleware.
const (
	UserIDKey   = "user_id"
	UsernameKey = "username"
)

// TokenVerifier checks a session token and returns its subject.
type TokenVerifier interface {
	Verify(tokenString string) (*token.Subject, error)
}

// AuthMiddleware creates a Gin middleware for bearer token authentication.
// A missing or garbled Authorization header is answered with 401, a token
// that fails verification with 403.
func AuthMiddleware(verifier TokenVerifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer <token>"})
			return
		}

		subject, err := verifier.Verify(parts[1])
		if err != nil {
			if errors.Is(err, common.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token required"})
				return
			}
			logger.Debug("Rejected session token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(UserIDKey, subject.UserID)
		c.Set(UsernameKey, subject.Username)

		c.Next()
	}
}
