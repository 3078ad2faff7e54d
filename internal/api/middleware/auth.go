package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/freelancer-expense-classifier/internal/domain/user"
)

// UserKey is the gin context key holding the authenticated user
const UserKey = "authenticated_user"

// Authenticator resolves a bearer token to the account that owns it
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*user.User, error)
}

// Auth middleware requires a valid "Authorization: Bearer <token>" header and
// stores the resolved user in the gin context for handlers
func Auth(logger *slog.Logger, auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Missing or malformed Authorization header",
				},
			})
			return
		}

		u, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			logger.Debug("Rejected bearer token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Invalid or expired session",
				},
			})
			return
		}

		c.Set(UserKey, u)
		c.Next()
	}
}

// GetUser retrieves the authenticated user stored by the Auth middleware
func GetUser(c *gin.Context) *user.User {
	if v, exists := c.Get(UserKey); exists {
		if u, ok := v.(*user.User); ok {
			return u
		}
	}
	return nil
}
