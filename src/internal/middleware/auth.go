package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"budgetbook-svc/src/internal/models"
	"budgetbook-svc/src/internal/token"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Verifier resolves a raw access token to verified claims. Satisfied by the
// auth service.
type Verifier interface {
	VerifyAccessToken(ctx context.Context, accessToken string) (*token.Claims, error)
}

// AuthMiddleware guards protected routes with access token verification.
type AuthMiddleware struct {
	verifier Verifier
}

// NewAuthMiddleware creates the boundary middleware.
func NewAuthMiddleware(verifier Verifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// RequireAuth rejects requests without a valid, current access token and
// stores the verified identity in the request context.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		accessToken := m.extractToken(c)
		if accessToken == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization token is required",
			})
			c.Abort()
			return
		}

		claims, err := m.verifier.VerifyAccessToken(c.Request.Context(), accessToken)
		if err != nil {
			m.rejectToken(c, err)
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("session_id", claims.SessionID)
		c.Set("username", claims.Username)
		c.Set("user_role", claims.Role)

		logrus.WithFields(logrus.Fields{
			"user_id":    claims.UserID,
			"session_id": claims.SessionID,
			"user_role":  claims.Role,
		}).Debug("User authenticated successfully")

		c.Next()
	}
}

// RequireRole allows only the given role through. Admins pass any role gate.
func (m *AuthMiddleware) RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRoleValue, exists := c.Get("user_role")
		if !exists {
			logrus.Error("User role not found in context, RequireAuth must run first")
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Access forbidden",
			})
			c.Abort()
			return
		}

		userRole, ok := userRoleValue.(string)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Invalid user role format",
			})
			c.Abort()
			return
		}

		if userRole != role && userRole != "admin" {
			userID, _ := c.Get("user_id")
			logrus.WithFields(logrus.Fields{
				"user_id":       userID,
				"user_role":     userRole,
				"required_role": role,
			}).Warn("Access to protected endpoint denied")

			c.JSON(http.StatusForbidden, gin.H{
				"error": "Access forbidden - insufficient privileges",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireAdminRights is RequireRole("admin") under its historical name.
func (m *AuthMiddleware) RequireAdminRights() gin.HandlerFunc {
	return m.RequireRole("admin")
}

func (m *AuthMiddleware) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		logrus.Debug("Invalid authorization header format")
		return ""
	}

	return strings.TrimPrefix(authHeader, "Bearer ")
}

func (m *AuthMiddleware) rejectToken(c *gin.Context, err error) {
	message := "Invalid or expired token"
	switch {
	case errors.Is(err, models.ErrTokenExpired):
		message = "Token expired"
	case errors.Is(err, models.ErrTokenVersionMismatch):
		message = "Session terminated - please login again"
	case errors.Is(err, models.ErrAccountBlocked):
		logrus.WithError(err).Warn("Blocked account presented a valid token")
		c.JSON(http.StatusForbidden, gin.H{
			"error": "Account is blocked",
		})
		c.Abort()
		return
	}

	logrus.WithError(err).Debug("Access token rejected")
	c.JSON(http.StatusUnauthorized, gin.H{
		"error": message,
	})
	c.Abort()
}
