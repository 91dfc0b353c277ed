package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"budgetbook-svc/src/internal/config"
	"budgetbook-svc/src/internal/models"
	"budgetbook-svc/src/internal/password"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const refreshCookieName = "refreshToken"

type Handler interface {
	Register(c *gin.Context)
	Login(c *gin.Context)
	Refresh(c *gin.Context)
	Logout(c *gin.Context)
	Me(c *gin.Context)
	CheckSession(c *gin.Context)
	RenewSession(c *gin.Context)
	PasswordRequirements(c *gin.Context)
	TerminateUserSessions(c *gin.Context)
}

type handler struct {
	config  *config.Configuration
	service Service
}

func NewHandler(cfg *config.Configuration, service Service) Handler {
	return &handler{
		config:  cfg,
		service: service,
	}
}

func (h *handler) Register(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"message": err.Error(),
		})
		return
	}

	logrus.WithField("username", req.Username).Info("Register request received")

	u, tokens, err := h.service.Register(ctx, req, c.Request.UserAgent(), c.ClientIP())
	if err != nil {
		h.respondError(c, err, "Registration failed")
		return
	}

	h.setRefreshCookie(c, tokens.RefreshToken)
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"user":   u.ToProfile(),
			"tokens": tokens,
		},
		"message": "User registered successfully",
	})
}

func (h *handler) Login(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	var creds Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"message": err.Error(),
		})
		return
	}

	u, tokens, err := h.service.Login(ctx, creds, c.Request.UserAgent(), c.ClientIP())
	if err != nil {
		h.respondError(c, err, "Login failed")
		return
	}

	h.setRefreshCookie(c, tokens.RefreshToken)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"user":   u.ToProfile(),
			"tokens": tokens,
		},
		"message": "Login successful",
	})
}

func (h *handler) Refresh(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	refreshToken := h.extractRefreshToken(c)
	if refreshToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "Refresh token required",
			"message": "no refresh token in cookie, body or authorization header",
		})
		return
	}

	tokens, err := h.service.RefreshToken(ctx, refreshToken, c.Request.UserAgent(), c.ClientIP())
	if err != nil {
		h.clearRefreshCookie(c)
		h.respondError(c, err, "Token refresh failed")
		return
	}

	h.setRefreshCookie(c, tokens.RefreshToken)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    tokens,
		"message": "Tokens refreshed successfully",
	})
}

func (h *handler) Logout(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	refreshToken := h.extractRefreshToken(c)
	h.clearRefreshCookie(c)
	if refreshToken == "" {
		// Nothing to revoke, but the client still ends up logged out.
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Logged out",
		})
		return
	}

	if err := h.service.Logout(ctx, refreshToken); err != nil {
		h.respondError(c, err, "Logout failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Logged out",
	})
}

// Me reports the identity the access token resolved to. The full profile
// lives on the users endpoint.
func (h *handler) Me(c *gin.Context) {
	userID, _ := c.Get("user_id")
	username, _ := c.Get("username")
	role, _ := c.Get("user_role")

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"userId":   userID,
			"username": username,
			"role":     role,
		},
	})
}

// CheckSession reports whether the presented refresh token is still usable
// without rotating it. Clients poll this before deciding to renew.
func (h *handler) CheckSession(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	refreshToken := h.extractRefreshToken(c)
	valid := refreshToken != "" && h.service.IsRefreshTokenValid(ctx, refreshToken)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"valid": valid},
	})
}

// RenewSession is the client-driven counterpart of Refresh; same rotation,
// kept as its own route so clients can renew ahead of expiry.
func (h *handler) RenewSession(c *gin.Context) {
	h.Refresh(c)
}

func (h *handler) PasswordRequirements(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"requirements": password.RequirementsMessage(),
		},
	})
}

func (h *handler) TerminateUserSessions(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	userID := c.Param("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "User ID required",
			"message": "userId path parameter is missing",
		})
		return
	}

	adminID, _ := c.Get("user_id")
	logrus.WithFields(logrus.Fields{
		"admin_user_id":  adminID,
		"target_user_id": userID,
	}).Info("Terminating all sessions for user")

	if err := h.service.TerminateAllUserSessions(ctx, userID); err != nil {
		h.respondError(c, err, "Failed to terminate sessions")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "All sessions terminated",
	})
}

func (h *handler) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), time.Duration(h.config.App.Timeout)*time.Second)
}

// extractRefreshToken checks, in order, the httpOnly cookie, the JSON body,
// and the bearer header. The first hit wins.
func (h *handler) extractRefreshToken(c *gin.Context) string {
	if cookie, err := c.Cookie(refreshCookieName); err == nil && cookie != "" {
		return cookie
	}

	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.ShouldBindJSON(&body); err == nil && body.RefreshToken != "" {
		return body.RefreshToken
	}

	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}

	return ""
}

func (h *handler) setRefreshCookie(c *gin.Context, refreshToken string) {
	maxAge := int((time.Duration(h.config.Security.RefreshTokenTTLHours) * time.Hour).Seconds())
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, refreshToken, maxAge, "/", "", false, true)
}

func (h *handler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, "", -1, "/", "", false, true)
}

// respondError maps service errors onto HTTP statuses with the standard
// response envelope.
func (h *handler) respondError(c *gin.Context, err error, message string) {
	var validationErr *models.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "Password does not meet requirements",
			"message":    message,
			"violations": validationErr.Violations,
		})
		return
	}

	var rateErr *models.RateLimitError
	if errors.As(err, &rateErr) {
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(rateErr.RetryAfter)))
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":      "Too many attempts",
			"message":    rateErr.Error(),
			"retryAfter": retryAfterSeconds(rateErr.RetryAfter),
		})
		return
	}

	status := http.StatusInternalServerError
	errText := "Internal server error"

	switch {
	case errors.Is(err, models.ErrDuplicateUser):
		status, errText = http.StatusBadRequest, "Username or email already in use"
	case errors.Is(err, models.ErrInvalidCredentials):
		status, errText = http.StatusUnauthorized, "Invalid username or password"
	case errors.Is(err, models.ErrInvalidToken),
		errors.Is(err, models.ErrTokenMalformed),
		errors.Is(err, models.ErrTokenVersionMismatch):
		status, errText = http.StatusUnauthorized, "Invalid token"
	case errors.Is(err, models.ErrTokenExpired):
		status, errText = http.StatusUnauthorized, "Token expired"
	case errors.Is(err, models.ErrAccountBlocked):
		status, errText = http.StatusForbidden, "Account is blocked"
	case errors.Is(err, models.ErrAccountInactive):
		status, errText = http.StatusForbidden, "Account is inactive"
	case errors.Is(err, models.ErrInsufficientRole):
		status, errText = http.StatusForbidden, "Insufficient permissions"
	case errors.Is(err, models.ErrUserNotFound):
		status, errText = http.StatusNotFound, "User not found"
	case errors.Is(err, models.ErrSessionNotFound):
		status, errText = http.StatusNotFound, "Session not found"
	default:
		logrus.WithError(err).Error(message)
	}

	c.JSON(status, gin.H{
		"error":   errText,
		"message": message,
	})
}

func retryAfterSeconds(d time.Duration) int {
	seconds := int(d.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
