package user

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"budgetbook-svc/src/internal/config"
	"budgetbook-svc/src/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Handler interface {
	GetProfile(c *gin.Context)
	GetAllUsers(c *gin.Context)
	GetUserStats(c *gin.Context)
	BlockUser(c *gin.Context)
	UnblockUser(c *gin.Context)
	SetRole(c *gin.Context)
	SetSessionLimit(c *gin.Context)
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

// GetProfile returns the authenticated user's own profile.
func (h *handler) GetProfile(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Authentication required",
		})
		return
	}

	profile, err := h.service.GetProfile(ctx, userID)
	if err != nil {
		h.respondError(c, err, "Failed to load profile")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    profile,
	})
}

func (h *handler) GetAllUsers(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	req := &ListRequest{
		Page:   parseIntParam(c, "page", 1),
		Limit:  parseIntParam(c, "limit", 20),
		Role:   c.Query("role"),
		Search: c.Query("search"),
	}

	adminID, _ := c.Get("user_id")
	logrus.WithFields(logrus.Fields{
		"admin_user_id": adminID,
		"page":          req.Page,
		"limit":         req.Limit,
		"role":          req.Role,
		"search":        req.Search,
	}).Info("GetAllUsers request received")

	response, err := h.service.GetAllUsers(ctx, req)
	if err != nil {
		h.respondError(c, err, "Failed to retrieve users")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    response,
		"message": "Users retrieved successfully",
	})
}

func (h *handler) GetUserStats(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	stats, err := h.service.GetUserStats(ctx)
	if err != nil {
		h.respondError(c, err, "Failed to retrieve user statistics")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stats,
		"message": "User statistics retrieved successfully",
	})
}

func (h *handler) BlockUser(c *gin.Context) {
	h.setBlocked(c, true, "User blocked successfully")
}

func (h *handler) UnblockUser(c *gin.Context) {
	h.setBlocked(c, false, "User unblocked successfully")
}

func (h *handler) setBlocked(c *gin.Context, blocked bool, message string) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	userID := c.Param("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "User ID required",
		})
		return
	}

	adminID, _ := c.Get("user_id")
	logrus.WithFields(logrus.Fields{
		"admin_user_id":  adminID,
		"target_user_id": userID,
		"blocked":        blocked,
	}).Info("Changing user block state")

	if err := h.service.SetBlocked(ctx, userID, blocked); err != nil {
		h.respondError(c, err, "Failed to update user")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": message,
	})
}

func (h *handler) SetRole(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	userID := c.Param("userId")
	var body struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"message": err.Error(),
		})
		return
	}

	if err := h.service.SetRole(ctx, userID, body.Role); err != nil {
		h.respondError(c, err, "Failed to update role")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Role updated successfully",
	})
}

func (h *handler) SetSessionLimit(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	userID := c.Param("userId")
	var body struct {
		MaxSessions *int `json:"maxSessions" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"message": err.Error(),
		})
		return
	}

	if err := h.service.SetMaxSessionCount(ctx, userID, *body.MaxSessions); err != nil {
		h.respondError(c, err, "Failed to update session limit")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Session limit updated successfully",
	})
}

func (h *handler) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), time.Duration(h.config.App.Timeout)*time.Second)
}

func (h *handler) respondError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, models.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "User not found",
			"message": message,
		})
	default:
		logrus.WithError(err).Error(message)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal server error",
			"message": message,
		})
	}
}

func parseIntParam(c *gin.Context, param string, defaultValue int) int {
	value := c.Query(param)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"param": param,
			"value": value,
		}).Warn("Invalid integer parameter, using default")
		return defaultValue
	}
	return parsed
}
