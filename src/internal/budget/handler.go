package budget

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
	CreateItem(c *gin.Context)
	ListItems(c *gin.Context)
	DeleteItem(c *gin.Context)
}

type handler struct {
	config     *config.Configuration
	repository Repository
}

func NewHandler(cfg *config.Configuration, repository Repository) Handler {
	return &handler{
		config:     cfg,
		repository: repository,
	}
}

func (h *handler) CreateItem(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"message": err.Error(),
		})
		return
	}

	userID := c.GetString("user_id")
	currency := req.Currency
	if currency == "" {
		currency = "EUR"
	}

	item, err := h.repository.Create(ctx, &Item{
		UserID:   userID,
		Type:     req.Type,
		Category: req.Category,
		Label:    req.Label,
		Amount:   req.Amount,
		Currency: currency,
		Month:    req.Month,
		Year:     req.Year,
	})
	if err != nil {
		logrus.WithError(err).Error("Failed to create budget item")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to create budget item",
			"message": err.Error(),
		})
		return
	}

	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"item_id": item.ID.Hex(),
		"type":    item.Type,
	}).Info("Budget item created")

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    item,
		"message": "Budget item created",
	})
}

func (h *handler) ListItems(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	now := time.Now()
	filter := ListFilter{
		UserID: c.GetString("user_id"),
		Month:  parseIntQuery(c, "month", int(now.Month())),
		Year:   parseIntQuery(c, "year", now.Year()),
		Type:   c.Query("type"),
	}

	if filter.Month < 1 || filter.Month > 12 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Month must be between 1 and 12",
		})
		return
	}

	items, err := h.repository.List(ctx, filter)
	if err != nil {
		logrus.WithError(err).Error("Failed to list budget items")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list budget items",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"items": items,
			"month": filter.Month,
			"year":  filter.Year,
		},
	})
}

func (h *handler) DeleteItem(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	userID := c.GetString("user_id")
	itemID := c.Param("itemId")

	if err := h.repository.Delete(ctx, userID, itemID); err != nil {
		if errors.Is(err, models.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Budget item not found",
			})
			return
		}
		logrus.WithError(err).Error("Failed to delete budget item")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to delete budget item",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Budget item deleted",
	})
}

func (h *handler) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), time.Duration(h.config.App.Timeout)*time.Second)
}

func parseIntQuery(c *gin.Context, param string, defaultValue int) int {
	value := c.Query(param)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
