package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"mark-operator.backend/pkg/logger"
)

// PauseStore reads and writes the operator pause switches.
type PauseStore interface {
	IsPurchasePaused(ctx context.Context) (bool, error)
	SetPurchasePause(ctx context.Context, paused bool) error
	IsRebalancePaused(ctx context.Context) (bool, error)
	SetRebalancePause(ctx context.Context, paused bool) error
}

// AdminHandler exposes the operator pause switches
type AdminHandler struct {
	store PauseStore
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(store PauseStore) *AdminHandler {
	return &AdminHandler{store: store}
}

type pauseInput struct {
	Paused *bool `json:"paused" binding:"required"`
}

// GetPauseStatus returns the current pause flags
func (h *AdminHandler) GetPauseStatus(c *gin.Context) {
	ctx := c.Request.Context()
	purchases, err := h.store.IsPurchasePaused(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read pause state"})
		return
	}
	rebalances, err := h.store.IsRebalancePaused(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read pause state"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"purchasePaused":  purchases,
		"rebalancePaused": rebalances,
	})
}

// SetPause pauses or resumes one scope: POST /admin/pause?scope=purchase|rebalance
func (h *AdminHandler) SetPause(c *gin.Context) {
	var input pauseInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "paused flag is required"})
		return
	}

	scope := c.Query("scope")
	var err error
	switch scope {
	case "purchase":
		err = h.store.SetPurchasePause(c.Request.Context(), *input.Paused)
	case "rebalance":
		err = h.store.SetRebalancePause(c.Request.Context(), *input.Paused)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "scope must be purchase or rebalance"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update pause state"})
		return
	}

	logger.Warn(c.Request.Context(), "pause flag changed",
		zap.String("scope", scope),
		zap.Bool("paused", *input.Paused))
	c.JSON(http.StatusOK, gin.H{"scope": scope, "paused": *input.Paused})
}
