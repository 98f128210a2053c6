package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/voiceloop/backend/internal/banned"
	"github.com/voiceloop/backend/internal/models"
	"github.com/voiceloop/backend/pkg/utils"
)

type BannedHandler struct {
	registry *banned.Registry
	logger   *logrus.Logger
}

func NewBannedHandler(registry *banned.Registry, logger *logrus.Logger) *BannedHandler {
	return &BannedHandler{registry: registry, logger: logger}
}

// HandleListPatterns returns the user's learned banned patterns
func (h *BannedHandler) HandleListPatterns(c *gin.Context) {
	userID := c.Param("user_id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	patterns, err := h.registry.UserPatterns(ctx, userID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list banned patterns")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list patterns", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Patterns retrieved", gin.H{
		"patterns": patterns,
		"count":    len(patterns),
	})
}

// HandleRemovePattern deletes one learned pattern for the user
func (h *BannedHandler) HandleRemovePattern(c *gin.Context) {
	userID := c.Param("user_id")

	var req models.RemovePatternRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := h.registry.RemoveUserPattern(ctx, userID, req.Phrase); err != nil {
		h.logger.WithError(err).Error("Failed to remove banned pattern")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to remove pattern", err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"phrase":  req.Phrase,
	}).Info("Banned pattern removed")

	utils.SuccessResponse(c, http.StatusOK, "Pattern removed", gin.H{"phrase": req.Phrase})
}
