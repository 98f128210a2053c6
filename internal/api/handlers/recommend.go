package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/voiceloop/backend/internal/models"
	"github.com/voiceloop/backend/internal/recommender"
	"github.com/voiceloop/backend/pkg/utils"
)

const maxRankCandidates = 100

type RecommendHandler struct {
	recommender *recommender.Recommender
	logger      *logrus.Logger
}

func NewRecommendHandler(r *recommender.Recommender, logger *logrus.Logger) *RecommendHandler {
	return &RecommendHandler{recommender: r, logger: logger}
}

// HandleRank ranks candidate content for a user
func (h *RecommendHandler) HandleRank(c *gin.Context) {
	startTime := time.Now()

	var req models.RankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if len(req.Candidates) == 0 {
		utils.ErrorResponse(c, http.StatusBadRequest, "At least one candidate is required", nil)
		return
	}
	if len(req.Candidates) > maxRankCandidates {
		utils.ErrorResponse(c, http.StatusBadRequest, "Too many candidates (max 100)", nil)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	results, fallback, err := h.recommender.Rank(ctx, req.UserID, req.Candidates, req.Limit)
	if err != nil {
		h.logger.WithError(err).Error("Ranking failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Ranking failed", err)
		return
	}

	response := models.RankResponse{
		Results:        results,
		Fallback:       fallback,
		ResponseTimeMs: int(time.Since(startTime).Milliseconds()),
	}

	h.logger.WithFields(logrus.Fields{
		"user_id":  req.UserID,
		"results":  len(results),
		"fallback": fallback,
	}).Info("Ranking completed")

	utils.SuccessResponse(c, http.StatusOK, "Ranking completed", response)
}
