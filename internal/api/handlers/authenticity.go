package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/voiceloop/backend/internal/authenticity"
	"github.com/voiceloop/backend/internal/drift"
	"github.com/voiceloop/backend/internal/models"
	"github.com/voiceloop/backend/pkg/utils"
)

type AuthenticityHandler struct {
	scorer  *authenticity.Scorer
	grader  *authenticity.Grader
	tracker *drift.Tracker
	logger  *logrus.Logger
}

func NewAuthenticityHandler(scorer *authenticity.Scorer, grader *authenticity.Grader, tracker *drift.Tracker, logger *logrus.Logger) *AuthenticityHandler {
	return &AuthenticityHandler{
		scorer:  scorer,
		grader:  grader,
		tracker: tracker,
		logger:  logger,
	}
}

// HandleScore runs the deterministic rule-based scorer
func (h *AuthenticityHandler) HandleScore(c *gin.Context) {
	var req models.ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	profile := h.styleProfile(ctx, req.UserID)
	result := h.scorer.Score(ctx, req.UserID, req.Text, req.ContentType, profile, req.Examples)

	utils.SuccessResponse(c, http.StatusOK, "Scored", result)
}

// HandleGrade grades text with the oracle and rewrites it until it passes
// or attempts run out
func (h *AuthenticityHandler) HandleGrade(c *gin.Context) {
	var req models.GradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 90*time.Second)
	defer cancel()

	profile := h.styleProfile(ctx, req.UserID)
	text, grade := h.grader.GradeAndImprove(ctx, req.UserID, req.Text, req.ContentType, profile, req.Examples, req.MaxAttempts)

	h.logger.WithFields(logrus.Fields{
		"user_id":  req.UserID,
		"pass":     grade.Pass,
		"attempts": grade.Attempts,
		"fallback": grade.UsedFallback,
	}).Info("Grading completed")

	utils.SuccessResponse(c, http.StatusOK, "Graded", gin.H{
		"text":  text,
		"grade": grade,
	})
}

// styleProfile loads the user's blended style profile. A missing profile is
// fine; scoring falls back to neutral baselines.
func (h *AuthenticityHandler) styleProfile(ctx context.Context, userID string) *models.StyleProfile {
	profile, err := h.tracker.TimeWeightedProfile(ctx, userID, 10)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).
			Warn("Failed to load style profile, scoring without one")
		return nil
	}
	return profile
}
