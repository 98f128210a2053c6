package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/voiceloop/backend/internal/learner"
	"github.com/voiceloop/backend/internal/models"
	"github.com/voiceloop/backend/pkg/utils"
	"gorm.io/gorm"
)

var validDecisions = map[string]bool{
	models.DecisionSelected: true,
	models.DecisionSkipped:  true,
	models.DecisionPending:  true,
}

type FeedbackHandler struct {
	learner *learner.Learner
	logger  *logrus.Logger
}

func NewFeedbackHandler(l *learner.Learner, logger *logrus.Logger) *FeedbackHandler {
	return &FeedbackHandler{learner: l, logger: logger}
}

// HandleFeedback records one selected/skipped decision
func (h *FeedbackHandler) HandleFeedback(c *gin.Context) {
	var req models.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if !validDecisions[req.Decision] {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid decision", nil)
		return
	}

	event := &models.FeedbackEvent{
		UserID:         req.UserID,
		CandidateID:    req.CandidateID,
		Author:         req.Author,
		CandidateText:  req.CandidateText,
		PredictedScore: req.PredictedScore,
		Decision:       req.Decision,
		Reasons:        models.StringArray(req.Reasons),
		Likes:          req.Likes,
		Replies:        req.Replies,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := h.learner.RecordFeedback(ctx, event); err != nil {
		h.logger.WithError(err).Error("Failed to record feedback")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to record feedback", err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"user_id":  req.UserID,
		"event_id": event.EventID,
		"decision": req.Decision,
	}).Info("Feedback recorded")

	utils.SuccessResponse(c, http.StatusCreated, "Feedback recorded", gin.H{"event_id": event.EventID})
}

// HandleOutcome attaches observed engagement counts to a recorded event
func (h *FeedbackHandler) HandleOutcome(c *gin.Context) {
	var req models.OutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	event, err := h.learner.RecordOutcome(ctx, req.EventID, req.Likes, req.Replies)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.ErrorResponse(c, http.StatusNotFound, "Feedback event not found", err)
			return
		}
		h.logger.WithError(err).Error("Failed to record outcome")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to record outcome", err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"user_id":  event.UserID,
		"event_id": event.EventID,
		"likes":    event.Likes,
		"replies":  event.Replies,
	}).Info("Outcome recorded")

	utils.SuccessResponse(c, http.StatusOK, "Outcome recorded", event)
}

// HandleEditFeedback learns from the diff between generated and edited text
func (h *FeedbackHandler) HandleEditFeedback(c *gin.Context) {
	var req models.EditFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	learnings, err := h.learner.RecordEdit(ctx, req.UserID, req.ContentType, req.Original, req.Edited)
	if err != nil {
		h.logger.WithError(err).Error("Failed to process edit feedback")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to process edit", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Edit processed", gin.H{"learnings": learnings})
}

// HandleTextFeedback extracts guidance from free-text feedback
func (h *FeedbackHandler) HandleTextFeedback(c *gin.Context) {
	var req models.TextFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	learnings, err := h.learner.RecordTextFeedback(ctx, req.UserID, req.Content)
	if err != nil {
		h.logger.WithError(err).Error("Failed to process text feedback")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to process feedback", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Feedback processed", gin.H{"learnings": learnings})
}

// HandleRejection records rejected content as a negative example
func (h *FeedbackHandler) HandleRejection(c *gin.Context) {
	var req models.RejectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	learnings, err := h.learner.RecordRejection(ctx, req.UserID, req.CandidateID, req.Author, req.Text, req.Reason)
	if err != nil {
		h.logger.WithError(err).Error("Failed to record rejection")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to record rejection", err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Rejection recorded", gin.H{"learnings": learnings})
}
