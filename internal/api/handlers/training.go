package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/voiceloop/backend/internal/drift"
	"github.com/voiceloop/backend/internal/learner"
	"github.com/voiceloop/backend/internal/models"
	"github.com/voiceloop/backend/internal/trainer"
	"github.com/voiceloop/backend/pkg/utils"
)

type TrainingHandler struct {
	trainer *trainer.Trainer
	learner *learner.Learner
	tracker *drift.Tracker
	logger  *logrus.Logger
}

func NewTrainingHandler(t *trainer.Trainer, l *learner.Learner, tracker *drift.Tracker, logger *logrus.Logger) *TrainingHandler {
	return &TrainingHandler{
		trainer: t,
		learner: l,
		tracker: tracker,
		logger:  logger,
	}
}

// HandleTrain runs one training pass for a user
func (h *TrainingHandler) HandleTrain(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	profile, err := h.trainer.TrainUserModel(ctx, userID)
	if err != nil {
		h.logger.WithError(err).Error("Training failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Training failed", err)
		return
	}

	if profile == nil {
		utils.SuccessResponse(c, http.StatusOK, "Nothing to train", nil)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Profile trained", profile)
}

// HandleConsolidate runs the consolidation batch pass for a user
func (h *TrainingHandler) HandleConsolidate(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	report, err := h.learner.Consolidate(ctx, userID)
	if err != nil {
		h.logger.WithError(err).Error("Consolidation failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Consolidation failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Consolidation completed", report)
}

// HandleLearnings lists everything the system has learned about a user
func (h *TrainingHandler) HandleLearnings(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	learnings, err := h.learner.Learnings(ctx, userID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load learnings")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to load learnings", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Learnings retrieved", gin.H{
		"learnings": learnings,
		"count":     len(learnings),
	})
}

// HandleSnapshot checks the submitted profile for drift and snapshots it
// when due. An explicit trigger forces the snapshot.
func (h *TrainingHandler) HandleSnapshot(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	var req models.SnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	if req.Trigger != "" {
		snapshot, err := h.tracker.Snapshot(ctx, userID, req.Profile, req.Trigger)
		if err != nil {
			h.logger.WithError(err).Error("Snapshot failed")
			utils.ErrorResponse(c, http.StatusInternalServerError, "Snapshot failed", err)
			return
		}
		utils.SuccessResponse(c, http.StatusCreated, "Snapshot captured", snapshot)
		return
	}

	result, snapshot, err := h.tracker.CheckAndSnapshot(ctx, userID, req.Profile)
	if err != nil {
		h.logger.WithError(err).Error("Drift check failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Drift check failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Drift checked", gin.H{
		"drift":    result,
		"snapshot": snapshot,
	})
}

// HandleRollback restores a historical style snapshot
func (h *TrainingHandler) HandleRollback(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	var req models.RollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	snapshot, err := h.tracker.RollbackToSnapshot(ctx, userID, req.SnapshotID)
	if err != nil {
		h.logger.WithError(err).Error("Rollback failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Rollback failed", err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"user_id":     userID,
		"snapshot_id": req.SnapshotID,
	}).Info("Style profile rolled back")

	utils.SuccessResponse(c, http.StatusCreated, "Rollback completed", snapshot)
}
