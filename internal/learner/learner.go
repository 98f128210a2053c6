package learner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/voiceloop/backend/internal/banned"
	"github.com/voiceloop/backend/internal/config"
	"github.com/voiceloop/backend/internal/models"
	"github.com/voiceloop/backend/pkg/utils"
	"gorm.io/gorm"
)

const (
	minRemovedSpanLen = 10
	minAddedSpanLen   = 5
	lengthDeltaChars  = 20
)

var (
	neverSayPattern   = regexp.MustCompile(`(?i)i (?:would )?never say\s+"?([^".!?\n]+)"?`)
	usuallySayPattern = regexp.MustCompile(`(?i)i usually say\s+"?([^".!?\n]+)"?`)
	moreLikePattern   = regexp.MustCompile(`(?i)more like\s+"?([^".!?\n]+)"?`)
)

// Learner extracts atomic Learning records from edits, rejections, and
// free-text feedback, and feeds the banned-pattern registry.
type Learner struct {
	events    models.FeedbackEventRepository
	signals   models.PreferenceSignalRepository
	learnings models.LearningRepository
	negatives models.NegativeExampleRepository
	registry  *banned.Registry
	cfg       config.LearningConfig
	logger    *logrus.Logger
}

func NewLearner(
	events models.FeedbackEventRepository,
	signals models.PreferenceSignalRepository,
	learnings models.LearningRepository,
	negatives models.NegativeExampleRepository,
	registry *banned.Registry,
	cfg config.LearningConfig,
	logger *logrus.Logger,
) *Learner {
	return &Learner{
		events:    events,
		signals:   signals,
		learnings: learnings,
		negatives: negatives,
		registry:  registry,
		cfg:       cfg,
		logger:    logger,
	}
}

// RecordFeedback validates and stores a feedback event, then folds it into
// the per-author preference signal. Store failures propagate; they are the
// only hard failures at this boundary.
func (l *Learner) RecordFeedback(ctx context.Context, event *models.FeedbackEvent) error {
	if event.EventID == "" {
		event.EventID = utils.NewEventID()
	}
	if event.ActionAt.IsZero() {
		event.ActionAt = time.Now()
	}
	if err := event.Validate(); err != nil {
		return err
	}

	if err := l.events.Create(event); err != nil {
		return fmt.Errorf("failed to store feedback event: %w", err)
	}

	if event.Author != "" && event.Decision != models.DecisionPending {
		if err := l.updateAuthorSignal(event); err != nil {
			// Signal maintenance is best effort; the event itself is durable.
			l.logger.WithError(err).WithField("user_id", event.UserID).
				Warn("Failed to update preference signal")
		}
	}

	return nil
}

// RecordOutcome attaches observed engagement counts to a stored feedback
// event. Outcomes arrive asynchronously, often days after the decision.
func (l *Learner) RecordOutcome(ctx context.Context, eventID string, likes, replies int) (*models.FeedbackEvent, error) {
	if likes < 0 || replies < 0 {
		return nil, errors.New("likes and replies must be non-negative")
	}

	event, err := l.events.GetByEventID(eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load feedback event: %w", err)
	}

	if err := l.events.UpdateOutcome(eventID, likes, replies); err != nil {
		return nil, fmt.Errorf("failed to update outcome: %w", err)
	}

	event.Likes = likes
	event.Replies = replies
	event.OutcomeSeen = true

	l.logger.WithFields(logrus.Fields{
		"user_id":  event.UserID,
		"event_id": eventID,
		"likes":    likes,
		"replies":  replies,
	}).Info("Recorded feedback outcome")

	return event, nil
}

// Learnings returns everything the system has learned about a user, newest
// first.
func (l *Learner) Learnings(ctx context.Context, userID string) ([]models.Learning, error) {
	return l.learnings.GetByUser(userID)
}

func (l *Learner) updateAuthorSignal(event *models.FeedbackEvent) error {
	signal, err := l.signals.Get(event.UserID, "author", event.Author)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		signal = &models.PreferenceSignal{
			UserID:      event.UserID,
			SignalType:  "author",
			SignalValue: event.Author,
		}
	}

	if event.Decision == models.DecisionSelected {
		signal.PositiveCount++
	} else {
		signal.NegativeCount++
	}

	return l.signals.Save(signal)
}

// RecordEdit diffs the original against the user's edit and turns the changes
// into banned patterns and learnings.
func (l *Learner) RecordEdit(ctx context.Context, userID, contentType, original, edited string) ([]models.Learning, error) {
	if strings.TrimSpace(original) == "" || strings.TrimSpace(edited) == "" {
		return nil, errors.New("original and edited text are required")
	}

	spans := WordDiff(original, edited)
	var created []models.Learning

	for _, removed := range RemovedSpans(spans) {
		knownMatch := l.matchesKnownPattern(ctx, userID, removed)
		if len(removed) <= minRemovedSpanLen && !knownMatch {
			continue
		}

		confidence := 0.5
		if knownMatch {
			confidence = 0.7
		}

		phrase := trimSpanPhrase(removed)
		if err := l.registry.AddUserPattern(ctx, userID, phrase, models.SourceLearnedFromEdit, confidence); err != nil {
			return created, err
		}

		learning := models.Learning{
			UserID:     userID,
			Category:   models.CategoryPhraseToAvoid,
			Insight:    fmt.Sprintf("User removes %q from generated %s", phrase, contentType),
			Evidence:   models.StringArray{removed},
			Confidence: confidence,
		}
		if err := l.learnings.Create(&learning); err != nil {
			return created, err
		}
		created = append(created, learning)
	}

	for _, added := range AddedSpans(spans) {
		if len(added) <= minAddedSpanLen {
			continue
		}
		learning := models.Learning{
			UserID:     userID,
			Category:   models.CategoryPhraseToUse,
			Insight:    fmt.Sprintf("User writes %q in their own voice", trimSpanPhrase(added)),
			Evidence:   models.StringArray{added},
			Confidence: 0.6,
		}
		if err := l.learnings.Create(&learning); err != nil {
			return created, err
		}
		created = append(created, learning)
	}

	if delta := len(edited) - len(original); math.Abs(float64(delta)) > lengthDeltaChars {
		direction := "shorter"
		if delta > 0 {
			direction = "longer"
		}
		learning := models.Learning{
			UserID:     userID,
			Category:   models.CategoryLengthPreference,
			Insight:    fmt.Sprintf("User prefers %s %s (edit changed length by %d chars)", direction, contentType, delta),
			Confidence: 0.6,
		}
		if err := l.learnings.Create(&learning); err != nil {
			return created, err
		}
		created = append(created, learning)
	}

	l.logger.WithFields(logrus.Fields{
		"user_id":   userID,
		"learnings": len(created),
	}).Info("Processed edit feedback")

	return created, nil
}

// RecordRejection stores a negative example and, when the rejection reason
// matches a known complaint, a high-confidence learning.
func (l *Learner) RecordRejection(ctx context.Context, userID, candidateID, author, text, reason string) ([]models.Learning, error) {
	example := &models.NegativeExample{
		UserID:      userID,
		CandidateID: candidateID,
		Author:      author,
		Text:        text,
		Reason:      reason,
	}
	if err := l.negatives.Create(example); err != nil {
		return nil, fmt.Errorf("failed to store negative example: %w", err)
	}

	var created []models.Learning
	lower := strings.ToLower(reason)

	add := func(category, insight string, confidence float64) error {
		learning := models.Learning{
			UserID:     userID,
			Category:   category,
			Insight:    insight,
			Evidence:   models.StringArray{reason},
			Confidence: confidence,
		}
		if err := l.learnings.Create(&learning); err != nil {
			return err
		}
		created = append(created, learning)
		return nil
	}

	switch {
	case strings.Contains(lower, "doesn't sound like me") || strings.Contains(lower, "not my voice"):
		if err := add(models.CategoryStyleMismatch, "Rejected content does not match the user's voice", 0.9); err != nil {
			return created, err
		}
	case strings.Contains(lower, "too formal"):
		if err := add(models.CategoryToneAdjustment, "User finds generated tone too formal", 0.8); err != nil {
			return created, err
		}
	case strings.Contains(lower, "too casual"):
		if err := add(models.CategoryToneAdjustment, "User finds generated tone too casual", 0.8); err != nil {
			return created, err
		}
	case strings.Contains(lower, "generic") || strings.Contains(lower, "ai"):
		if err := add(models.CategoryAuthenticity, "User flags generated content as generic or AI-sounding", 0.85); err != nil {
			return created, err
		}
	}

	return created, nil
}

// RecordTextFeedback pattern-matches free-text guidance like "I never say X".
func (l *Learner) RecordTextFeedback(ctx context.Context, userID, content string) ([]models.Learning, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("feedback content is required")
	}

	var created []models.Learning

	for _, match := range neverSayPattern.FindAllStringSubmatch(content, -1) {
		phrase := trimSpanPhrase(match[1])
		if phrase == "" {
			continue
		}
		if err := l.registry.AddUserPattern(ctx, userID, phrase, models.SourceUserFeedback, 1.0); err != nil {
			return created, err
		}
		learning := models.Learning{
			UserID:     userID,
			Category:   models.CategoryPhraseToAvoid,
			Insight:    fmt.Sprintf("User explicitly never says %q", phrase),
			Evidence:   models.StringArray{content},
			Confidence: 1.0,
		}
		if err := l.learnings.Create(&learning); err != nil {
			return created, err
		}
		created = append(created, learning)
	}

	for _, pattern := range []*regexp.Regexp{usuallySayPattern, moreLikePattern} {
		for _, match := range pattern.FindAllStringSubmatch(content, -1) {
			phrase := trimSpanPhrase(match[1])
			if phrase == "" {
				continue
			}
			learning := models.Learning{
				UserID:     userID,
				Category:   models.CategoryPhraseToUse,
				Insight:    fmt.Sprintf("User prefers phrasing like %q", phrase),
				Evidence:   models.StringArray{content},
				Confidence: 0.9,
			}
			if err := l.learnings.Create(&learning); err != nil {
				return created, err
			}
			created = append(created, learning)
		}
	}

	return created, nil
}

func (l *Learner) matchesKnownPattern(ctx context.Context, userID, span string) bool {
	candidate := strings.ToLower(trimSpanPhrase(span))
	if candidate == "" {
		return false
	}
	if banned.IsGlobalPhrase(candidate) {
		return true
	}
	// A removed span may contain a banned phrase with surrounding words.
	matches := l.registry.Detect(ctx, userID, span)
	return len(matches) > 0
}

func trimSpanPhrase(span string) string {
	return strings.Trim(strings.TrimSpace(span), `"'.,;:`)
}
