package advantage

import (
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/voiceloop/backend/internal/config"
	"github.com/voiceloop/backend/internal/models"
)

// WeightedSample is one feedback event converted into training evidence. The
// weight is never zero: mistakes still teach.
type WeightedSample struct {
	Event     models.FeedbackEvent
	Actual    float64
	Advantage float64
	Weight    float64
}

// Engine converts raw feedback plus observed outcomes into advantage-weighted
// training samples.
type Engine struct {
	events models.FeedbackEventRepository
	cfg    config.LearningConfig
	logger *logrus.Logger
}

func NewEngine(events models.FeedbackEventRepository, cfg config.LearningConfig, logger *logrus.Logger) *Engine {
	return &Engine{
		events: events,
		cfg:    cfg,
		logger: logger,
	}
}

// ComputeSamples pulls decided feedback events inside the lookback window and
// weights each by how surprising its outcome was. An empty window is not an
// error; training simply has nothing to learn from yet.
func (e *Engine) ComputeSamples(userID string, lookbackDays int) ([]WeightedSample, error) {
	if lookbackDays <= 0 {
		lookbackDays = e.cfg.LookbackDays
	}
	since := time.Now().AddDate(0, 0, -lookbackDays)

	events, err := e.events.GetDecidedSince(userID, since)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		e.logger.WithField("user_id", userID).Debug("No decided feedback events in window")
		return nil, nil
	}

	samples := make([]WeightedSample, 0, len(events))
	for _, event := range events {
		actual := ActualOutcome(event)
		adv := actual - event.PredictedScore
		samples = append(samples, WeightedSample{
			Event:     event,
			Actual:    actual,
			Advantage: adv,
			Weight:    e.SampleWeight(adv),
		})
	}

	e.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"samples": len(samples),
	}).Debug("Computed advantage samples")

	return samples, nil
}

// ActualOutcome maps an event's decision and engagement into [0,1]. Skips are
// worth nothing; a selection starts at 0.5 and earns up to 0.3 from likes and
// 0.2 from replies.
func ActualOutcome(event models.FeedbackEvent) float64 {
	if event.Decision != models.DecisionSelected {
		return 0
	}

	outcome := 0.5
	outcome += math.Min(float64(event.Likes)*0.05, 0.3)
	outcome += math.Min(float64(event.Replies)*0.1, 0.2)
	return math.Min(outcome, 1.0)
}

// SampleWeight maps advantage to (0.5, 2.0) via 1 + tanh(scale * advantage).
func (e *Engine) SampleWeight(advantage float64) float64 {
	scale := e.cfg.AdvantageWeightScale
	if scale == 0 {
		scale = 2.0
	}
	return 1 + math.Tanh(advantage*scale)
}
