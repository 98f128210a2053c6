package advantage

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voiceloop/backend/internal/config"
	"github.com/voiceloop/backend/internal/models"
)

type fakeEventRepo struct {
	events []models.FeedbackEvent
	err    error
}

func (f *fakeEventRepo) Create(event *models.FeedbackEvent) error { return nil }

func (f *fakeEventRepo) GetByEventID(id string) (*models.FeedbackEvent, error) {
	return nil, nil
}

func (f *fakeEventRepo) GetDecidedSince(userID string, since time.Time) ([]models.FeedbackEvent, error) {
	return f.events, f.err
}

func (f *fakeEventRepo) GetRecent(userID string, limit int) ([]models.FeedbackEvent, error) {
	return f.events, f.err
}

func (f *fakeEventRepo) UpdateOutcome(id string, likes, replies int) error { return nil }

func (f *fakeEventRepo) DistinctUsers(since time.Time) ([]string, error) { return nil, nil }

func newTestEngine(events []models.FeedbackEvent) *Engine {
	return NewEngine(&fakeEventRepo{events: events}, config.DefaultLearning(), logrus.New())
}

func TestActualOutcome_Skipped(t *testing.T) {
	outcome := ActualOutcome(models.FeedbackEvent{
		Decision: models.DecisionSkipped,
		Likes:    50,
		Replies:  10,
	})
	// Engagement on a skipped candidate is somebody else's engagement
	assert.Equal(t, 0.0, outcome)
}

func TestActualOutcome_SelectedBaseline(t *testing.T) {
	outcome := ActualOutcome(models.FeedbackEvent{Decision: models.DecisionSelected})
	assert.Equal(t, 0.5, outcome)
}

func TestActualOutcome_EngagementCaps(t *testing.T) {
	outcome := ActualOutcome(models.FeedbackEvent{
		Decision: models.DecisionSelected,
		Likes:    3,
		Replies:  1,
	})
	assert.InDelta(t, 0.75, outcome, 1e-9)

	// Likes cap at +0.3, replies at +0.2, total at 1.0
	capped := ActualOutcome(models.FeedbackEvent{
		Decision: models.DecisionSelected,
		Likes:    1000,
		Replies:  1000,
	})
	assert.Equal(t, 1.0, capped)
}

func TestSampleWeight_NeverZero(t *testing.T) {
	engine := newTestEngine(nil)

	for _, advantage := range []float64{-1, -0.5, -0.1, 0, 0.1, 0.5, 1} {
		weight := engine.SampleWeight(advantage)
		assert.Greater(t, weight, 0.0, "advantage %f", advantage)
		assert.Less(t, weight, 2.0, "advantage %f", advantage)
	}

	assert.Equal(t, 1.0, engine.SampleWeight(0))
	assert.Greater(t, engine.SampleWeight(0.5), engine.SampleWeight(-0.5))
}

func TestComputeSamples_EmptyWindow(t *testing.T) {
	engine := newTestEngine(nil)

	samples, err := engine.ComputeSamples("user-1", 30)
	require.NoError(t, err)
	assert.Nil(t, samples)
}

func TestComputeSamples_AdvantageDirection(t *testing.T) {
	engine := newTestEngine([]models.FeedbackEvent{
		// Predicted low, selected with engagement: positive surprise
		{Decision: models.DecisionSelected, PredictedScore: 0.2, Likes: 4, Replies: 1},
		// Predicted high, skipped: negative surprise
		{Decision: models.DecisionSkipped, PredictedScore: 0.9},
	})

	samples, err := engine.ComputeSamples("user-1", 30)
	require.NoError(t, err)
	require.Len(t, samples, 2)

	assert.Greater(t, samples[0].Advantage, 0.0)
	assert.Less(t, samples[1].Advantage, 0.0)
	assert.Greater(t, samples[0].Weight, samples[1].Weight)

	for _, sample := range samples {
		assert.Greater(t, sample.Weight, 0.0)
	}
}
