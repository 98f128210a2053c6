package trainer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voiceloop/backend/internal/advantage"
	"github.com/voiceloop/backend/internal/config"
	"github.com/voiceloop/backend/internal/models"
	"github.com/voiceloop/backend/internal/oracle"
	"gorm.io/gorm"
)

type fakeEventRepo struct {
	events []models.FeedbackEvent
}

func (f *fakeEventRepo) Create(event *models.FeedbackEvent) error { return nil }

func (f *fakeEventRepo) GetByEventID(id string) (*models.FeedbackEvent, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeEventRepo) GetDecidedSince(userID string, since time.Time) ([]models.FeedbackEvent, error) {
	return f.events, nil
}

func (f *fakeEventRepo) GetRecent(userID string, limit int) ([]models.FeedbackEvent, error) {
	return f.events, nil
}

func (f *fakeEventRepo) UpdateOutcome(id string, likes, replies int) error { return nil }

func (f *fakeEventRepo) DistinctUsers(since time.Time) ([]string, error) { return nil, nil }

type fakeProfileRepo struct {
	active   *models.Profile
	versions []*models.Profile
}

func (f *fakeProfileRepo) GetActive(userID, modelType string) (*models.Profile, error) {
	if f.active == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.active, nil
}

func (f *fakeProfileRepo) CreateVersion(profile *models.Profile) error {
	profile.Version = len(f.versions) + 1
	profile.Active = true
	f.versions = append(f.versions, profile)
	f.active = profile
	return nil
}

type fakeCompleter struct {
	response string
	err      error
	calls    int
}

func (f *fakeCompleter) Complete(ctx context.Context, req oracle.CompletionRequest) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func decidedEvents(n int) []models.FeedbackEvent {
	events := make([]models.FeedbackEvent, 0, n)
	for i := 0; i < n; i++ {
		decision := models.DecisionSelected
		if i%3 == 0 {
			decision = models.DecisionSkipped
		}
		events = append(events, models.FeedbackEvent{
			CandidateID:    "cand",
			Author:         "alice",
			PredictedScore: 0.5,
			Decision:       decision,
			Likes:          i % 4,
			Reasons:        models.StringArray{"relevant_topic"},
		})
	}
	return events
}

func newTestTrainer(events []models.FeedbackEvent, completer oracle.Completer) (*Trainer, *fakeProfileRepo) {
	cfg := config.DefaultLearning()
	engine := advantage.NewEngine(&fakeEventRepo{events: events}, cfg, logrus.New())
	profiles := &fakeProfileRepo{}
	trainer := NewTrainer(engine, profiles, completer, nil, cfg, logrus.New())
	return trainer, profiles
}

func TestTrainUserModel_InsufficientSamples(t *testing.T) {
	completer := &fakeCompleter{response: "profile text"}
	trainer, profiles := newTestTrainer(decidedEvents(3), completer)

	profile, err := trainer.TrainUserModel(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, profile)
	assert.Empty(t, profiles.versions)
	assert.Zero(t, completer.calls)
}

func TestTrainUserModel_OracleFailureKeepsProfile(t *testing.T) {
	completer := &fakeCompleter{err: oracle.ErrUnavailable}
	trainer, profiles := newTestTrainer(decidedEvents(20), completer)

	// Simulate an existing active profile
	existing := &models.Profile{UserID: "user-1", ModelType: models.ModelTypeRecommendation, Version: 3, Summary: "old"}
	profiles.active = existing

	profile, err := trainer.TrainUserModel(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, profile)

	// No new version; the old one is untouched
	assert.Empty(t, profiles.versions)
	assert.Same(t, existing, profiles.active)
}

func TestTrainUserModel_CreatesVersion(t *testing.T) {
	completer := &fakeCompleter{response: "  This user engages with infra deep-dives from alice.  "}
	trainer, profiles := newTestTrainer(decidedEvents(20), completer)

	profile, err := trainer.TrainUserModel(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, profile)

	assert.Equal(t, 1, profile.Version)
	assert.Equal(t, models.ModelTypeRecommendation, profile.ModelType)
	assert.Equal(t, "This user engages with infra deep-dives from alice.", profile.Summary)
	assert.Equal(t, 20, profile.SampleCount)
	require.Len(t, profiles.versions, 1)
}

func TestActiveProfile_MissingIsNotError(t *testing.T) {
	trainer, _ := newTestTrainer(nil, &fakeCompleter{})

	profile, err := trainer.ActiveProfile(context.Background(), "user-1", models.ModelTypeRecommendation)
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestTrainUserModel_HardErrorFromStore(t *testing.T) {
	cfg := config.DefaultLearning()
	engine := advantage.NewEngine(&erroringEventRepo{}, cfg, logrus.New())
	trainer := NewTrainer(engine, &fakeProfileRepo{}, &fakeCompleter{}, nil, cfg, logrus.New())

	_, err := trainer.TrainUserModel(context.Background(), "user-1")
	assert.Error(t, err)
}

type erroringEventRepo struct{ fakeEventRepo }

func (e *erroringEventRepo) GetDecidedSince(userID string, since time.Time) ([]models.FeedbackEvent, error) {
	return nil, errors.New("connection refused")
}
