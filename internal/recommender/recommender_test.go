package recommender

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voiceloop/backend/internal/models"
	"github.com/voiceloop/backend/internal/oracle"
	"gorm.io/gorm"
)

type fakeEventRepo struct {
	events []models.FeedbackEvent
	err    error
}

func (f *fakeEventRepo) Create(event *models.FeedbackEvent) error { return nil }

func (f *fakeEventRepo) GetByEventID(id string) (*models.FeedbackEvent, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeEventRepo) GetDecidedSince(userID string, since time.Time) ([]models.FeedbackEvent, error) {
	return f.events, f.err
}

func (f *fakeEventRepo) GetRecent(userID string, limit int) ([]models.FeedbackEvent, error) {
	return f.events, f.err
}

func (f *fakeEventRepo) UpdateOutcome(id string, likes, replies int) error { return nil }

func (f *fakeEventRepo) DistinctUsers(since time.Time) ([]string, error) { return nil, nil }

type fakeNegativeRepo struct {
	examples []models.NegativeExample
}

func (f *fakeNegativeRepo) Create(example *models.NegativeExample) error { return nil }

func (f *fakeNegativeRepo) GetRecent(userID string, limit int) ([]models.NegativeExample, error) {
	return f.examples, nil
}

type fakeCompleter struct {
	response string
	err      error
}

func (f *fakeCompleter) Complete(ctx context.Context, req oracle.CompletionRequest) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func testCandidates() []models.Candidate {
	return []models.Candidate{
		{ID: "a", Author: "alice", Text: "deep dive on postgres vacuum tuning", Engagement: 80, AgeHours: 2},
		{ID: "b", Author: "bob", Text: "10 tips to crush your morning routine", Engagement: 10, AgeHours: 60},
		{ID: "c", Author: "carol", Text: "incident review: the dns outage", Engagement: 50, AgeHours: 10},
	}
}

func newTestRecommender(completer oracle.Completer) *Recommender {
	return NewRecommender(&fakeEventRepo{}, &fakeNegativeRepo{}, nil, completer, logrus.New())
}

func TestRank_EmptyCandidates(t *testing.T) {
	r := newTestRecommender(&fakeCompleter{})

	results, fallback, err := r.Rank(context.Background(), "user-1", nil, 10)
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.False(t, fallback)
}

func TestRank_OracleDownUsesFallback(t *testing.T) {
	r := newTestRecommender(&fakeCompleter{err: oracle.ErrUnavailable})

	results, fallback, err := r.Rank(context.Background(), "user-1", testCandidates(), 10)
	require.NoError(t, err)
	assert.True(t, fallback)
	require.Len(t, results, 3)

	// Heuristic favors fresh high-engagement content
	assert.Equal(t, "a", results[0].Candidate.ID)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestRank_MalformedOracleUsesFallback(t *testing.T) {
	r := newTestRecommender(&fakeCompleter{response: "I think candidate a is pretty good overall"})

	results, fallback, err := r.Rank(context.Background(), "user-1", testCandidates(), 10)
	require.NoError(t, err)
	assert.True(t, fallback)
	assert.Len(t, results, 3)
}

func TestRank_OracleRankings(t *testing.T) {
	response := `Here you go:
[{"index": 2, "score": 0.9, "reason": "matches incident review interest"},
 {"index": 0, "score": 0.7, "reason": "database depth"},
 {"index": 1, "score": 0.1, "reason": "engagement bait"},
 {"index": 99, "score": 0.8, "reason": "hallucinated"}]`
	r := newTestRecommender(&fakeCompleter{response: response})

	results, fallback, err := r.Rank(context.Background(), "user-1", testCandidates(), 10)
	require.NoError(t, err)
	assert.False(t, fallback)

	// Low scores and invalid indexes are dropped, rest sorted descending
	require.Len(t, results, 2)
	assert.Equal(t, "c", results[0].Candidate.ID)
	assert.Equal(t, 0.9, results[0].Score)
	assert.Equal(t, "a", results[1].Candidate.ID)
}

func TestRank_LimitApplied(t *testing.T) {
	r := newTestRecommender(&fakeCompleter{err: oracle.ErrUnavailable})

	results, _, err := r.Rank(context.Background(), "user-1", testCandidates(), 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestRank_StoreFailureIsHard(t *testing.T) {
	r := NewRecommender(&fakeEventRepo{err: gorm.ErrInvalidDB}, &fakeNegativeRepo{}, nil, &fakeCompleter{}, logrus.New())

	_, _, err := r.Rank(context.Background(), "user-1", testCandidates(), 10)
	assert.Error(t, err)
}

func TestFallbackRank_Deterministic(t *testing.T) {
	results := FallbackRank(testCandidates(), 0)
	require.Len(t, results, 3)

	// engagement 80 clamped to 0.8, recency (48-2)/48
	assert.InDelta(t, 0.6*0.8+0.4*(1-2.0/48.0), results[0].Score, 1e-9)

	// Stale content keeps only its engagement component
	for _, result := range results {
		if result.Candidate.ID == "b" {
			assert.InDelta(t, 0.6*0.1, result.Score, 1e-9)
		}
	}
}
