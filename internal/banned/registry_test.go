package banned

import (
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voiceloop/backend/internal/models"
	"gorm.io/gorm"
)

type fakePatternRepo struct {
	patterns   []*models.BannedPattern
	nextID     uint
	detections map[uint]int
}

func (f *fakePatternRepo) Create(pattern *models.BannedPattern) error {
	f.nextID++
	pattern.ID = f.nextID
	f.patterns = append(f.patterns, pattern)
	return nil
}

func (f *fakePatternRepo) Update(pattern *models.BannedPattern) error {
	for i, p := range f.patterns {
		if p.ID == pattern.ID {
			f.patterns[i] = pattern
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakePatternRepo) GetByUser(userID string) ([]models.BannedPattern, error) {
	var result []models.BannedPattern
	for _, p := range f.patterns {
		if p.UserID == userID {
			result = append(result, *p)
		}
	}
	return result, nil
}

func (f *fakePatternRepo) FindByPhrase(userID, phrase string) (*models.BannedPattern, error) {
	for _, p := range f.patterns {
		if p.UserID == userID && strings.EqualFold(p.Phrase, phrase) {
			return p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakePatternRepo) Delete(userID, phrase string) error {
	for i, p := range f.patterns {
		if p.UserID == userID && strings.EqualFold(p.Phrase, phrase) {
			f.patterns = append(f.patterns[:i], f.patterns[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakePatternRepo) IncrementDetection(id uint) error {
	if f.detections == nil {
		f.detections = make(map[uint]int)
	}
	f.detections[id]++
	return nil
}

func newTestRegistry() (*Registry, *fakePatternRepo) {
	repo := &fakePatternRepo{}
	return NewRegistry(repo, nil, logrus.New()), repo
}

func TestRegistry_DetectGlobalPhrase(t *testing.T) {
	registry, _ := newTestRegistry()

	matches := registry.Detect(context.Background(), "user-1", "This is spot on, I completely agree.")

	require.NotEmpty(t, matches)
	assert.Equal(t, "this is spot on", matches[0].Phrase)
	assert.Equal(t, CategoryOpener, matches[0].Category)
	assert.Equal(t, models.SourceGlobal, matches[0].Source)
	assert.Equal(t, 0, matches[0].Start)
}

func TestRegistry_DetectCleanText(t *testing.T) {
	registry, _ := newTestRegistry()

	matches := registry.Detect(context.Background(), "user-1",
		"We migrated the ingestion pipeline to batched writes and cut p99 latency in half.")

	assert.Empty(t, matches)
}

func TestRegistry_DetectUserPattern(t *testing.T) {
	registry, _ := newTestRegistry()
	ctx := context.Background()

	err := registry.AddUserPattern(ctx, "user-1", "happy to connect", models.SourceUserFeedback, 1.0)
	require.NoError(t, err)

	matches := registry.Detect(ctx, "user-1", "Always happy to connect with folks in infra.")

	require.Len(t, matches, 1)
	assert.Equal(t, "happy to connect", matches[0].Phrase)
	assert.Equal(t, CategoryLearned, matches[0].Category)
	assert.Equal(t, models.SourceUserFeedback, matches[0].Source)
}

func TestRegistry_DetectBumpsDetectionCount(t *testing.T) {
	registry, repo := newTestRegistry()
	ctx := context.Background()

	require.NoError(t, registry.AddUserPattern(ctx, "user-1", "happy to connect", models.SourceUserFeedback, 1.0))
	id := repo.patterns[0].ID

	registry.Detect(ctx, "user-1", "Always happy to connect with folks in infra.")
	registry.Detect(ctx, "user-1", "Happy to connect here and happy to connect there.")

	// One bump per scan that matched, regardless of occurrences
	assert.Equal(t, 2, repo.detections[id])

	registry.Detect(ctx, "user-1", "Nothing objectionable in this one.")
	assert.Equal(t, 2, repo.detections[id])
}

func TestRegistry_AddUserPatternIdempotent(t *testing.T) {
	registry, repo := newTestRegistry()
	ctx := context.Background()

	require.NoError(t, registry.AddUserPattern(ctx, "user-1", "game-changer", models.SourceLearnedFromEdit, 0.5))
	require.NoError(t, registry.AddUserPattern(ctx, "user-1", "Game-Changer", models.SourceLearnedFromEdit, 0.7))
	require.NoError(t, registry.AddUserPattern(ctx, "user-1", "game-changer", models.SourceLearnedFromEdit, 0.4))

	require.Len(t, repo.patterns, 1)
	// Confidence only moves upward
	assert.Equal(t, 0.7, repo.patterns[0].Confidence)
}

func TestRegistry_RemoveUserPattern(t *testing.T) {
	registry, repo := newTestRegistry()
	ctx := context.Background()

	require.NoError(t, registry.AddUserPattern(ctx, "user-1", "synergy", models.SourceUserFeedback, 1.0))
	require.Len(t, repo.patterns, 1)

	require.NoError(t, registry.RemoveUserPattern(ctx, "user-1", "synergy"))
	assert.Empty(t, repo.patterns)

	// Removing again is not an error
	assert.NoError(t, registry.RemoveUserPattern(ctx, "user-1", "synergy"))
}

func TestRegistry_DetectStructural(t *testing.T) {
	registry, _ := newTestRegistry()

	matches := registry.Detect(context.Background(), "user-1", "Wow!!! That is quite something.")

	require.NotEmpty(t, matches)
	found := false
	for _, m := range matches {
		if m.Category == CategoryStructural {
			found = true
		}
	}
	assert.True(t, found, "expected a structural match for triple exclamation")
}

func TestRegistry_IsKnownPhrase(t *testing.T) {
	registry, _ := newTestRegistry()
	ctx := context.Background()

	assert.True(t, registry.IsKnownPhrase(ctx, "user-1", "great post"))
	assert.False(t, registry.IsKnownPhrase(ctx, "user-1", "batched ingestion"))

	require.NoError(t, registry.AddUserPattern(ctx, "user-1", "batched ingestion", models.SourceUserFeedback, 1.0))
	assert.True(t, registry.IsKnownPhrase(ctx, "user-1", "batched ingestion"))
}
