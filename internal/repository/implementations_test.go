package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voiceloop/backend/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A second connection would see an empty in-memory database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.FeedbackEvent{},
		&models.PreferenceSignal{},
		&models.Profile{},
		&models.Learning{},
		&models.BannedPattern{},
		&models.NegativeExample{},
		&models.StyleSnapshot{},
		&models.SystemHealth{},
	))
	return db
}

func seedEvent(t *testing.T, repo models.FeedbackEventRepository, eventID, userID, decision string, actionAt time.Time) {
	t.Helper()
	err := repo.Create(&models.FeedbackEvent{
		EventID:        eventID,
		UserID:         userID,
		CandidateID:    "cand-" + eventID,
		Author:         "alice",
		PredictedScore: 0.5,
		Decision:       decision,
		Reasons:        models.StringArray{"relevant_topic", "followed_author"},
		ActionAt:       actionAt,
	})
	require.NoError(t, err)
}

func TestFeedbackEventRepository_RoundTrip(t *testing.T) {
	repo := NewFeedbackEventRepository(newTestDB(t))
	seedEvent(t, repo, "evt-1", "user-1", models.DecisionSelected, time.Now())

	event, err := repo.GetByEventID("evt-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", event.UserID)
	assert.Equal(t, models.StringArray{"relevant_topic", "followed_author"}, event.Reasons)
}

func TestFeedbackEventRepository_CreateRejectsInvalid(t *testing.T) {
	repo := NewFeedbackEventRepository(newTestDB(t))

	err := repo.Create(&models.FeedbackEvent{
		EventID:     "evt-bad",
		UserID:      "user-1",
		CandidateID: "cand-1",
		Decision:    "maybe",
	})
	assert.Error(t, err)
}

func TestFeedbackEventRepository_GetDecidedSince(t *testing.T) {
	repo := NewFeedbackEventRepository(newTestDB(t))
	now := time.Now()

	seedEvent(t, repo, "evt-1", "user-1", models.DecisionSelected, now.AddDate(0, 0, -1))
	seedEvent(t, repo, "evt-2", "user-1", models.DecisionSkipped, now.AddDate(0, 0, -3))
	seedEvent(t, repo, "evt-3", "user-1", models.DecisionPending, now)
	seedEvent(t, repo, "evt-4", "user-1", models.DecisionSelected, now.AddDate(0, 0, -40))
	seedEvent(t, repo, "evt-5", "user-2", models.DecisionSelected, now)

	events, err := repo.GetDecidedSince("user-1", now.AddDate(0, 0, -30))
	require.NoError(t, err)

	// Pending, out-of-window and other-user events are all excluded
	require.Len(t, events, 2)
	assert.Equal(t, "evt-1", events[0].EventID)
	assert.Equal(t, "evt-2", events[1].EventID)
}

func TestFeedbackEventRepository_UpdateOutcome(t *testing.T) {
	repo := NewFeedbackEventRepository(newTestDB(t))
	seedEvent(t, repo, "evt-1", "user-1", models.DecisionSelected, time.Now())

	require.NoError(t, repo.UpdateOutcome("evt-1", 12, 3))

	event, err := repo.GetByEventID("evt-1")
	require.NoError(t, err)
	assert.Equal(t, 12, event.Likes)
	assert.Equal(t, 3, event.Replies)
	assert.True(t, event.OutcomeSeen)
}

func TestFeedbackEventRepository_DistinctUsers(t *testing.T) {
	repo := NewFeedbackEventRepository(newTestDB(t))
	now := time.Now()

	seedEvent(t, repo, "evt-1", "user-1", models.DecisionSelected, now)
	seedEvent(t, repo, "evt-2", "user-1", models.DecisionSkipped, now)
	seedEvent(t, repo, "evt-3", "user-2", models.DecisionSelected, now)
	seedEvent(t, repo, "evt-4", "user-3", models.DecisionSelected, now.AddDate(0, 0, -60))

	users, err := repo.DistinctUsers(now.AddDate(0, 0, -30))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"user-1", "user-2"}, users)
}

func TestProfileRepository_CreateVersion(t *testing.T) {
	db := newTestDB(t)
	repo := NewProfileRepository(db)

	first := &models.Profile{
		UserID:    "user-1",
		ModelType: models.ModelTypeRecommendation,
		Summary:   "first pass",
	}
	require.NoError(t, repo.CreateVersion(first))
	assert.Equal(t, 1, first.Version)

	second := &models.Profile{
		UserID:    "user-1",
		ModelType: models.ModelTypeRecommendation,
		Summary:   "second pass",
	}
	require.NoError(t, repo.CreateVersion(second))
	assert.Equal(t, 2, second.Version)

	active, err := repo.GetActive("user-1", models.ModelTypeRecommendation)
	require.NoError(t, err)
	assert.Equal(t, "second pass", active.Summary)

	// The first version survives, deactivated
	var count int64
	require.NoError(t, db.Model(&models.Profile{}).
		Where("user_id = ? AND active = ?", "user-1", false).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestProfileRepository_VersionsIsolatedByModelType(t *testing.T) {
	repo := NewProfileRepository(newTestDB(t))

	require.NoError(t, repo.CreateVersion(&models.Profile{
		UserID: "user-1", ModelType: models.ModelTypeRecommendation, Summary: "recs",
	}))
	style := &models.Profile{
		UserID: "user-1", ModelType: models.ModelTypeStyle, Summary: "voice",
	}
	require.NoError(t, repo.CreateVersion(style))
	assert.Equal(t, 1, style.Version)

	active, err := repo.GetActive("user-1", models.ModelTypeRecommendation)
	require.NoError(t, err)
	assert.True(t, active.Active)
}

func TestPreferenceSignalRepository_SaveRecomputes(t *testing.T) {
	repo := NewPreferenceSignalRepository(newTestDB(t))

	signal := &models.PreferenceSignal{
		UserID:        "user-1",
		SignalType:    "author",
		SignalValue:   "alice",
		PositiveCount: 3,
		NegativeCount: 1,
	}
	require.NoError(t, repo.Save(signal))

	stored, err := repo.Get("user-1", "author", "alice")
	require.NoError(t, err)
	assert.InDelta(t, 0.75, stored.SuccessRate, 1e-9)
	assert.InDelta(t, 0.5, stored.PreferenceScore, 1e-9)
}

func TestPreferenceSignalRepository_GetByUserOrdering(t *testing.T) {
	repo := NewPreferenceSignalRepository(newTestDB(t))

	require.NoError(t, repo.Save(&models.PreferenceSignal{
		UserID: "user-1", SignalType: "author", SignalValue: "bob",
		PositiveCount: 1, NegativeCount: 4,
	}))
	require.NoError(t, repo.Save(&models.PreferenceSignal{
		UserID: "user-1", SignalType: "author", SignalValue: "alice",
		PositiveCount: 5, NegativeCount: 0,
	}))

	signals, err := repo.GetByUser("user-1")
	require.NoError(t, err)
	require.Len(t, signals, 2)
	assert.Equal(t, "alice", signals[0].SignalValue)
}

func TestLearningRepository_PruneStale(t *testing.T) {
	db := newTestDB(t)
	repo := NewLearningRepository(db)

	stale := &models.Learning{
		UserID:     "user-1",
		Category:   models.CategoryPhraseToAvoid,
		Insight:    "old weak insight",
		Confidence: 0.3,
	}
	require.NoError(t, repo.Create(stale))
	require.NoError(t, db.Model(&models.Learning{}).
		Where("id = ?", stale.ID).
		Update("created_at", time.Now().AddDate(0, 0, -120)).Error)

	require.NoError(t, repo.Create(&models.Learning{
		UserID:     "user-1",
		Category:   models.CategoryPhraseToAvoid,
		Insight:    "fresh insight",
		Confidence: 0.3,
	}))
	oldButStrong := &models.Learning{
		UserID:     "user-1",
		Category:   models.CategoryToneAdjustment,
		Insight:    "old but confirmed",
		Confidence: 0.9,
	}
	require.NoError(t, repo.Create(oldButStrong))
	require.NoError(t, db.Model(&models.Learning{}).
		Where("id = ?", oldButStrong.ID).
		Update("created_at", time.Now().AddDate(0, 0, -120)).Error)

	pruned, err := repo.PruneStale("user-1", time.Now().AddDate(0, 0, -90), 0.5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	remaining, err := repo.GetByUser("user-1")
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestBannedPatternRepository_FindByPhraseCaseInsensitive(t *testing.T) {
	repo := NewBannedPatternRepository(newTestDB(t))

	require.NoError(t, repo.Create(&models.BannedPattern{
		UserID: "user-1",
		Phrase: "Thrilled To Announce",
		Source: models.SourceUserFeedback,
	}))

	pattern, err := repo.FindByPhrase("user-1", "  thrilled to announce ")
	require.NoError(t, err)
	assert.Equal(t, "Thrilled To Announce", pattern.Phrase)

	_, err = repo.FindByPhrase("user-2", "thrilled to announce")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestBannedPatternRepository_DeleteAndIncrement(t *testing.T) {
	repo := NewBannedPatternRepository(newTestDB(t))

	pattern := &models.BannedPattern{
		UserID: "user-1",
		Phrase: "game-changer",
		Source: models.SourceUserFeedback,
	}
	require.NoError(t, repo.Create(pattern))

	require.NoError(t, repo.IncrementDetection(pattern.ID))
	require.NoError(t, repo.IncrementDetection(pattern.ID))

	stored, err := repo.FindByPhrase("user-1", "game-changer")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.DetectionCount)

	require.NoError(t, repo.Delete("user-1", "GAME-CHANGER"))
	_, err = repo.FindByPhrase("user-1", "game-changer")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestStyleSnapshotRepository_LatestAndLookup(t *testing.T) {
	db := newTestDB(t)
	repo := NewStyleSnapshotRepository(db)

	payload, err := models.EncodeStyleProfile(&models.StyleProfile{Tone: "technical"})
	require.NoError(t, err)

	older := &models.StyleSnapshot{
		UserID: "user-1", SnapshotID: "snap-1", Payload: payload, Trigger: models.TriggerInitial,
	}
	older.CreatedAt = time.Now().AddDate(0, 0, -20)
	require.NoError(t, repo.Create(older))

	newer := &models.StyleSnapshot{
		UserID: "user-1", SnapshotID: "snap-2", Payload: payload, Trigger: models.TriggerScheduled,
	}
	newer.CreatedAt = time.Now()
	require.NoError(t, repo.Create(newer))

	latest, err := repo.Latest("user-1")
	require.NoError(t, err)
	assert.Equal(t, "snap-2", latest.SnapshotID)

	before, err := repo.LatestBefore("user-1", time.Now().AddDate(0, 0, -10))
	require.NoError(t, err)
	assert.Equal(t, "snap-1", before.SnapshotID)

	// Lookups are scoped to the owning user
	_, err = repo.GetBySnapshotID("user-2", "snap-1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	snapshots, err := repo.GetByUser("user-1", 1)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, "snap-2", snapshots[0].SnapshotID)
}

func TestSystemHealthRepository_LatestPerService(t *testing.T) {
	repo := NewSystemHealthRepository(newTestDB(t))

	require.NoError(t, repo.UpdateServiceHealth("postgresql", "unhealthy", 0, "connection refused"))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, repo.UpdateServiceHealth("postgresql", "healthy", 12, ""))
	require.NoError(t, repo.UpdateServiceHealth("redis", "healthy", 2, ""))

	health, err := repo.GetServiceHealth("postgresql")
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)

	all, err := repo.GetAllServicesHealth()
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, entry := range all {
		assert.Equal(t, "healthy", entry.Status)
	}
}
