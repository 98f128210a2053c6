package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/voiceloop/backend/internal/models"
	"gorm.io/gorm"
)

// FeedbackEventRepositoryImpl implements FeedbackEventRepository
type FeedbackEventRepositoryImpl struct {
	db *gorm.DB
}

func NewFeedbackEventRepository(db *gorm.DB) models.FeedbackEventRepository {
	return &FeedbackEventRepositoryImpl{db: db}
}

func (r *FeedbackEventRepositoryImpl) Create(event *models.FeedbackEvent) error {
	return r.db.Create(event).Error
}

func (r *FeedbackEventRepositoryImpl) GetByEventID(eventID string) (*models.FeedbackEvent, error) {
	var event models.FeedbackEvent
	err := r.db.Where("event_id = ?", eventID).First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *FeedbackEventRepositoryImpl) GetDecidedSince(userID string, since time.Time) ([]models.FeedbackEvent, error) {
	var events []models.FeedbackEvent
	err := r.db.Where("user_id = ? AND action_at >= ? AND decision IN ?",
		userID, since, []string{models.DecisionSelected, models.DecisionSkipped}).
		Order("action_at DESC").
		Find(&events).Error
	return events, err
}

func (r *FeedbackEventRepositoryImpl) GetRecent(userID string, limit int) ([]models.FeedbackEvent, error) {
	var events []models.FeedbackEvent
	err := r.db.Where("user_id = ?", userID).
		Order("action_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *FeedbackEventRepositoryImpl) UpdateOutcome(eventID string, likes, replies int) error {
	return r.db.Model(&models.FeedbackEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"likes":        likes,
			"replies":      replies,
			"outcome_seen": true,
		}).Error
}

func (r *FeedbackEventRepositoryImpl) DistinctUsers(since time.Time) ([]string, error) {
	var users []string
	err := r.db.Model(&models.FeedbackEvent{}).
		Where("action_at >= ?", since).
		Distinct("user_id").
		Pluck("user_id", &users).Error
	return users, err
}

// PreferenceSignalRepositoryImpl implements PreferenceSignalRepository
type PreferenceSignalRepositoryImpl struct {
	db *gorm.DB
}

func NewPreferenceSignalRepository(db *gorm.DB) models.PreferenceSignalRepository {
	return &PreferenceSignalRepositoryImpl{db: db}
}

func (r *PreferenceSignalRepositoryImpl) Get(userID, signalType, signalValue string) (*models.PreferenceSignal, error) {
	var signal models.PreferenceSignal
	err := r.db.Where("user_id = ? AND signal_type = ? AND signal_value = ?",
		userID, signalType, signalValue).
		First(&signal).Error
	if err != nil {
		return nil, err
	}
	return &signal, nil
}

func (r *PreferenceSignalRepositoryImpl) GetByUser(userID string) ([]models.PreferenceSignal, error) {
	var signals []models.PreferenceSignal
	err := r.db.Where("user_id = ?", userID).
		Order("preference_score DESC").
		Find(&signals).Error
	return signals, err
}

func (r *PreferenceSignalRepositoryImpl) Save(signal *models.PreferenceSignal) error {
	signal.Recompute()
	return r.db.Save(signal).Error
}

// ProfileRepositoryImpl implements ProfileRepository
type ProfileRepositoryImpl struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) models.ProfileRepository {
	return &ProfileRepositoryImpl{db: db}
}

func (r *ProfileRepositoryImpl) GetActive(userID, modelType string) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.Where("user_id = ? AND model_type = ? AND active = ?",
		userID, modelType, true).
		First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// CreateVersion deactivates the current active profile and inserts the new
// one with the next version number, atomically. The prior version row is
// never deleted.
func (r *ProfileRepositoryImpl) CreateVersion(profile *models.Profile) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var maxVersion int
		err := tx.Model(&models.Profile{}).
			Where("user_id = ? AND model_type = ?", profile.UserID, profile.ModelType).
			Select("COALESCE(MAX(version), 0)").
			Scan(&maxVersion).Error
		if err != nil {
			return err
		}

		if err := tx.Model(&models.Profile{}).
			Where("user_id = ? AND model_type = ? AND active = ?",
				profile.UserID, profile.ModelType, true).
			Update("active", false).Error; err != nil {
			return err
		}

		profile.Version = maxVersion + 1
		profile.Active = true
		return tx.Create(profile).Error
	})
}

// LearningRepositoryImpl implements LearningRepository
type LearningRepositoryImpl struct {
	db *gorm.DB
}

func NewLearningRepository(db *gorm.DB) models.LearningRepository {
	return &LearningRepositoryImpl{db: db}
}

func (r *LearningRepositoryImpl) Create(learning *models.Learning) error {
	return r.db.Create(learning).Error
}

func (r *LearningRepositoryImpl) GetByUser(userID string) ([]models.Learning, error) {
	var learnings []models.Learning
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&learnings).Error
	return learnings, err
}

func (r *LearningRepositoryImpl) GetByCategory(userID, category string) ([]models.Learning, error) {
	var learnings []models.Learning
	err := r.db.Where("user_id = ? AND category = ?", userID, category).
		Order("created_at DESC").
		Find(&learnings).Error
	return learnings, err
}

func (r *LearningRepositoryImpl) Save(learning *models.Learning) error {
	return r.db.Save(learning).Error
}

func (r *LearningRepositoryImpl) PruneStale(userID string, olderThan time.Time, maxConfidence float64) (int64, error) {
	result := r.db.Where("user_id = ? AND created_at < ? AND confidence < ?",
		userID, olderThan, maxConfidence).
		Delete(&models.Learning{})
	return result.RowsAffected, result.Error
}

// BannedPatternRepositoryImpl implements BannedPatternRepository
type BannedPatternRepositoryImpl struct {
	db *gorm.DB
}

func NewBannedPatternRepository(db *gorm.DB) models.BannedPatternRepository {
	return &BannedPatternRepositoryImpl{db: db}
}

func (r *BannedPatternRepositoryImpl) Create(pattern *models.BannedPattern) error {
	return r.db.Create(pattern).Error
}

func (r *BannedPatternRepositoryImpl) Update(pattern *models.BannedPattern) error {
	return r.db.Save(pattern).Error
}

func (r *BannedPatternRepositoryImpl) GetByUser(userID string) ([]models.BannedPattern, error) {
	var patterns []models.BannedPattern
	err := r.db.Where("user_id = ?", userID).
		Order("created_at").
		Find(&patterns).Error
	return patterns, err
}

func (r *BannedPatternRepositoryImpl) FindByPhrase(userID, phrase string) (*models.BannedPattern, error) {
	var pattern models.BannedPattern
	err := r.db.Where("user_id = ? AND LOWER(phrase) = ?",
		userID, strings.ToLower(strings.TrimSpace(phrase))).
		First(&pattern).Error
	if err != nil {
		return nil, err
	}
	return &pattern, nil
}

func (r *BannedPatternRepositoryImpl) Delete(userID, phrase string) error {
	return r.db.Where("user_id = ? AND LOWER(phrase) = ?",
		userID, strings.ToLower(strings.TrimSpace(phrase))).
		Delete(&models.BannedPattern{}).Error
}

func (r *BannedPatternRepositoryImpl) IncrementDetection(id uint) error {
	return r.db.Model(&models.BannedPattern{}).
		Where("id = ?", id).
		Update("detection_count", gorm.Expr("detection_count + 1")).Error
}

// NegativeExampleRepositoryImpl implements NegativeExampleRepository
type NegativeExampleRepositoryImpl struct {
	db *gorm.DB
}

func NewNegativeExampleRepository(db *gorm.DB) models.NegativeExampleRepository {
	return &NegativeExampleRepositoryImpl{db: db}
}

func (r *NegativeExampleRepositoryImpl) Create(example *models.NegativeExample) error {
	return r.db.Create(example).Error
}

func (r *NegativeExampleRepositoryImpl) GetRecent(userID string, limit int) ([]models.NegativeExample, error) {
	var examples []models.NegativeExample
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&examples).Error
	return examples, err
}

// StyleSnapshotRepositoryImpl implements StyleSnapshotRepository
type StyleSnapshotRepositoryImpl struct {
	db *gorm.DB
}

func NewStyleSnapshotRepository(db *gorm.DB) models.StyleSnapshotRepository {
	return &StyleSnapshotRepositoryImpl{db: db}
}

func (r *StyleSnapshotRepositoryImpl) Create(snapshot *models.StyleSnapshot) error {
	return r.db.Create(snapshot).Error
}

func (r *StyleSnapshotRepositoryImpl) Latest(userID string) (*models.StyleSnapshot, error) {
	var snapshot models.StyleSnapshot
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&snapshot).Error
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (r *StyleSnapshotRepositoryImpl) LatestBefore(userID string, cutoff time.Time) (*models.StyleSnapshot, error) {
	var snapshot models.StyleSnapshot
	err := r.db.Where("user_id = ? AND created_at < ?", userID, cutoff).
		Order("created_at DESC").
		First(&snapshot).Error
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (r *StyleSnapshotRepositoryImpl) GetBySnapshotID(userID, snapshotID string) (*models.StyleSnapshot, error) {
	var snapshot models.StyleSnapshot
	err := r.db.Where("user_id = ? AND snapshot_id = ?", userID, snapshotID).
		First(&snapshot).Error
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// GetByUser returns snapshots newest first.
func (r *StyleSnapshotRepositoryImpl) GetByUser(userID string, limit int) ([]models.StyleSnapshot, error) {
	var snapshots []models.StyleSnapshot
	query := r.db.Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&snapshots).Error
	return snapshots, err
}

// SystemHealthRepositoryImpl implements SystemHealthRepository
type SystemHealthRepositoryImpl struct {
	db *gorm.DB
}

func NewSystemHealthRepository(db *gorm.DB) models.SystemHealthRepository {
	return &SystemHealthRepositoryImpl{db: db}
}

func (r *SystemHealthRepositoryImpl) UpdateServiceHealth(serviceName, status string, responseTime int, errorMsg string) error {
	health := models.SystemHealth{
		ServiceName:    serviceName,
		Status:         status,
		ResponseTimeMs: responseTime,
		ErrorMessage:   errorMsg,
		CheckedAt:      time.Now(),
	}
	return r.db.Create(&health).Error
}

func (r *SystemHealthRepositoryImpl) GetServiceHealth(serviceName string) (*models.SystemHealth, error) {
	var health models.SystemHealth
	err := r.db.Where("service_name = ?", serviceName).
		Order("checked_at DESC").
		First(&health).Error
	if err != nil {
		return nil, err
	}
	return &health, nil
}

func (r *SystemHealthRepositoryImpl) GetAllServicesHealth() ([]models.SystemHealth, error) {
	var health []models.SystemHealth
	err := r.db.Raw(`
		SELECT * FROM system_health sh
		WHERE sh.checked_at = (
			SELECT MAX(checked_at) FROM system_health
			WHERE service_name = sh.service_name
		)
		ORDER BY sh.service_name
	`).Scan(&health).Error
	return health, err
}

// RepositoryManager bundles all repositories behind one handle.
type RepositoryManager struct {
	FeedbackEvents   models.FeedbackEventRepository
	Signals          models.PreferenceSignalRepository
	Profiles         models.ProfileRepository
	Learnings        models.LearningRepository
	BannedPatterns   models.BannedPatternRepository
	NegativeExamples models.NegativeExampleRepository
	Snapshots        models.StyleSnapshotRepository
	SystemHealth     models.SystemHealthRepository
}

func NewRepositoryManager(db *gorm.DB) *RepositoryManager {
	if db == nil {
		panic(fmt.Errorf("repository manager requires a database handle"))
	}
	return &RepositoryManager{
		FeedbackEvents:   NewFeedbackEventRepository(db),
		Signals:          NewPreferenceSignalRepository(db),
		Profiles:         NewProfileRepository(db),
		Learnings:        NewLearningRepository(db),
		BannedPatterns:   NewBannedPatternRepository(db),
		NegativeExamples: NewNegativeExampleRepository(db),
		Snapshots:        NewStyleSnapshotRepository(db),
		SystemHealth:     NewSystemHealthRepository(db),
	}
}
