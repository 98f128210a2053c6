package models

// GORM models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// StringArray for PostgreSQL array support
type StringArray []string

func (StringArray) GormDataType() string { return "text" }

// GormDBDataType keeps the native array type on PostgreSQL while letting
// sqlite-backed tests store the serialized form as plain text.
func (StringArray) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "{}", nil
	}
	return fmt.Sprintf("{%s}", strings.Join(s, ",")), nil
}

func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = StringArray{}
		return nil
	}

	switch v := value.(type) {
	case string:
		if v == "{}" {
			*s = StringArray{}
			return nil
		}
		v = strings.Trim(v, "{}")
		if v == "" {
			*s = StringArray{}
			return nil
		}
		*s = StringArray(strings.Split(v, ","))
	case []byte:
		return s.Scan(string(v))
	default:
		return fmt.Errorf("cannot scan %T into StringArray", value)
	}
	return nil
}

// Base model with common fields
type BaseModel struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Decision values for a feedback event
const (
	DecisionSelected = "selected"
	DecisionSkipped  = "skipped"
	DecisionPending  = "pending"
)

// Learning categories
const (
	CategoryPhraseToAvoid    = "phrase_to_avoid"
	CategoryPhraseToUse      = "phrase_to_use"
	CategoryToneAdjustment   = "tone_adjustment"
	CategoryLengthPreference = "length_preference"
	CategoryStyleMismatch    = "style_mismatch"
	CategoryAuthenticity     = "authenticity"
)

// Banned pattern sources
const (
	SourceGlobal          = "global"
	SourceUserFeedback    = "user_feedback"
	SourceLearnedFromEdit = "learned_from_edit"
	SourceConsolidated    = "consolidated"
)

// Snapshot triggers
const (
	TriggerInitial       = "initial"
	TriggerScheduled     = "scheduled"
	TriggerDriftDetected = "drift_detected"
	TriggerRollback      = "rollback"
	TriggerManual        = "manual"
)

// Profile model types
const (
	ModelTypeRecommendation = "recommendation"
	ModelTypeStyle          = "style"
)

// FeedbackEvent records one candidate shown to the user and their decision on
// it. The predicted score is frozen at show time; only the observed outcome
// fields mutate afterwards.
type FeedbackEvent struct {
	BaseModel
	EventID        string      `json:"event_id" gorm:"unique;not null"`
	UserID         string      `json:"user_id" gorm:"index;not null"`
	CandidateID    string      `json:"candidate_id" gorm:"not null"`
	Author         string      `json:"author"`
	CandidateText  string      `json:"candidate_text"`
	PredictedScore float64     `json:"predicted_score" gorm:"not null"`
	Decision       string      `json:"decision" gorm:"not null;check:decision IN ('selected','skipped','pending')"`
	Reasons        StringArray `json:"reasons"`
	Likes          int         `json:"likes" gorm:"default:0"`
	Replies        int         `json:"replies" gorm:"default:0"`
	OutcomeSeen    bool        `json:"outcome_seen" gorm:"default:false"`
	ActionAt       time.Time   `json:"action_at" gorm:"index"`
}

// PreferenceSignal aggregates like/dislike strength for one (type, value)
// pair, e.g. (author, "alice"). Scores are always recomputed from counts.
type PreferenceSignal struct {
	BaseModel
	UserID          string  `json:"user_id" gorm:"index:idx_signal_key,unique;not null"`
	SignalType      string  `json:"signal_type" gorm:"index:idx_signal_key,unique;not null"`
	SignalValue     string  `json:"signal_value" gorm:"index:idx_signal_key,unique;not null"`
	PreferenceScore float64 `json:"preference_score"`
	Confidence      float64 `json:"confidence"`
	PositiveCount   int     `json:"positive_count" gorm:"default:0"`
	NegativeCount   int     `json:"negative_count" gorm:"default:0"`
	SuccessRate     float64 `json:"success_rate"`
}

// Recompute derives score, confidence and success rate from the counts.
// Callers must never set those fields directly.
func (ps *PreferenceSignal) Recompute() {
	total := ps.PositiveCount + ps.NegativeCount
	if total == 0 {
		ps.PreferenceScore = 0
		ps.Confidence = 0
		ps.SuccessRate = 0
		return
	}
	ps.SuccessRate = float64(ps.PositiveCount) / float64(total)
	ps.PreferenceScore = 2*ps.SuccessRate - 1
	ps.Confidence = float64(total) / float64(total+5)
}

// Profile is the versioned natural-language summary of a user's preferences
// or voice. Exactly one profile is active per (user, model type).
type Profile struct {
	BaseModel
	UserID       string  `json:"user_id" gorm:"index:idx_profile_user;not null"`
	ModelType    string  `json:"model_type" gorm:"index:idx_profile_user;not null;check:model_type IN ('recommendation','style')"`
	Version      int     `json:"version" gorm:"not null"`
	Summary      string  `json:"summary" gorm:"type:text;not null"`
	SampleCount  int     `json:"sample_count" gorm:"default:0"`
	AvgAdvantage float64 `json:"avg_advantage"`
	Active       bool    `json:"active" gorm:"index;default:true"`
}

// Learning is one atomic extracted insight.
type Learning struct {
	BaseModel
	UserID     string      `json:"user_id" gorm:"index;not null"`
	Category   string      `json:"category" gorm:"not null;check:category IN ('phrase_to_avoid','phrase_to_use','tone_adjustment','length_preference','style_mismatch','authenticity')"`
	Insight    string      `json:"insight" gorm:"type:text;not null"`
	Evidence   StringArray `json:"evidence"`
	Confidence float64     `json:"confidence" gorm:"not null"`
	Count      int         `json:"count" gorm:"default:1"`
}

// BannedPattern is a user-specific phrase the generation pipeline must avoid.
// The global set never touches this table; it is compiled into the binary.
type BannedPattern struct {
	BaseModel
	UserID         string  `json:"user_id" gorm:"index;not null"`
	Phrase         string  `json:"phrase" gorm:"not null"`
	Category       string  `json:"category"`
	Source         string  `json:"source" gorm:"not null;check:source IN ('global','user_feedback','learned_from_edit','consolidated')"`
	Confidence     float64 `json:"confidence"`
	DetectionCount int     `json:"detection_count" gorm:"default:0"`
}

// NegativeExample records a rejected piece of content for the recommender's
// "avoid" summary.
type NegativeExample struct {
	BaseModel
	UserID      string `json:"user_id" gorm:"index;not null"`
	CandidateID string `json:"candidate_id"`
	Author      string `json:"author"`
	Text        string `json:"text" gorm:"type:text"`
	Reason      string `json:"reason"`
}

// StyleSnapshot is an immutable versioned copy of a style profile. Rollback
// appends a new snapshot; history is never mutated.
type StyleSnapshot struct {
	BaseModel
	SnapshotID string  `json:"snapshot_id" gorm:"unique;not null"`
	UserID     string  `json:"user_id" gorm:"index;not null"`
	Payload    string  `json:"payload" gorm:"type:text;not null"`
	PostCount  int     `json:"post_count" gorm:"default:0"`
	Trigger    string  `json:"trigger" gorm:"column:trigger_kind;not null;check:trigger_kind IN ('initial','scheduled','drift_detected','rollback','manual')"`
	DriftScore float64 `json:"drift_score"`
}

// StyleProfile is the snapshot payload: the measurable dimensions of a user's
// writing voice.
type StyleProfile struct {
	Tone              string             `json:"tone"`
	ToneScores        map[string]float64 `json:"tone_scores,omitempty"`
	DomainVocabulary  []string           `json:"domain_vocabulary"`
	AvgPostLength     float64            `json:"avg_post_length"`
	AvgCommentLength  float64            `json:"avg_comment_length"`
	AvgSentenceLength float64            `json:"avg_sentence_length"`
	PunctuationFreq   map[string]float64 `json:"punctuation_freq,omitempty"`
}

// TypicalLength returns the profile's expected length for a content type.
func (sp *StyleProfile) TypicalLength(contentType string) float64 {
	if contentType == "comment" {
		return sp.AvgCommentLength
	}
	return sp.AvgPostLength
}

// DecodePayload parses the snapshot's stored style profile.
func (ss *StyleSnapshot) DecodePayload() (*StyleProfile, error) {
	var profile StyleProfile
	if err := json.Unmarshal([]byte(ss.Payload), &profile); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot payload: %w", err)
	}
	return &profile, nil
}

// EncodeStyleProfile serializes a style profile for snapshot storage.
func EncodeStyleProfile(profile *StyleProfile) (string, error) {
	data, err := json.Marshal(profile)
	if err != nil {
		return "", fmt.Errorf("failed to encode style profile: %w", err)
	}
	return string(data), nil
}

// SystemHealth represents service health monitoring
type SystemHealth struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	ServiceName    string    `json:"service_name" gorm:"not null"`
	Status         string    `json:"status" gorm:"not null;check:status IN ('healthy','degraded','unhealthy')"`
	ResponseTimeMs int       `json:"response_time_ms"`
	ErrorMessage   string    `json:"error_message"`
	CheckedAt      time.Time `json:"checked_at"`
}

// Repository interfaces

type FeedbackEventRepository interface {
	Create(event *FeedbackEvent) error
	GetByEventID(eventID string) (*FeedbackEvent, error)
	GetDecidedSince(userID string, since time.Time) ([]FeedbackEvent, error)
	GetRecent(userID string, limit int) ([]FeedbackEvent, error)
	UpdateOutcome(eventID string, likes, replies int) error
	DistinctUsers(since time.Time) ([]string, error)
}

type PreferenceSignalRepository interface {
	Get(userID, signalType, signalValue string) (*PreferenceSignal, error)
	GetByUser(userID string) ([]PreferenceSignal, error)
	Save(signal *PreferenceSignal) error
}

type ProfileRepository interface {
	GetActive(userID, modelType string) (*Profile, error)
	CreateVersion(profile *Profile) error
}

type LearningRepository interface {
	Create(learning *Learning) error
	GetByUser(userID string) ([]Learning, error)
	GetByCategory(userID, category string) ([]Learning, error)
	Save(learning *Learning) error
	PruneStale(userID string, olderThan time.Time, maxConfidence float64) (int64, error)
}

type BannedPatternRepository interface {
	Create(pattern *BannedPattern) error
	Update(pattern *BannedPattern) error
	GetByUser(userID string) ([]BannedPattern, error)
	FindByPhrase(userID, phrase string) (*BannedPattern, error)
	Delete(userID, phrase string) error
	IncrementDetection(id uint) error
}

type NegativeExampleRepository interface {
	Create(example *NegativeExample) error
	GetRecent(userID string, limit int) ([]NegativeExample, error)
}

type StyleSnapshotRepository interface {
	Create(snapshot *StyleSnapshot) error
	Latest(userID string) (*StyleSnapshot, error)
	LatestBefore(userID string, cutoff time.Time) (*StyleSnapshot, error)
	GetBySnapshotID(userID, snapshotID string) (*StyleSnapshot, error)
	GetByUser(userID string, limit int) ([]StyleSnapshot, error)
}

type SystemHealthRepository interface {
	UpdateServiceHealth(serviceName, status string, responseTime int, errorMsg string) error
	GetServiceHealth(serviceName string) (*SystemHealth, error)
	GetAllServicesHealth() ([]SystemHealth, error)
}

// TableName methods for custom table names
func (FeedbackEvent) TableName() string    { return "feedback_events" }
func (PreferenceSignal) TableName() string { return "preference_signals" }
func (Profile) TableName() string          { return "profiles" }
func (Learning) TableName() string         { return "learnings" }
func (BannedPattern) TableName() string    { return "banned_patterns" }
func (NegativeExample) TableName() string  { return "negative_examples" }
func (StyleSnapshot) TableName() string    { return "style_snapshots" }
func (SystemHealth) TableName() string     { return "system_health" }

// Model validation methods

func (fe *FeedbackEvent) Validate() error {
	if fe.UserID == "" {
		return fmt.Errorf("user ID is required")
	}
	if fe.CandidateID == "" {
		return fmt.Errorf("candidate ID is required")
	}
	if fe.PredictedScore < 0 || fe.PredictedScore > 1 {
		return fmt.Errorf("predicted score must be in [0,1], got %f", fe.PredictedScore)
	}
	validDecisions := map[string]bool{
		DecisionSelected: true,
		DecisionSkipped:  true,
		DecisionPending:  true,
	}
	if !validDecisions[fe.Decision] {
		return fmt.Errorf("invalid decision: %s", fe.Decision)
	}
	return nil
}

func (l *Learning) Validate() error {
	if l.UserID == "" {
		return fmt.Errorf("user ID is required")
	}
	if l.Insight == "" {
		return fmt.Errorf("insight is required")
	}
	validCategories := map[string]bool{
		CategoryPhraseToAvoid:    true,
		CategoryPhraseToUse:      true,
		CategoryToneAdjustment:   true,
		CategoryLengthPreference: true,
		CategoryStyleMismatch:    true,
		CategoryAuthenticity:     true,
	}
	if !validCategories[l.Category] {
		return fmt.Errorf("invalid learning category: %s", l.Category)
	}
	if l.Confidence < 0 || l.Confidence > 1 {
		return fmt.Errorf("confidence must be in [0,1], got %f", l.Confidence)
	}
	return nil
}

func (bp *BannedPattern) Validate() error {
	if bp.UserID == "" {
		return fmt.Errorf("user ID is required")
	}
	if strings.TrimSpace(bp.Phrase) == "" {
		return fmt.Errorf("phrase is required")
	}
	validSources := map[string]bool{
		SourceGlobal:          true,
		SourceUserFeedback:    true,
		SourceLearnedFromEdit: true,
		SourceConsolidated:    true,
	}
	if !validSources[bp.Source] {
		return fmt.Errorf("invalid pattern source: %s", bp.Source)
	}
	return nil
}

func (ss *StyleSnapshot) Validate() error {
	if ss.UserID == "" {
		return fmt.Errorf("user ID is required")
	}
	if ss.Payload == "" {
		return fmt.Errorf("payload is required")
	}
	validTriggers := map[string]bool{
		TriggerInitial:       true,
		TriggerScheduled:     true,
		TriggerDriftDetected: true,
		TriggerRollback:      true,
		TriggerManual:        true,
	}
	if !validTriggers[ss.Trigger] {
		return fmt.Errorf("invalid snapshot trigger: %s", ss.Trigger)
	}
	return nil
}

func (p *Profile) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("user ID is required")
	}
	if p.Summary == "" {
		return fmt.Errorf("summary is required")
	}
	if p.ModelType != ModelTypeRecommendation && p.ModelType != ModelTypeStyle {
		return fmt.Errorf("invalid model type: %s", p.ModelType)
	}
	return nil
}

// GORM hooks

func (fe *FeedbackEvent) BeforeCreate(tx *gorm.DB) error {
	return fe.Validate()
}

func (l *Learning) BeforeCreate(tx *gorm.DB) error {
	return l.Validate()
}

func (bp *BannedPattern) BeforeCreate(tx *gorm.DB) error {
	return bp.Validate()
}

func (ss *StyleSnapshot) BeforeCreate(tx *gorm.DB) error {
	return ss.Validate()
}

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	return p.Validate()
}
