package drift

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/voiceloop/backend/internal/config"
	"github.com/voiceloop/backend/internal/models"
	"github.com/voiceloop/backend/pkg/utils"
	"gorm.io/gorm"
)

// Dimension weights for the composite drift score.
const (
	weightTone      = 0.3
	weightVocab     = 0.3
	weightLength    = 0.2
	weightStructure = 0.2

	decayPerDay = 0.95
)

const (
	RecommendStable      = "stable"
	RecommendRecalculate = "recalculate"
	RecommendAlertUser   = "alert_user"
)

// DriftResult is one comparison between a current style profile and a
// baseline snapshot.
type DriftResult struct {
	Score          float64            `json:"score"`
	Dimensions     map[string]float64 `json:"dimensions"`
	Recommendation string             `json:"recommendation"`
	BaselineID     string             `json:"baseline_id,omitempty"`
	BaselineAge    time.Duration      `json:"-"`
}

// Tracker watches a user's style profile for drift against historical
// snapshots and decides when a new snapshot is warranted.
type Tracker struct {
	snapshots models.StyleSnapshotRepository
	cfg       config.LearningConfig
	logger    *logrus.Logger
}

func NewTracker(snapshots models.StyleSnapshotRepository, cfg config.LearningConfig, logger *logrus.Logger) *Tracker {
	return &Tracker{snapshots: snapshots, cfg: cfg, logger: logger}
}

// DetectDrift scores how far current has moved from baseline across four
// dimensions. 0.0 means identical, 1.0 means completely different.
func (t *Tracker) DetectDrift(current, baseline *models.StyleProfile) *DriftResult {
	dims := map[string]float64{
		"tone":       toneDrift(current, baseline),
		"vocabulary": vocabularyDrift(current, baseline),
		"length":     lengthDrift(current, baseline),
		"structure":  structureDrift(current, baseline),
	}

	score := weightTone*dims["tone"] +
		weightVocab*dims["vocabulary"] +
		weightLength*dims["length"] +
		weightStructure*dims["structure"]

	result := &DriftResult{
		Score:      score,
		Dimensions: dims,
	}
	switch {
	case score >= t.cfg.DriftAlert:
		result.Recommendation = RecommendAlertUser
	case score >= t.cfg.DriftRecalculate:
		result.Recommendation = RecommendRecalculate
	default:
		result.Recommendation = RecommendStable
	}
	return result
}

// CheckAndSnapshot compares the current profile against the baseline
// snapshot and persists a new snapshot when one is due: first sighting,
// meaningful drift after the minimum interval, or the scheduled maximum
// interval. The baseline is the newest snapshot older than the minimum
// interval, so a string of recent snapshots cannot mask gradual drift;
// only when no snapshot is that old does the latest one serve.
func (t *Tracker) CheckAndSnapshot(ctx context.Context, userID string, current *models.StyleProfile) (*DriftResult, *models.StyleSnapshot, error) {
	latest, err := t.snapshots.Latest(userID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("failed to load latest snapshot: %w", err)
		}
		snapshot, err := t.persistSnapshot(userID, current, models.TriggerInitial, 0)
		if err != nil {
			return nil, nil, err
		}
		return &DriftResult{Recommendation: RecommendStable, Dimensions: map[string]float64{}}, snapshot, nil
	}

	anchor := latest
	cutoff := time.Now().AddDate(0, 0, -t.cfg.SnapshotMinDays)
	if older, err := t.snapshots.LatestBefore(userID, cutoff); err == nil {
		anchor = older
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fmt.Errorf("failed to load baseline snapshot: %w", err)
	}

	baseline, err := anchor.DecodePayload()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode baseline snapshot: %w", err)
	}

	result := t.DetectDrift(current, baseline)
	result.BaselineID = anchor.SnapshotID
	result.BaselineAge = time.Since(anchor.CreatedAt)

	// Snapshot cadence is still gated on the newest snapshot's age.
	days := time.Since(latest.CreatedAt).Hours() / 24
	var trigger string
	switch {
	case result.Score >= t.cfg.DriftRecalculate && days >= float64(t.cfg.SnapshotMinDays):
		trigger = models.TriggerDriftDetected
	case days >= float64(t.cfg.SnapshotMaxDays):
		trigger = models.TriggerScheduled
	default:
		return result, nil, nil
	}

	snapshot, err := t.persistSnapshot(userID, current, trigger, result.Score)
	if err != nil {
		return result, nil, err
	}

	t.logger.WithFields(logrus.Fields{
		"user_id":     userID,
		"snapshot_id": snapshot.SnapshotID,
		"trigger":     trigger,
		"drift":       result.Score,
	}).Info("Captured style snapshot")

	return result, snapshot, nil
}

// Snapshot forces a snapshot regardless of drift or interval.
func (t *Tracker) Snapshot(ctx context.Context, userID string, current *models.StyleProfile, trigger string) (*models.StyleSnapshot, error) {
	if trigger == "" {
		trigger = models.TriggerManual
	}
	return t.persistSnapshot(userID, current, trigger, 0)
}

// TimeWeightedProfile blends the user's snapshot history into one profile,
// each snapshot weighted by recency decay so the voice evolves gradually
// instead of jumping to whatever the latest sample looked like.
func (t *Tracker) TimeWeightedProfile(ctx context.Context, userID string, limit int) (*models.StyleProfile, error) {
	if limit <= 0 {
		limit = 10
	}
	snapshots, err := t.snapshots.GetByUser(userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}
	if len(snapshots) == 0 {
		return nil, nil
	}

	blended := &models.StyleProfile{
		ToneScores:      make(map[string]float64),
		PunctuationFreq: make(map[string]float64),
	}
	vocabWeights := make(map[string]float64)
	totalWeight := 0.0

	now := time.Now()
	for _, snapshot := range snapshots {
		profile, err := snapshot.DecodePayload()
		if err != nil {
			t.logger.WithError(err).WithField("snapshot_id", snapshot.SnapshotID).
				Warn("Skipping undecodable snapshot")
			continue
		}

		days := now.Sub(snapshot.CreatedAt).Hours() / 24
		weight := math.Pow(decayPerDay, days)
		totalWeight += weight

		blended.AvgPostLength += weight * profile.AvgPostLength
		blended.AvgCommentLength += weight * profile.AvgCommentLength
		blended.AvgSentenceLength += weight * profile.AvgSentenceLength
		for tone, score := range profile.ToneScores {
			blended.ToneScores[tone] += weight * score
		}
		for mark, freq := range profile.PunctuationFreq {
			blended.PunctuationFreq[mark] += weight * freq
		}
		for _, word := range profile.DomainVocabulary {
			vocabWeights[strings.ToLower(word)] += weight
		}
	}

	if totalWeight == 0 {
		return nil, nil
	}

	blended.AvgPostLength /= totalWeight
	blended.AvgCommentLength /= totalWeight
	blended.AvgSentenceLength /= totalWeight
	bestTone, bestScore := "", 0.0
	for tone, score := range blended.ToneScores {
		blended.ToneScores[tone] = score / totalWeight
		if blended.ToneScores[tone] > bestScore {
			bestTone, bestScore = tone, blended.ToneScores[tone]
		}
	}
	for mark := range blended.PunctuationFreq {
		blended.PunctuationFreq[mark] /= totalWeight
	}
	blended.Tone = bestTone

	// Keep vocabulary that carries at least half the weight of the most
	// recent snapshot, so one-off words age out.
	cutoff := math.Pow(decayPerDay, now.Sub(snapshots[0].CreatedAt).Hours()/24) * 0.5
	for word, weight := range vocabWeights {
		if weight >= cutoff {
			blended.DomainVocabulary = append(blended.DomainVocabulary, word)
		}
	}

	return blended, nil
}

// RollbackToSnapshot restores a historical snapshot by appending a new
// snapshot with the old payload. History is never rewritten.
func (t *Tracker) RollbackToSnapshot(ctx context.Context, userID, snapshotID string) (*models.StyleSnapshot, error) {
	target, err := t.snapshots.GetBySnapshotID(userID, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("snapshot not found: %w", err)
	}

	restored := &models.StyleSnapshot{
		UserID:     userID,
		SnapshotID: utils.NewSnapshotID(),
		Payload:    target.Payload,
		Trigger:    models.TriggerRollback,
	}
	if err := t.snapshots.Create(restored); err != nil {
		return nil, fmt.Errorf("failed to store rollback snapshot: %w", err)
	}

	t.logger.WithFields(logrus.Fields{
		"user_id":     userID,
		"restored":    snapshotID,
		"snapshot_id": restored.SnapshotID,
	}).Info("Rolled back style profile")

	return restored, nil
}

func (t *Tracker) persistSnapshot(userID string, profile *models.StyleProfile, trigger string, driftScore float64) (*models.StyleSnapshot, error) {
	payload, err := models.EncodeStyleProfile(profile)
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile: %w", err)
	}

	snapshot := &models.StyleSnapshot{
		UserID:     userID,
		SnapshotID: utils.NewSnapshotID(),
		Payload:    payload,
		Trigger:    trigger,
		DriftScore: driftScore,
	}
	if err := t.snapshots.Create(snapshot); err != nil {
		return nil, fmt.Errorf("failed to store snapshot: %w", err)
	}
	return snapshot, nil
}

// toneDrift compares tone score distributions when available, falling back
// to label equality. A bare label flip carries less information than
// diverging score vectors, so it counts as half drift.
func toneDrift(current, baseline *models.StyleProfile) float64 {
	if len(current.ToneScores) > 0 && len(baseline.ToneScores) > 0 {
		return 1 - toneSimilarity(current.ToneScores, baseline.ToneScores)
	}
	if current.Tone == baseline.Tone {
		return 0
	}
	return 0.5
}

// toneSimilarity is cosine similarity over the union of tone labels.
func toneSimilarity(a, b map[string]float64) float64 {
	labels := make(map[string]bool)
	for label := range a {
		labels[label] = true
	}
	for label := range b {
		labels[label] = true
	}

	var dot, normA, normB float64
	for label := range labels {
		dot += a[label] * b[label]
		normA += a[label] * a[label]
		normB += b[label] * b[label]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// vocabularyDrift is the Jaccard distance between vocabulary sets.
func vocabularyDrift(current, baseline *models.StyleProfile) float64 {
	a := vocabSet(current.DomainVocabulary)
	b := vocabSet(baseline.DomainVocabulary)
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	if len(a) == 0 || len(b) == 0 {
		return 1
	}

	intersection := 0
	for word := range a {
		if b[word] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return 1 - float64(intersection)/float64(union)
}

func vocabSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, word := range words {
		set[strings.ToLower(strings.TrimSpace(word))] = true
	}
	delete(set, "")
	return set
}

// lengthDrift averages the relative shift of post and comment lengths so a
// voice change confined to one content type still registers.
func lengthDrift(current, baseline *models.StyleProfile) float64 {
	post := relativeDelta(current.AvgPostLength, baseline.AvgPostLength)
	comment := relativeDelta(current.AvgCommentLength, baseline.AvgCommentLength)
	return (post + comment) / 2
}

// structureDrift averages sentence-length shift with punctuation-habit
// distance.
func structureDrift(current, baseline *models.StyleProfile) float64 {
	sentence := relativeDelta(current.AvgSentenceLength, baseline.AvgSentenceLength)
	punctuation := punctuationDistance(current.PunctuationFreq, baseline.PunctuationFreq)
	return (sentence + punctuation) / 2
}

// punctuationDistance is the normalized L1 distance between per-mark
// frequency maps, 0 when both profiles lack punctuation data.
func punctuationDistance(a, b map[string]float64) float64 {
	marks := make(map[string]bool)
	for mark := range a {
		marks[mark] = true
	}
	for mark := range b {
		marks[mark] = true
	}
	if len(marks) == 0 {
		return 0
	}

	var diff, total float64
	for mark := range marks {
		diff += math.Abs(a[mark] - b[mark])
		total += a[mark] + b[mark]
	}
	if total == 0 {
		return 0
	}
	return math.Min(1, diff/total)
}

// relativeDelta is |a-b| relative to the baseline, capped at 1.
func relativeDelta(current, baseline float64) float64 {
	if baseline <= 0 {
		if current <= 0 {
			return 0
		}
		return 1
	}
	return math.Min(1, math.Abs(current-baseline)/baseline)
}
