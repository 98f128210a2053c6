package trainer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/voiceloop/backend/internal/advantage"
	"github.com/voiceloop/backend/internal/config"
	"github.com/voiceloop/backend/internal/database"
	"github.com/voiceloop/backend/internal/models"
	"github.com/voiceloop/backend/internal/oracle"
	"gorm.io/gorm"
)

const (
	profileCacheTTL      = 15 * time.Minute
	highAdvantageCutoff  = 0.2
	maxHighAdvantageList = 5
	profileMaxTokens     = 400
)

// Trainer synthesizes a versioned natural-language preference profile from
// advantage-weighted feedback samples. Training never deletes or corrupts an
// existing profile: any failure leaves the prior version active.
type Trainer struct {
	engine   *advantage.Engine
	profiles models.ProfileRepository
	oracle   oracle.Completer
	cache    *database.Cache
	cfg      config.LearningConfig
	logger   *logrus.Logger
	rng      *rand.Rand
}

func NewTrainer(
	engine *advantage.Engine,
	profiles models.ProfileRepository,
	completer oracle.Completer,
	cache *database.Cache,
	cfg config.LearningConfig,
	logger *logrus.Logger,
) *Trainer {
	return &Trainer{
		engine:   engine,
		profiles: profiles,
		oracle:   completer,
		cache:    cache,
		cfg:      cfg,
		logger:   logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// TrainUserModel runs one training pass. Returns (nil, nil) when there is
// nothing to train on or the oracle is unavailable; both are no-ops, not
// errors. Callers must serialize runs per user.
func (t *Trainer) TrainUserModel(ctx context.Context, userID string) (*models.Profile, error) {
	samples, err := t.engine.ComputeSamples(userID, t.cfg.LookbackDays)
	if err != nil {
		return nil, fmt.Errorf("failed to compute training samples: %w", err)
	}

	if len(samples) < t.cfg.MinTrainingSamples {
		t.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"samples": len(samples),
			"minimum": t.cfg.MinTrainingSamples,
		}).Info("Insufficient samples for training")
		return nil, nil
	}

	batch := t.resampleByWeight(samples, len(samples))
	agg := aggregateBatch(batch)
	prompt := buildTrainingPrompt(agg)

	summary, err := t.oracle.Complete(ctx, oracle.CompletionRequest{
		Prompt:      prompt,
		MaxTokens:   profileMaxTokens,
		Temperature: 0.4,
	})
	if err != nil {
		// Existing profile stays active untouched.
		t.logger.WithError(err).WithField("user_id", userID).
			Warn("Profile synthesis failed, keeping current profile")
		return nil, nil
	}

	profile := &models.Profile{
		UserID:       userID,
		ModelType:    models.ModelTypeRecommendation,
		Summary:      strings.TrimSpace(summary),
		SampleCount:  len(batch),
		AvgAdvantage: agg.AvgAdvantage,
	}

	if err := t.profiles.CreateVersion(profile); err != nil {
		return nil, fmt.Errorf("failed to store profile version: %w", err)
	}

	if t.cache != nil {
		if err := t.cache.InvalidateActiveProfile(ctx, userID, models.ModelTypeRecommendation); err != nil {
			t.logger.WithError(err).Debug("Failed to invalidate profile cache")
		}
	}

	t.logger.WithFields(logrus.Fields{
		"user_id":       userID,
		"version":       profile.Version,
		"samples":       profile.SampleCount,
		"avg_advantage": profile.AvgAdvantage,
	}).Info("Trained new profile version")

	return profile, nil
}

// ActiveProfile returns the active profile for a user, cache-first. A missing
// profile returns (nil, nil): the user just has no training history yet.
func (t *Trainer) ActiveProfile(ctx context.Context, userID, modelType string) (*models.Profile, error) {
	if t.cache != nil {
		if profile, err := t.cache.GetCachedActiveProfile(ctx, userID, modelType); err == nil {
			return profile, nil
		}
	}

	profile, err := t.profiles.GetActive(userID, modelType)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if t.cache != nil {
		if err := t.cache.CacheActiveProfile(ctx, profile, profileCacheTTL); err != nil {
			t.logger.WithError(err).Debug("Failed to cache active profile")
		}
	}

	return profile, nil
}

// resampleByWeight draws n samples with replacement, selection probability
// proportional to weight, so surprising samples are overrepresented in the
// batch.
func (t *Trainer) resampleByWeight(samples []advantage.WeightedSample, n int) []advantage.WeightedSample {
	cumulative := make([]float64, len(samples))
	total := 0.0
	for i, s := range samples {
		total += s.Weight
		cumulative[i] = total
	}

	batch := make([]advantage.WeightedSample, 0, n)
	for i := 0; i < n; i++ {
		target := t.rng.Float64() * total
		idx := sort.SearchFloat64s(cumulative, target)
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		batch = append(batch, samples[idx])
	}
	return batch
}

type authorStat struct {
	Weight     float64
	Selected   int
	Engagement int
}

type batchAggregate struct {
	ReasonWeights map[string]float64
	AuthorStats   map[string]*authorStat
	HighAdvantage []string
	AvgAdvantage  float64
	SelectedShare float64
}

func aggregateBatch(batch []advantage.WeightedSample) *batchAggregate {
	agg := &batchAggregate{
		ReasonWeights: make(map[string]float64),
		AuthorStats:   make(map[string]*authorStat),
	}

	totalAdvantage := 0.0
	selected := 0
	for _, sample := range batch {
		totalAdvantage += sample.Advantage

		for _, reason := range sample.Event.Reasons {
			agg.ReasonWeights[reason] += sample.Weight
		}

		if author := sample.Event.Author; author != "" {
			stat := agg.AuthorStats[author]
			if stat == nil {
				stat = &authorStat{}
				agg.AuthorStats[author] = stat
			}
			stat.Weight += sample.Weight
			stat.Engagement += sample.Event.Likes + sample.Event.Replies
			if sample.Event.Decision == models.DecisionSelected {
				stat.Selected++
			}
		}

		if sample.Event.Decision == models.DecisionSelected {
			selected++
		}

		engagement := sample.Event.Likes + sample.Event.Replies
		if sample.Advantage > highAdvantageCutoff && engagement > 0 && len(agg.HighAdvantage) < maxHighAdvantageList {
			agg.HighAdvantage = append(agg.HighAdvantage,
				fmt.Sprintf("%s by %s (+%.2f advantage, %d engagement)",
					sample.Event.CandidateID, sample.Event.Author, sample.Advantage, engagement))
		}
	}

	if len(batch) > 0 {
		agg.AvgAdvantage = totalAdvantage / float64(len(batch))
		agg.SelectedShare = float64(selected) / float64(len(batch))
	}

	return agg
}

func buildTrainingPrompt(agg *batchAggregate) string {
	var b strings.Builder

	b.WriteString("You are summarizing one user's content engagement behavior.\n\n")
	b.WriteString("Weighted feedback reasons:\n")
	for _, reason := range sortedKeysByWeight(agg.ReasonWeights) {
		fmt.Fprintf(&b, "- %s: %.1f\n", reason, agg.ReasonWeights[reason])
	}

	b.WriteString("\nAuthor engagement (weighted):\n")
	authors := make([]string, 0, len(agg.AuthorStats))
	for author := range agg.AuthorStats {
		authors = append(authors, author)
	}
	sort.Slice(authors, func(i, j int) bool {
		return agg.AuthorStats[authors[i]].Weight > agg.AuthorStats[authors[j]].Weight
	})
	for i, author := range authors {
		if i >= 8 {
			break
		}
		stat := agg.AuthorStats[author]
		fmt.Fprintf(&b, "- %s: weight %.1f, selected %d, engagement %d\n",
			author, stat.Weight, stat.Selected, stat.Engagement)
	}

	if len(agg.HighAdvantage) > 0 {
		b.WriteString("\nSurprising successes (outperformed prediction):\n")
		for _, item := range agg.HighAdvantage {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}

	fmt.Fprintf(&b, "\nOverall: %.0f%% of shown candidates selected, average advantage %.2f.\n",
		agg.SelectedShare*100, agg.AvgAdvantage)
	b.WriteString("\nWrite a 4-6 sentence behavioral profile of what this user engages with and why. ")
	b.WriteString("Be specific about authors, topics, and patterns. Plain prose only.")

	return b.String()
}

func sortedKeysByWeight(weights map[string]float64) []string {
	keys := make([]string, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return weights[keys[i]] > weights[keys[j]] })
	return keys
}
