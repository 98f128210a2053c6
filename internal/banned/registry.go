package banned

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/voiceloop/backend/internal/database"
	"github.com/voiceloop/backend/internal/models"
	"gorm.io/gorm"
)

const userPatternCacheTTL = 10 * time.Minute

// Match is one detected banned pattern occurrence.
type Match struct {
	Phrase   string `json:"phrase"`
	Category string `json:"category"`
	Source   string `json:"source"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
}

// Registry detects banned phrases in candidate text. The global blocklist is
// compiled into the binary; user-specific patterns are loaded on demand and
// cached, with invalidation on every write.
type Registry struct {
	patterns models.BannedPatternRepository
	cache    *database.Cache
	logger   *logrus.Logger
}

func NewRegistry(patterns models.BannedPatternRepository, cache *database.Cache, logger *logrus.Logger) *Registry {
	return &Registry{
		patterns: patterns,
		cache:    cache,
		logger:   logger,
	}
}

// Detect returns every banned pattern occurrence in text, global and
// user-learned, plus structural matches. A store failure degrades to
// global-only detection rather than blocking the caller.
func (r *Registry) Detect(ctx context.Context, userID, text string) []Match {
	matches := detectGlobal(text)
	matches = append(matches, detectStructural(text)...)

	userPatterns, err := r.loadUserPatterns(ctx, userID)
	if err != nil {
		r.logger.WithError(err).WithField("user_id", userID).
			Warn("Falling back to global-only banned pattern detection")
		return matches
	}

	lower := strings.ToLower(text)
	for _, pattern := range userPatterns {
		phrase := strings.ToLower(pattern.Phrase)
		indexes := allIndexes(lower, phrase)
		for _, idx := range indexes {
			matches = append(matches, Match{
				Phrase:   pattern.Phrase,
				Category: CategoryLearned,
				Source:   pattern.Source,
				Start:    idx,
				End:      idx + len(phrase),
			})
		}
		if len(indexes) > 0 {
			// Detection counts are usage telemetry, never worth failing a scan over.
			if err := r.patterns.IncrementDetection(pattern.ID); err != nil {
				r.logger.WithError(err).WithField("phrase", pattern.Phrase).
					Debug("Failed to bump detection count")
			}
		}
	}

	return matches
}

// AddUserPattern stores a learned pattern. Idempotent: re-adding an existing
// phrase (case-insensitive) only bumps its confidence if the new one is
// higher.
func (r *Registry) AddUserPattern(ctx context.Context, userID, phrase, source string, confidence float64) error {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return errors.New("empty phrase")
	}

	existing, err := r.patterns.FindByPhrase(userID, phrase)
	if err == nil {
		if confidence > existing.Confidence {
			existing.Confidence = confidence
			if err := r.patterns.Update(existing); err != nil {
				return err
			}
		}
		return r.invalidate(ctx, userID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	category := GlobalCategory(phrase)
	if category == "" {
		category = CategoryLearned
	}

	pattern := &models.BannedPattern{
		UserID:     userID,
		Phrase:     phrase,
		Category:   category,
		Source:     source,
		Confidence: confidence,
	}
	if err := r.patterns.Create(pattern); err != nil {
		return err
	}

	r.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"phrase":     phrase,
		"source":     source,
		"confidence": confidence,
	}).Info("Learned banned pattern")

	return r.invalidate(ctx, userID)
}

// RemoveUserPattern deletes a learned pattern. Removing a phrase that was
// never stored is not an error.
func (r *Registry) RemoveUserPattern(ctx context.Context, userID, phrase string) error {
	if err := r.patterns.Delete(userID, phrase); err != nil {
		return err
	}
	return r.invalidate(ctx, userID)
}

// UserPatterns returns the user's learned patterns, cache-first.
func (r *Registry) UserPatterns(ctx context.Context, userID string) ([]models.BannedPattern, error) {
	return r.loadUserPatterns(ctx, userID)
}

// IsKnownPhrase reports whether the phrase is banned globally or for this
// user.
func (r *Registry) IsKnownPhrase(ctx context.Context, userID, phrase string) bool {
	if IsGlobalPhrase(phrase) {
		return true
	}
	_, err := r.patterns.FindByPhrase(userID, phrase)
	return err == nil
}

func (r *Registry) loadUserPatterns(ctx context.Context, userID string) ([]models.BannedPattern, error) {
	if r.cache != nil {
		if patterns, err := r.cache.GetCachedUserPatterns(ctx, userID); err == nil {
			return patterns, nil
		}
	}

	patterns, err := r.patterns.GetByUser(userID)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.CacheUserPatterns(ctx, userID, patterns, userPatternCacheTTL); err != nil {
			r.logger.WithError(err).Debug("Failed to cache user patterns")
		}
	}

	return patterns, nil
}

func (r *Registry) invalidate(ctx context.Context, userID string) error {
	if r.cache == nil {
		return nil
	}
	if err := r.cache.InvalidateUserPatterns(ctx, userID); err != nil {
		r.logger.WithError(err).Debug("Failed to invalidate user pattern cache")
	}
	return nil
}

func detectGlobal(text string) []Match {
	var matches []Match
	lower := strings.ToLower(text)

	for phrase, category := range globalIndex {
		for _, idx := range allIndexes(lower, phrase) {
			matches = append(matches, Match{
				Phrase:   phrase,
				Category: category,
				Source:   models.SourceGlobal,
				Start:    idx,
				End:      idx + len(phrase),
			})
		}
	}

	return matches
}

func detectStructural(text string) []Match {
	var matches []Match

	for _, sp := range structuralPatterns {
		for _, loc := range sp.Pattern.FindAllStringIndex(text, -1) {
			matches = append(matches, Match{
				Phrase:   strings.TrimSpace(text[loc[0]:loc[1]]),
				Category: CategoryStructural,
				Source:   models.SourceGlobal,
				Start:    loc[0],
				End:      loc[1],
			})
		}
	}

	emojiCount := 0
	firstEmoji := -1
	for _, emoji := range suspiciousEmojis {
		count := strings.Count(text, emoji)
		if count > 0 && firstEmoji < 0 {
			firstEmoji = strings.Index(text, emoji)
		}
		emojiCount += count
	}
	if emojiCount >= emojiOveruseThreshold {
		matches = append(matches, Match{
			Phrase:   "emoji overuse",
			Category: CategoryEmoji,
			Source:   models.SourceGlobal,
			Start:    firstEmoji,
			End:      firstEmoji,
		})
	}

	return matches
}

func allIndexes(haystack, needle string) []int {
	var indexes []int
	if needle == "" {
		return indexes
	}
	offset := 0
	for {
		idx := strings.Index(haystack[offset:], needle)
		if idx < 0 {
			return indexes
		}
		indexes = append(indexes, offset+idx)
		offset += idx + len(needle)
	}
}
