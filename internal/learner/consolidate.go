package learner

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/voiceloop/backend/internal/models"
)

// ConsolidationReport summarizes one consolidation run.
type ConsolidationReport struct {
	PromotedPatterns int    `json:"promoted_patterns"`
	DominantTone     string `json:"dominant_tone"`
	Pruned           int64  `json:"pruned"`
}

// Consolidate is the periodic batch pass over a user's learnings: phrases
// confirmed by independent edits get promoted to consolidated banned
// patterns, tone complaints are tallied into a dominant preference, and
// stale low-confidence learnings are pruned.
func (l *Learner) Consolidate(ctx context.Context, userID string) (*ConsolidationReport, error) {
	report := &ConsolidationReport{}

	// Promote phrases seen in two or more independent edits.
	avoided, err := l.learnings.GetByCategory(userID, models.CategoryPhraseToAvoid)
	if err != nil {
		return nil, fmt.Errorf("failed to load phrase learnings: %w", err)
	}
	phraseCounts := make(map[string]int)
	phraseOriginal := make(map[string]string)
	for _, learning := range avoided {
		phrase := consolidationKey(learning)
		if phrase == "" {
			continue
		}
		phraseCounts[phrase] += maxInt(learning.Count, 1)
		if _, ok := phraseOriginal[phrase]; !ok {
			phraseOriginal[phrase] = phrase
		}
	}

	for phrase, count := range phraseCounts {
		if count < 2 {
			continue
		}
		confidence := math.Min(1.0, 0.5+0.2*float64(count))
		if err := l.registry.AddUserPattern(ctx, userID, phraseOriginal[phrase], models.SourceConsolidated, confidence); err != nil {
			return report, err
		}
		report.PromotedPatterns++
	}

	// Tally tone adjustments into a dominant preference.
	toneLearnings, err := l.learnings.GetByCategory(userID, models.CategoryToneAdjustment)
	if err != nil {
		return report, fmt.Errorf("failed to load tone learnings: %w", err)
	}
	toneVotes := make(map[string]int)
	for _, learning := range toneLearnings {
		lower := strings.ToLower(learning.Insight)
		switch {
		case strings.Contains(lower, "too formal"):
			toneVotes["casual"]++
		case strings.Contains(lower, "too casual"):
			toneVotes["professional"]++
		}
	}
	best, bestVotes := "", 0
	for tone, votes := range toneVotes {
		if votes > bestVotes {
			best, bestVotes = tone, votes
		}
	}
	if best != "" && bestVotes >= 2 {
		report.DominantTone = best
		confidence := math.Min(1.0, 0.5+0.15*float64(bestVotes))
		insight := fmt.Sprintf("Dominant tone preference: %s", best)

		// One dominant-tone learning per user; repeated runs update it.
		var existing *models.Learning
		for i := range toneLearnings {
			if strings.HasPrefix(toneLearnings[i].Insight, "Dominant tone preference:") {
				existing = &toneLearnings[i]
				break
			}
		}
		if existing != nil {
			existing.Insight = insight
			existing.Confidence = confidence
			if err := l.learnings.Save(existing); err != nil {
				return report, err
			}
		} else {
			learning := models.Learning{
				UserID:     userID,
				Category:   models.CategoryToneAdjustment,
				Insight:    insight,
				Confidence: confidence,
			}
			if err := l.learnings.Create(&learning); err != nil {
				return report, err
			}
		}
	}

	// Prune stale low-confidence learnings.
	cutoff := time.Now().AddDate(0, 0, -l.cfg.ConsolidateAfterDays)
	pruned, err := l.learnings.PruneStale(userID, cutoff, l.cfg.PruneMaxConfidence)
	if err != nil {
		return report, fmt.Errorf("failed to prune learnings: %w", err)
	}
	report.Pruned = pruned

	l.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"promoted": report.PromotedPatterns,
		"tone":     report.DominantTone,
		"pruned":   report.Pruned,
	}).Info("Consolidated learnings")

	return report, nil
}

// consolidationKey normalizes a phrase_to_avoid learning to its evidence
// phrase so independent edits of the same phrase group together.
func consolidationKey(learning models.Learning) string {
	if len(learning.Evidence) > 0 {
		return strings.ToLower(trimSpanPhrase(learning.Evidence[0]))
	}
	return ""
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
