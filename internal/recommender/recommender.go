package recommender

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/voiceloop/backend/internal/models"
	"github.com/voiceloop/backend/internal/oracle"
	"github.com/voiceloop/backend/internal/trainer"
)

const (
	minOracleScore   = 0.3
	summaryEventSpan = 50
	rankMaxTokens    = 800
)

// Recommender ranks candidate content for a user. The oracle path grounds its
// scores in the user's feedback history and profile; the deterministic
// fallback never fails and never returns an error.
type Recommender struct {
	events    models.FeedbackEventRepository
	negatives models.NegativeExampleRepository
	trainer   *trainer.Trainer
	oracle    oracle.Completer
	logger    *logrus.Logger
}

func NewRecommender(
	events models.FeedbackEventRepository,
	negatives models.NegativeExampleRepository,
	profileSource *trainer.Trainer,
	completer oracle.Completer,
	logger *logrus.Logger,
) *Recommender {
	return &Recommender{
		events:    events,
		negatives: negatives,
		trainer:   profileSource,
		oracle:    completer,
		logger:    logger,
	}
}

// Rank orders candidates by predicted user interest, capped at limit. Oracle
// failure or malformed output degrades to the heuristic ranking; only the
// feedback-history read can fail hard.
func (r *Recommender) Rank(ctx context.Context, userID string, candidates []models.Candidate, limit int) ([]models.RankedCandidate, bool, error) {
	if len(candidates) == 0 {
		return nil, false, nil
	}
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}

	summary, err := r.buildFeedbackSummary(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build feedback summary: %w", err)
	}

	ranked, err := r.rankWithOracle(ctx, userID, candidates, summary, limit)
	if err != nil {
		r.logger.WithError(err).WithField("user_id", userID).
			Warn("Oracle ranking failed, using heuristic fallback")
		return FallbackRank(candidates, limit), true, nil
	}

	return ranked, false, nil
}

type feedbackSummary struct {
	ReasonCounts     map[string]int
	PreferredAuthors []string
	AvoidedAuthors   []string
	RecentSuccesses  []string
	ProfileSummary   string
}

func (r *Recommender) buildFeedbackSummary(ctx context.Context, userID string) (*feedbackSummary, error) {
	events, err := r.events.GetRecent(userID, summaryEventSpan)
	if err != nil {
		return nil, err
	}

	summary := &feedbackSummary{ReasonCounts: make(map[string]int)}

	authorSelected := make(map[string]int)
	authorSkipped := make(map[string]int)
	for _, event := range events {
		for _, reason := range event.Reasons {
			summary.ReasonCounts[reason]++
		}
		switch event.Decision {
		case models.DecisionSelected:
			authorSelected[event.Author]++
			if event.Likes+event.Replies > 0 && len(summary.RecentSuccesses) < 5 {
				summary.RecentSuccesses = append(summary.RecentSuccesses,
					fmt.Sprintf("%s by %s (%d likes, %d replies)",
						event.CandidateID, event.Author, event.Likes, event.Replies))
			}
		case models.DecisionSkipped:
			authorSkipped[event.Author]++
		}
	}

	for author, count := range authorSelected {
		if author != "" && count >= 2 && count > authorSkipped[author] {
			summary.PreferredAuthors = append(summary.PreferredAuthors, author)
		}
	}
	for author, count := range authorSkipped {
		if author != "" && count >= 2 && count > authorSelected[author] {
			summary.AvoidedAuthors = append(summary.AvoidedAuthors, author)
		}
	}
	sort.Strings(summary.PreferredAuthors)
	sort.Strings(summary.AvoidedAuthors)

	// Enrich with rejected-content authors.
	if negatives, err := r.negatives.GetRecent(userID, 20); err == nil {
		seen := make(map[string]bool)
		for _, a := range summary.AvoidedAuthors {
			seen[a] = true
		}
		for _, neg := range negatives {
			if neg.Author != "" && !seen[neg.Author] {
				summary.AvoidedAuthors = append(summary.AvoidedAuthors, neg.Author)
				seen[neg.Author] = true
			}
		}
	}

	// The profile enriches but is not required.
	if r.trainer != nil {
		if profile, err := r.trainer.ActiveProfile(ctx, userID, models.ModelTypeRecommendation); err == nil && profile != nil {
			summary.ProfileSummary = profile.Summary
		}
	}

	return summary, nil
}

type oracleRanking struct {
	Index  int     `json:"index"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

func (r *Recommender) rankWithOracle(ctx context.Context, userID string, candidates []models.Candidate, summary *feedbackSummary, limit int) ([]models.RankedCandidate, error) {
	prompt := buildRankingPrompt(candidates, summary)

	response, err := r.oracle.Complete(ctx, oracle.CompletionRequest{
		Prompt:      prompt,
		MaxTokens:   rankMaxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		return nil, err
	}

	rankings, err := parseRankings(response)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, oracle.ErrMalformed)
	}

	var results []models.RankedCandidate
	for _, ranking := range rankings {
		if ranking.Index < 0 || ranking.Index >= len(candidates) {
			continue
		}
		if ranking.Score < minOracleScore {
			continue
		}
		results = append(results, models.RankedCandidate{
			Candidate: candidates[ranking.Index],
			Score:     clamp01(ranking.Score),
			Reason:    ranking.Reason,
		})
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("oracle returned no usable rankings: %w", oracle.ErrMalformed)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func buildRankingPrompt(candidates []models.Candidate, summary *feedbackSummary) string {
	var b strings.Builder

	b.WriteString("Rank these content candidates for one specific user.\n\n")
	if summary.ProfileSummary != "" {
		fmt.Fprintf(&b, "User profile: %s\n\n", summary.ProfileSummary)
	}

	if len(summary.ReasonCounts) > 0 {
		b.WriteString("Feedback reason frequency:\n")
		reasons := make([]string, 0, len(summary.ReasonCounts))
		for reason := range summary.ReasonCounts {
			reasons = append(reasons, reason)
		}
		sort.Slice(reasons, func(i, j int) bool {
			return summary.ReasonCounts[reasons[i]] > summary.ReasonCounts[reasons[j]]
		})
		for _, reason := range reasons {
			fmt.Fprintf(&b, "- %s: %d\n", reason, summary.ReasonCounts[reason])
		}
		b.WriteString("\n")
	}

	if len(summary.PreferredAuthors) > 0 {
		fmt.Fprintf(&b, "Preferred authors: %s\n", strings.Join(summary.PreferredAuthors, ", "))
	}
	if len(summary.AvoidedAuthors) > 0 {
		fmt.Fprintf(&b, "Avoided authors: %s\n", strings.Join(summary.AvoidedAuthors, ", "))
	}
	if len(summary.RecentSuccesses) > 0 {
		fmt.Fprintf(&b, "Recent successes: %s\n", strings.Join(summary.RecentSuccesses, "; "))
	}

	b.WriteString("\nCandidates:\n")
	for i, candidate := range candidates {
		text := candidate.Text
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		fmt.Fprintf(&b, "[%d] author=%s engagement=%d age_hours=%.1f text=%q\n",
			i, candidate.Author, candidate.Engagement, candidate.AgeHours, text)
	}

	b.WriteString("\nReturn a JSON array. For each candidate worth the user's attention ")
	b.WriteString("(score above 0.3), include {\"index\": <int>, \"score\": <0-1>, ")
	b.WriteString("\"reason\": \"<short reason grounded in this user's specific patterns>\"}. ")
	b.WriteString("JSON only, no commentary.")

	return b.String()
}

// parseRankings extracts the first JSON array from the oracle's response.
func parseRankings(response string) ([]oracleRanking, error) {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in oracle response")
	}

	var rankings []oracleRanking
	if err := json.Unmarshal([]byte(response[start:end+1]), &rankings); err != nil {
		return nil, fmt.Errorf("failed to parse rankings: %v", err)
	}
	return rankings, nil
}

// FallbackRank is the deterministic heuristic: engagement blended with
// recency. It must always be available and must never fail.
func FallbackRank(candidates []models.Candidate, limit int) []models.RankedCandidate {
	results := make([]models.RankedCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		engagement := clamp01(float64(candidate.Engagement) / 100.0)
		recency := math.Max(0, 1-candidate.AgeHours/48.0)
		results = append(results, models.RankedCandidate{
			Candidate: candidate,
			Score:     0.6*engagement + 0.4*recency,
			Reason:    "engagement and recency heuristic",
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
