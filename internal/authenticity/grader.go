package authenticity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/voiceloop/backend/internal/config"
	"github.com/voiceloop/backend/internal/models"
	"github.com/voiceloop/backend/internal/oracle"
)

const (
	gradeMaxTokens   = 500
	improveMaxTokens = 600
	maxGradeExamples = 5
)

// GradeScores holds the five 0-10 sub-scores from an oracle grading pass.
type GradeScores struct {
	Voice        float64 `json:"voice"`
	Tone         float64 `json:"tone"`
	Vocabulary   float64 `json:"vocabulary"`
	Structure    float64 `json:"structure"`
	Authenticity float64 `json:"authenticity"`
}

func (s GradeScores) mean() float64 {
	return (s.Voice + s.Tone + s.Vocabulary + s.Structure + s.Authenticity) / 5
}

// Grade is one grading verdict on a piece of text.
type Grade struct {
	Scores          GradeScores `json:"scores"`
	Overall         float64     `json:"overall"`
	Pass            bool        `json:"pass"`
	Issues          []string    `json:"issues,omitempty"`
	Suggestions     []string    `json:"suggestions,omitempty"`
	DetectedPhrases []string    `json:"detected_phrases,omitempty"`
	Attempts        int         `json:"attempts"`
	UsedFallback    bool        `json:"used_fallback"`
}

// Grader judges generated text with the oracle and iteratively rewrites
// failing text. It degrades to the deterministic scorer whenever the oracle
// cannot be used; it never returns an error.
type Grader struct {
	oracle oracle.Completer
	scorer *Scorer
	cfg    config.LearningConfig
	logger *logrus.Logger
}

func NewGrader(completer oracle.Completer, scorer *Scorer, cfg config.LearningConfig, logger *logrus.Logger) *Grader {
	return &Grader{
		oracle: completer,
		scorer: scorer,
		cfg:    cfg,
		logger: logger,
	}
}

// GradeAndImprove grades text and, while it fails, asks the oracle to rewrite
// it, up to maxAttempts passes. Returns the best text seen and its grade.
func (g *Grader) GradeAndImprove(ctx context.Context, userID, text, contentType string, profile *models.StyleProfile, examples []string, maxAttempts int) (string, *Grade) {
	if maxAttempts <= 0 {
		maxAttempts = g.cfg.GraderMaxAttempts
	}

	current := text
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		grade, err := g.gradeOnce(ctx, current, profile, examples)
		if err != nil {
			g.logger.WithError(err).WithFields(logrus.Fields{
				"user_id": userID,
				"attempt": attempt,
			}).Warn("Oracle grading failed, falling back to rule-based scorer")
			return current, g.fallbackGrade(ctx, userID, current, contentType, profile, examples, attempt)
		}
		grade.Attempts = attempt

		if grade.Pass || attempt == maxAttempts {
			return current, grade
		}

		improved, err := g.improve(ctx, current, grade, profile, examples)
		if err != nil {
			g.logger.WithError(err).WithField("user_id", userID).
				Warn("Rewrite failed, keeping last graded text")
			return current, grade
		}
		current = improved
	}

	// Unreachable: the loop always returns on the last attempt.
	return current, g.fallbackGrade(ctx, userID, current, contentType, profile, examples, maxAttempts)
}

func (g *Grader) gradeOnce(ctx context.Context, text string, profile *models.StyleProfile, examples []string) (*Grade, error) {
	if g.oracle == nil {
		return nil, oracle.ErrUnavailable
	}

	response, err := g.oracle.Complete(ctx, oracle.CompletionRequest{
		Prompt:      buildGradingPrompt(text, profile, examples),
		MaxTokens:   gradeMaxTokens,
		Temperature: 0.1,
	})
	if err != nil {
		return nil, err
	}

	grade, err := parseGrade(response)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, oracle.ErrMalformed)
	}

	grade.Overall = grade.Scores.mean()
	grade.Pass = grade.Overall >= g.cfg.GraderPassScore
	return grade, nil
}

func (g *Grader) improve(ctx context.Context, text string, grade *Grade, profile *models.StyleProfile, examples []string) (string, error) {
	response, err := g.oracle.Complete(ctx, oracle.CompletionRequest{
		Prompt:      buildImprovePrompt(text, grade, profile, examples),
		MaxTokens:   improveMaxTokens,
		Temperature: 0.5,
	})
	if err != nil {
		return "", err
	}

	rewritten := strings.TrimSpace(strings.Trim(strings.TrimSpace(response), `"`))
	if rewritten == "" {
		return "", fmt.Errorf("empty rewrite: %w", oracle.ErrMalformed)
	}
	return rewritten, nil
}

// fallbackGrade maps the rule-based scorer onto the grader's 0-10 scale.
func (g *Grader) fallbackGrade(ctx context.Context, userID, text, contentType string, profile *models.StyleProfile, examples []string, attempts int) *Grade {
	sr := g.scorer.Score(ctx, userID, text, contentType, profile, examples)

	grade := &Grade{
		Scores: GradeScores{
			Voice:        sr.Overall * 10,
			Tone:         sr.Tone * 10,
			Vocabulary:   sr.Vocabulary * 10,
			Structure:    sr.Structure * 10,
			Authenticity: (1 - sr.BannedPenalty) * 10,
		},
		Overall:      sr.Overall * 10,
		Pass:         !sr.ShouldRegenerate,
		Suggestions:  sr.Suggestions,
		Attempts:     attempts,
		UsedFallback: true,
	}
	for _, match := range sr.Matches {
		grade.DetectedPhrases = append(grade.DetectedPhrases, match.Phrase)
	}
	return grade
}

func buildGradingPrompt(text string, profile *models.StyleProfile, examples []string) string {
	var b strings.Builder

	b.WriteString("Grade whether this text could plausibly have been written by a specific person.\n\n")

	if profile != nil {
		fmt.Fprintf(&b, "The person's style: tone=%s, avg sentence length=%.1f words.\n",
			profile.Tone, profile.AvgSentenceLength)
		if len(profile.DomainVocabulary) > 0 {
			vocab := profile.DomainVocabulary
			if len(vocab) > 15 {
				vocab = vocab[:15]
			}
			fmt.Fprintf(&b, "Characteristic vocabulary: %s\n", strings.Join(vocab, ", "))
		}
	}

	if len(examples) > 0 {
		capped := examples
		if len(capped) > maxGradeExamples {
			capped = capped[:maxGradeExamples]
		}
		b.WriteString("\nWriting samples from this person:\n")
		for i, example := range capped {
			if len(example) > 300 {
				example = example[:300] + "..."
			}
			fmt.Fprintf(&b, "%d. %s\n", i+1, example)
		}
	}

	fmt.Fprintf(&b, "\nText to grade:\n%s\n\n", text)
	b.WriteString("Return JSON only: {\"scores\": {\"voice\": <0-10>, \"tone\": <0-10>, ")
	b.WriteString("\"vocabulary\": <0-10>, \"structure\": <0-10>, \"authenticity\": <0-10>}, ")
	b.WriteString("\"issues\": [<string>], \"suggestions\": [<string>], ")
	b.WriteString("\"detected_phrases\": [<phrases that sound generic or AI-generated>]}")

	return b.String()
}

func buildImprovePrompt(text string, grade *Grade, profile *models.StyleProfile, examples []string) string {
	var b strings.Builder

	b.WriteString("Rewrite this text to sound like the person described below actually wrote it.\n\n")

	if profile != nil {
		fmt.Fprintf(&b, "Their style: tone=%s, avg sentence length=%.1f words.\n",
			profile.Tone, profile.AvgSentenceLength)
	}
	if len(examples) > 0 {
		example := examples[0]
		if len(example) > 300 {
			example = example[:300] + "..."
		}
		fmt.Fprintf(&b, "Example of their writing: %s\n", example)
	}

	if len(grade.Issues) > 0 {
		fmt.Fprintf(&b, "\nProblems with the current text: %s\n", strings.Join(grade.Issues, "; "))
	}
	if len(grade.Suggestions) > 0 {
		fmt.Fprintf(&b, "Apply these changes: %s\n", strings.Join(grade.Suggestions, "; "))
	}
	if len(grade.DetectedPhrases) > 0 {
		fmt.Fprintf(&b, "Remove these phrases entirely: %s\n", strings.Join(grade.DetectedPhrases, "; "))
	}

	fmt.Fprintf(&b, "\nText:\n%s\n\n", text)
	b.WriteString("Keep the meaning. Return only the rewritten text, no commentary.")

	return b.String()
}

// parseGrade extracts the first JSON object from the oracle's response.
func parseGrade(response string) (*Grade, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in oracle response")
	}

	var grade Grade
	if err := json.Unmarshal([]byte(response[start:end+1]), &grade); err != nil {
		return nil, fmt.Errorf("failed to parse grade: %v", err)
	}
	return &grade, nil
}
