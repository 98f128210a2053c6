package authenticity

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/voiceloop/backend/internal/banned"
	"github.com/voiceloop/backend/internal/models"
)

const (
	maxExamples     = 20
	passThreshold   = 0.6
	penaltyPerMatch = 0.3
)

// Dimension weights for the overall score. Fixed; the grader's oracle path
// uses its own scale.
const (
	weightVocabulary  = 0.25
	weightLength      = 0.15
	weightTone        = 0.20
	weightStructure   = 0.15
	weightPunctuation = 0.10
	weightCleanliness = 0.15
)

// ScoreResult is the output of scoring one candidate text against a user's
// style profile.
type ScoreResult struct {
	Vocabulary       float64        `json:"vocabulary"`
	Length           float64        `json:"length"`
	Tone             float64        `json:"tone"`
	Structure        float64        `json:"structure"`
	Punctuation      float64        `json:"punctuation"`
	BannedPenalty    float64        `json:"banned_penalty"`
	Overall          float64        `json:"overall"`
	Confidence       string         `json:"confidence"`
	Warnings         []string       `json:"warnings,omitempty"`
	Suggestions      []string       `json:"suggestions,omitempty"`
	Matches          []banned.Match `json:"matches,omitempty"`
	ShouldRegenerate bool           `json:"should_regenerate"`
}

// Scorer is the deterministic rule-based authenticity scorer. It needs no
// oracle and therefore always works.
type Scorer struct {
	registry *banned.Registry
	logger   *logrus.Logger
}

func NewScorer(registry *banned.Registry, logger *logrus.Logger) *Scorer {
	return &Scorer{registry: registry, logger: logger}
}

// Score compares candidate text against the user's style profile and example
// corpus across five dimensions plus a banned-phrase penalty.
func (s *Scorer) Score(ctx context.Context, userID, text, contentType string, profile *models.StyleProfile, examples []string) *ScoreResult {
	if len(examples) > maxExamples {
		examples = examples[:maxExamples]
	}

	result := &ScoreResult{
		Vocabulary:  s.vocabularyMatch(text, examples),
		Length:      lengthMatch(text, contentType, profile),
		Tone:        toneMatch(text, profile),
		Structure:   structureMatch(text, profile),
		Punctuation: punctuationMatch(text, profile),
		Confidence:  confidenceTier(len(examples)),
	}

	if s.registry != nil {
		result.Matches = s.registry.Detect(ctx, userID, text)
	}
	result.BannedPenalty = math.Min(1.0, penaltyPerMatch*float64(len(result.Matches)))

	result.Overall = weightVocabulary*result.Vocabulary +
		weightLength*result.Length +
		weightTone*result.Tone +
		weightStructure*result.Structure +
		weightPunctuation*result.Punctuation +
		weightCleanliness*(1-result.BannedPenalty)

	result.ShouldRegenerate = result.Overall < passThreshold || result.BannedPenalty > 0

	s.annotate(result)
	return result
}

func (s *Scorer) annotate(result *ScoreResult) {
	for _, match := range result.Matches {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("banned phrase %q (%s)", match.Phrase, match.Category))
	}
	if result.Vocabulary < 0.5 {
		result.Suggestions = append(result.Suggestions, "use more of the user's own vocabulary")
	}
	if result.Length < 0.8 {
		result.Suggestions = append(result.Suggestions, "match the user's typical length")
	}
	if result.Tone < 0.8 {
		result.Suggestions = append(result.Suggestions, "adjust tone toward the user's usual register")
	}
	if result.Structure < 0.7 {
		result.Suggestions = append(result.Suggestions, "match the user's sentence rhythm")
	}
}

// vocabularyMatch blends Jaccard similarity against the example corpus with
// the share of the text's own vocabulary drawn from the user's vocabulary.
func (s *Scorer) vocabularyMatch(text string, examples []string) float64 {
	textWords := contentWords(text)
	if len(textWords) == 0 {
		return 0.3
	}

	userWords := make(map[string]bool)
	for _, example := range examples {
		for word := range contentWords(example) {
			userWords[word] = true
		}
	}
	if len(userWords) == 0 {
		return 0.3
	}

	intersection := 0
	for word := range textWords {
		if userWords[word] {
			intersection++
		}
	}
	union := len(textWords) + len(userWords) - intersection

	jaccard := 0.0
	if union > 0 {
		jaccard = float64(intersection) / float64(union)
	}
	userUsage := float64(intersection) / float64(len(textWords))

	return math.Min(1.0, 0.5*jaccard+0.5*userUsage+0.3)
}

func lengthMatch(text, contentType string, profile *models.StyleProfile) float64 {
	if profile == nil {
		return 0.7
	}
	typical := profile.TypicalLength(contentType)
	if typical <= 0 {
		return 0.7
	}

	deviation := math.Abs(float64(len(text))-typical) / typical
	if deviation <= 0.5 {
		return 1.0
	}
	// Scale down toward 0.5 as the deviation grows past the band.
	return math.Max(0.5, 1.0-(deviation-0.5)*0.5)
}

var (
	casualMarkers       = []string{"gonna", "wanna", "lol", "tbh", "kinda", "honestly", "pretty much", "yeah", "stuff", "btw"}
	professionalMarkers = []string{"moreover", "furthermore", "therefore", "regarding", "ensure", "significant", "leverage", "stakeholder"}
	technicalMarkers    = []string{"api", "database", "latency", "deploy", "algorithm", "infrastructure", "pipeline", "runtime", "benchmark"}
)

// classifyTone is a keyword heuristic, deliberately crude: it only has to
// agree with the same heuristic applied to the user's own writing.
func classifyTone(text string) string {
	lower := strings.ToLower(text)

	scores := map[string]int{}
	for _, marker := range casualMarkers {
		scores["casual"] += strings.Count(lower, marker)
	}
	for _, marker := range professionalMarkers {
		scores["professional"] += strings.Count(lower, marker)
	}
	for _, marker := range technicalMarkers {
		scores["technical"] += strings.Count(lower, marker)
	}

	best, bestScore := "neutral", 0
	for tone, score := range scores {
		if score > bestScore {
			best, bestScore = tone, score
		}
	}
	return best
}

func toneMatch(text string, profile *models.StyleProfile) float64 {
	if profile == nil || profile.Tone == "" {
		return 0.8
	}
	detected := classifyTone(text)
	switch {
	case detected == profile.Tone:
		return 1.0
	case profile.Tone == "neutral":
		return 0.8
	default:
		return 0.5
	}
}

func structureMatch(text string, profile *models.StyleProfile) float64 {
	if profile == nil || profile.AvgSentenceLength <= 0 {
		return 0.7
	}
	generated := avgSentenceLength(text)
	if generated <= 0 {
		return 0.4
	}

	ratio := generated / profile.AvgSentenceLength
	switch {
	case ratio >= 0.75 && ratio <= 1.33:
		return 1.0
	case ratio >= 0.5 && ratio <= 2.0:
		return 0.7
	default:
		return 0.4
	}
}

var punctuationMarks = []string{"!", "?", ",", ";", "—", "..."}

func punctuationMatch(text string, profile *models.StyleProfile) float64 {
	if profile == nil || len(profile.PunctuationFreq) == 0 {
		return 0.8
	}

	words := float64(len(strings.Fields(text)))
	if words == 0 {
		return 0.5
	}

	score := 1.0
	for _, mark := range punctuationMarks {
		expected, ok := profile.PunctuationFreq[mark]
		if !ok {
			continue
		}
		// Frequency per 10 words, same basis as the stored profile.
		actual := float64(strings.Count(text, mark)) / words * 10
		if math.Abs(actual-expected) >= 0.5 {
			score -= 0.1
		}
	}
	return math.Max(0.5, score)
}

func confidenceTier(exampleCount int) string {
	switch {
	case exampleCount >= 10:
		return "high"
	case exampleCount >= 3:
		return "medium"
	default:
		return "low"
	}
}

// Text helpers shared with the drift tracker's vocabulary logic.

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"to": true, "of": true, "in": true, "on": true, "at": true, "for": true,
	"with": true, "that": true, "this": true, "these": true, "those": true,
	"it": true, "its": true, "i": true, "you": true, "we": true, "they": true,
	"my": true, "your": true, "our": true, "their": true, "not": true, "no": true,
	"as": true, "by": true, "from": true, "have": true, "has": true, "had": true,
	"do": true, "does": true, "did": true, "will": true, "would": true, "so": true,
	"if": true, "then": true, "than": true, "what": true, "when": true, "how": true,
}

var wordPattern = regexp.MustCompile(`[a-zA-Z']+`)

// contentWords returns the lemmatized non-stopword vocabulary of a text.
func contentWords(text string) map[string]bool {
	words := make(map[string]bool)
	for _, raw := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if len(raw) < 3 || stopwords[raw] {
			continue
		}
		words[lemma(raw)] = true
	}
	return words
}

// lemma strips common English suffixes. Crude stemming is enough because both
// sides of every comparison go through the same function.
func lemma(word string) string {
	for _, suffix := range []string{"ing", "edly", "ed", "ly", "ies", "es", "s"} {
		if strings.HasSuffix(word, suffix) && len(word)-len(suffix) >= 3 {
			return word[:len(word)-len(suffix)]
		}
	}
	return word
}

func avgSentenceLength(text string) float64 {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return 0
	}
	total := 0
	for _, sentence := range sentences {
		total += len(strings.Fields(sentence))
	}
	return float64(total) / float64(len(sentences))
}

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

func splitSentences(text string) []string {
	var sentences []string
	for _, part := range sentenceSplit.Split(text, -1) {
		if strings.TrimSpace(part) != "" {
			sentences = append(sentences, part)
		}
	}
	return sentences
}
