package authenticity

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voiceloop/backend/internal/banned"
	"github.com/voiceloop/backend/internal/config"
	"github.com/voiceloop/backend/internal/oracle"
)

// scriptedCompleter returns queued responses in order; a nil entry errors.
type scriptedCompleter struct {
	responses []string
	errs      []error
	calls     int
}

func (s *scriptedCompleter) Complete(ctx context.Context, req oracle.CompletionRequest) (string, error) {
	idx := s.calls
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return "", s.errs[idx]
	}
	if idx < len(s.responses) {
		return s.responses[idx], nil
	}
	return "", oracle.ErrUnavailable
}

const passingGrade = `{"scores": {"voice": 8, "tone": 8, "vocabulary": 7, "structure": 8, "authenticity": 9},
"issues": [], "suggestions": [], "detected_phrases": []}`

const failingGrade = `{"scores": {"voice": 4, "tone": 5, "vocabulary": 4, "structure": 6, "authenticity": 3},
"issues": ["sounds generic"], "suggestions": ["use their vocabulary"], "detected_phrases": ["thrilled to announce"]}`

func newTestGrader(completer oracle.Completer) *Grader {
	registry := banned.NewRegistry(&fakePatternRepo{}, nil, logrus.New())
	scorer := NewScorer(registry, logrus.New())
	return NewGrader(completer, scorer, config.DefaultLearning(), logrus.New())
}

func TestGradeAndImprove_PassesFirstAttempt(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{passingGrade}}
	grader := newTestGrader(completer)

	text, grade := grader.GradeAndImprove(context.Background(), "user-1",
		"original text", "post", userProfile(), userExamples(), 3)

	assert.Equal(t, "original text", text)
	assert.True(t, grade.Pass)
	assert.Equal(t, 1, grade.Attempts)
	assert.False(t, grade.UsedFallback)
	assert.InDelta(t, 8.0, grade.Overall, 1e-9)
	assert.Equal(t, 1, completer.calls)
}

func TestGradeAndImprove_ImprovesUntilPass(t *testing.T) {
	// grade fail, rewrite, grade fail, rewrite, grade pass
	completer := &scriptedCompleter{responses: []string{
		failingGrade,
		"first rewrite",
		failingGrade,
		"second rewrite",
		passingGrade,
	}}
	grader := newTestGrader(completer)

	text, grade := grader.GradeAndImprove(context.Background(), "user-1",
		"original text", "post", userProfile(), userExamples(), 3)

	assert.Equal(t, "second rewrite", text)
	assert.True(t, grade.Pass)
	assert.Equal(t, 3, grade.Attempts)
	assert.Equal(t, 5, completer.calls)
}

func TestGradeAndImprove_ExhaustsAttempts(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{
		failingGrade,
		"first rewrite",
		failingGrade,
		"second rewrite",
		failingGrade,
	}}
	grader := newTestGrader(completer)

	text, grade := grader.GradeAndImprove(context.Background(), "user-1",
		"original text", "post", userProfile(), userExamples(), 3)

	// Best effort: the last rewrite comes back with its failing grade
	assert.Equal(t, "second rewrite", text)
	assert.False(t, grade.Pass)
	assert.Equal(t, 3, grade.Attempts)
	assert.Contains(t, grade.DetectedPhrases, "thrilled to announce")
}

func TestGradeAndImprove_OracleDownFallsBackToScorer(t *testing.T) {
	completer := &scriptedCompleter{errs: []error{oracle.ErrUnavailable}}
	grader := newTestGrader(completer)

	text := "Batching writes through the pipeline cut our database latency, and the benchmark shows throughput doubled."
	returned, grade := grader.GradeAndImprove(context.Background(), "user-1",
		text, "post", userProfile(), userExamples(), 3)

	assert.Equal(t, text, returned)
	require.NotNil(t, grade)
	assert.True(t, grade.UsedFallback)
	// Clean on-voice text passes the rule-based fallback
	assert.True(t, grade.Pass)
	assert.Greater(t, grade.Overall, 6.0)
}

func TestGradeAndImprove_MalformedGradeFallsBack(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{"the text feels fine to me, maybe a 7?"}}
	grader := newTestGrader(completer)

	_, grade := grader.GradeAndImprove(context.Background(), "user-1",
		"original text", "post", userProfile(), userExamples(), 3)

	assert.True(t, grade.UsedFallback)
}

func TestGradeAndImprove_NilOracleNeverPanics(t *testing.T) {
	grader := newTestGrader(nil)

	text, grade := grader.GradeAndImprove(context.Background(), "user-1",
		"original text", "post", userProfile(), userExamples(), 0)

	assert.Equal(t, "original text", text)
	assert.True(t, grade.UsedFallback)
	assert.Equal(t, 1, grade.Attempts)
}

func TestGradeAndImprove_RewriteFailureKeepsLastGrade(t *testing.T) {
	completer := &scriptedCompleter{
		responses: []string{failingGrade, ""},
		errs:      []error{nil, oracle.ErrUnavailable},
	}
	grader := newTestGrader(completer)

	text, grade := grader.GradeAndImprove(context.Background(), "user-1",
		"original text", "post", userProfile(), userExamples(), 3)

	assert.Equal(t, "original text", text)
	assert.False(t, grade.Pass)
	assert.False(t, grade.UsedFallback)
	assert.Equal(t, 1, grade.Attempts)
}
