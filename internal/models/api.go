package models

// Candidate is a piece of content the recommender can rank.
type Candidate struct {
	ID         string  `json:"id" binding:"required"`
	Author     string  `json:"author"`
	Text       string  `json:"text"`
	Engagement int     `json:"engagement"`
	AgeHours   float64 `json:"age_hours"`
}

// RankedCandidate is one ranking result.
type RankedCandidate struct {
	Candidate Candidate `json:"candidate"`
	Score     float64   `json:"score"`
	Reason    string    `json:"reason"`
}

type FeedbackRequest struct {
	UserID         string   `json:"user_id" binding:"required"`
	CandidateID    string   `json:"candidate_id" binding:"required"`
	Author         string   `json:"author"`
	CandidateText  string   `json:"candidate_text"`
	PredictedScore float64  `json:"predicted_score"`
	Decision       string   `json:"decision" binding:"required"`
	Reasons        []string `json:"reasons"`
	Likes          int      `json:"likes"`
	Replies        int      `json:"replies"`
}

type OutcomeRequest struct {
	EventID string `json:"event_id" binding:"required"`
	Likes   int    `json:"likes" binding:"gte=0"`
	Replies int    `json:"replies" binding:"gte=0"`
}

type EditFeedbackRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	ContentType string `json:"content_type"`
	Original    string `json:"original" binding:"required"`
	Edited      string `json:"edited" binding:"required"`
}

type TextFeedbackRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	Content string `json:"content" binding:"required"`
}

type RankRequest struct {
	UserID     string      `json:"user_id" binding:"required"`
	Candidates []Candidate `json:"candidates" binding:"required"`
	Limit      int         `json:"limit"`
}

type RankResponse struct {
	Results        []RankedCandidate `json:"results"`
	Fallback       bool              `json:"fallback"`
	ResponseTimeMs int               `json:"response_time_ms"`
}

type RejectionRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	CandidateID string `json:"candidate_id" binding:"required"`
	Author      string `json:"author"`
	Text        string `json:"text"`
	Reason      string `json:"reason" binding:"required"`
}

type RemovePatternRequest struct {
	Phrase string `json:"phrase" binding:"required"`
}

type ScoreRequest struct {
	UserID      string   `json:"user_id" binding:"required"`
	Text        string   `json:"text" binding:"required"`
	ContentType string   `json:"content_type"`
	Examples    []string `json:"examples"`
}

type SnapshotRequest struct {
	Profile *StyleProfile `json:"profile" binding:"required"`
	Trigger string        `json:"trigger"`
}

type RollbackRequest struct {
	SnapshotID string `json:"snapshot_id" binding:"required"`
}

type GradeRequest struct {
	UserID      string   `json:"user_id" binding:"required"`
	Text        string   `json:"text" binding:"required"`
	ContentType string   `json:"content_type"`
	Examples    []string `json:"examples"`
	MaxAttempts int      `json:"max_attempts"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}
