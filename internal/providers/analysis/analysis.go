package analysis

import (
	"context"

	"github.com/voxhire/voxhire/internal/models"
)

// Response is one (question, transcript, timing) tuple, given to the engine
// in question order.
type Response struct {
	QuestionID          string  `json:"question_id"`
	QuestionText        string  `json:"question_text"`
	QuestionCategory    string  `json:"question_category,omitempty"`
	Transcript          string  `json:"transcript"`
	WordCount           int     `json:"word_count"`
	DurationSeconds     float64 `json:"duration_seconds"`
	SpeakingRate        float64 `json:"speaking_rate"` // words per minute
	PauseCount          int     `json:"pause_count"`
	LongestPauseSeconds float64 `json:"longest_pause_seconds"`
}

// SessionContext accompanies the responses so the engine can reason across
// the whole session.
type SessionContext struct {
	SessionID     string                `json:"session_id"`
	InterviewID   string                `json:"interview_id"`
	CandidateName string                `json:"candidate_name,omitempty"`
	Metrics       models.SessionMetrics `json:"metrics"`
}

// Engine produces one structured scored assessment from the full set of
// responses. Callers issue exactly one Analyze per session per attempt.
type Engine interface {
	Analyze(ctx context.Context, sc SessionContext, responses []Response) (*models.AssessmentResult, error)
	ModelName() string
	Close() error
}
