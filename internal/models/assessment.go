package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SessionMetrics are the session-level aggregates computed from transcripts
// before the combined analysis call.
type SessionMetrics struct {
	TotalQuestions       int     `bson:"total_questions" json:"total_questions"`
	TotalWords           int     `bson:"total_words" json:"total_words"`
	TotalDurationSeconds float64 `bson:"total_duration_seconds" json:"total_duration_seconds"`
	MeanSpeakingRate     float64 `bson:"mean_speaking_rate" json:"mean_speaking_rate"` // words per minute
	AverageResponseWords float64 `bson:"average_response_words" json:"average_response_words"`
}

// QuestionAssessment is the engine's score for one answer.
type QuestionAssessment struct {
	QuestionID string  `bson:"question_id" json:"question_id"`
	Score      float64 `bson:"score" json:"score"`
	Feedback   string  `bson:"feedback" json:"feedback"`
}

// AssessmentResult is the structured output of one combined analysis call.
type AssessmentResult struct {
	OverallScore   float64              `bson:"overall_score" json:"overall_score"`
	Recommendation string               `bson:"recommendation" json:"recommendation"` // hire|no_hire|requires_review
	Summary        string               `bson:"summary" json:"summary"`
	Strengths      []string             `bson:"strengths" json:"strengths"`
	Improvements   []string             `bson:"improvements" json:"improvements"`
	PerQuestion    []QuestionAssessment `bson:"per_question" json:"per_question"`

	// RawOutput keeps the model's unparsed reply for debugging.
	RawOutput string `bson:"raw_output,omitempty" json:"-"`
}

// Assessment is the persisted document for one session's analysis. Exactly
// one exists per session unless a force-reanalyze replaces it.
type Assessment struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID   string             `bson:"session_id" json:"session_id"`
	InterviewID string             `bson:"interview_id" json:"interview_id"`

	Metrics SessionMetrics   `bson:"metrics" json:"metrics"`
	Result  AssessmentResult `bson:"result" json:"result"`

	ModelName  string    `bson:"model_name" json:"model_name"`
	AnalyzedAt time.Time `bson:"analyzed_at" json:"analyzed_at"`
}
