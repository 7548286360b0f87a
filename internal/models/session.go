package models

import "time"

// CandidateSession is one run of a candidate through an interview. EndTime is
// set once on completion; the Stage field drives the batch orchestration
// state machine afterwards.
type CandidateSession struct {
	ID          string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TokenID     string `gorm:"column:token_id;type:uuid;index" json:"token_id"`
	InterviewID string `gorm:"column:interview_id;type:uuid;index" json:"interview_id"`

	StartTime time.Time  `gorm:"column:start_time;type:timestamptz" json:"start_time"`
	EndTime   *time.Time `gorm:"column:end_time;type:timestamptz" json:"end_time,omitempty"`

	Stage SessionStage `gorm:"column:stage;type:text;default:awaiting_transcription" json:"stage"`

	// ProcessingError holds the truncated reason for transcription_incomplete
	// or analysis_failed stages.
	ProcessingError string `gorm:"column:processing_error;type:text" json:"processing_error,omitempty"`

	AnalyzedAt *time.Time `gorm:"column:analyzed_at;type:timestamptz" json:"analyzed_at,omitempty"`
}

func (CandidateSession) TableName() string { return "candidate_sessions" }

// Completed reports whether the candidate finished answering.
func (s *CandidateSession) Completed() bool { return s.EndTime != nil }
