package models

import (
	"time"

	"gorm.io/datatypes"
)

// Recording is one candidate's audio answer to one question. Transcription
// and analysis are tracked independently: analysis may only leave pending
// once transcription is terminal.
type Recording struct {
	ID         string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SessionID  string `gorm:"column:session_id;type:uuid;index" json:"session_id"`
	QuestionID string `gorm:"column:question_id;type:uuid;index" json:"question_id"`

	FilePath    string      `gorm:"column:file_path;type:text" json:"file_path"`
	FileSize    int64       `gorm:"column:file_size;type:bigint" json:"file_size"`
	StorageType StorageType `gorm:"column:storage_type;type:text;default:local" json:"storage_type"`

	TranscriptionStatus TranscriptionStatus `gorm:"column:transcription_status;type:text;default:pending;index" json:"transcription_status"`
	Transcript          datatypes.JSON      `gorm:"column:transcript;type:jsonb" json:"transcript,omitempty"`
	TranscriptionError  string              `gorm:"column:transcription_error;type:text" json:"transcription_error,omitempty"`

	RetryCount  int        `gorm:"column:retry_count;type:integer;default:0" json:"retry_count"`
	NextRetryAt *time.Time `gorm:"column:next_retry_at;type:timestamptz" json:"next_retry_at,omitempty"`

	AnalysisStatus AnalysisStatus `gorm:"column:analysis_status;type:text;default:pending" json:"analysis_status"`
	AnalysisError  string         `gorm:"column:analysis_error;type:text" json:"analysis_error,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
}

func (Recording) TableName() string { return "recordings" }

// Retryable reports whether a failed recording still has retry budget left.
func (r *Recording) Retryable(ceiling int) bool {
	return r.TranscriptionStatus == TranscriptionFailed && r.RetryCount < ceiling
}
