package models

import "time"

// LegacyTokenTTL applies to tokens issued before expiry tracking existed
// (ExpiresAt unset): they expire 7 days after creation.
const LegacyTokenTTL = 7 * 24 * time.Hour

// Token is a candidate's access credential to one interview. It is mutated
// only when a session starts, via a single conditional update on the attempt
// counter.
type Token struct {
	ID          string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	InterviewID string `gorm:"column:interview_id;type:uuid;index" json:"interview_id"`
	TokenValue  string `gorm:"column:token_value;type:text;uniqueIndex" json:"token_value"`

	CandidateName string `gorm:"column:candidate_name;type:text" json:"candidate_name,omitempty"`

	ExpiresAt *time.Time `gorm:"column:expires_at;type:timestamptz" json:"expires_at,omitempty"`

	MaxAttempts     int `gorm:"column:max_attempts;type:integer;default:1" json:"max_attempts"`
	CurrentAttempts int `gorm:"column:current_attempts;type:integer;default:0" json:"current_attempts"`

	// IsUsed predates the attempt counter; it is mirrored on every consume
	// for older clients that still read it.
	IsUsed bool `gorm:"column:is_used;default:false" json:"is_used"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
}

func (Token) TableName() string { return "tokens" }

// ExpiredAt reports whether the token is expired at the given instant,
// falling back to the legacy creation-time window when ExpiresAt is unset.
func (t *Token) ExpiredAt(now time.Time) bool {
	if t.ExpiresAt != nil {
		return t.ExpiresAt.Before(now)
	}
	return t.CreatedAt.Add(LegacyTokenTTL).Before(now)
}

// Exhausted reports whether every allowed attempt has been consumed.
func (t *Token) Exhausted() bool {
	return t.CurrentAttempts >= t.MaxAttempts
}

// TokenVerdict is the outcome of verifying a token value.
type TokenVerdict string

const (
	TokenInvalid          TokenVerdict = "invalid"
	TokenExpired          TokenVerdict = "expired"
	TokenAttemptsExceeded TokenVerdict = "attempts_exceeded"
	TokenUsed             TokenVerdict = "used"
	TokenValid            TokenVerdict = "valid"
)
