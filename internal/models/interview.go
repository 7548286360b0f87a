package models

import "time"

type Interview struct {
	ID      string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OwnerID string `gorm:"column:owner_id;type:uuid;index" json:"owner_id"`
	Title   string `gorm:"column:title;type:text" json:"title"`
	Slug    string `gorm:"column:slug;type:text;uniqueIndex" json:"slug"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
}

func (Interview) TableName() string { return "interviews" }

type Question struct {
	ID          string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	InterviewID string `gorm:"column:interview_id;type:uuid;index" json:"interview_id"`
	Text        string `gorm:"column:text;type:text" json:"text"`
	Category    string `gorm:"column:category;type:text" json:"category"`

	// Position orders questions within an interview; the combined analysis
	// payload is rebuilt in this order, never in transcription-completion order.
	Position int `gorm:"column:position;type:integer" json:"position"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
}

func (Question) TableName() string { return "questions" }
