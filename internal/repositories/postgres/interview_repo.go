package postgres

import (
	"context"
	"errors"

	"github.com/voxhire/voxhire/internal/models"
	"github.com/voxhire/voxhire/internal/utils"
	"gorm.io/gorm"
)

type InterviewRepository interface {
	GetByID(ctx context.Context, id string) (*models.Interview, error)
	GetOwned(ctx context.Context, id, ownerID string) (*models.Interview, error)
}

type interviewRepo struct {
	db *gorm.DB
}

func NewInterviewRepo(db *gorm.DB) InterviewRepository {
	return &interviewRepo{db: db}
}

func (r *interviewRepo) GetByID(ctx context.Context, id string) (*models.Interview, error) {
	var row models.Interview
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *interviewRepo) GetOwned(ctx context.Context, id, ownerID string) (*models.Interview, error) {
	var row models.Interview
	err := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

type QuestionRepository interface {
	GetByID(ctx context.Context, id string) (*models.Question, error)
	ListByInterview(ctx context.Context, interviewID string) ([]models.Question, error)
}

type questionRepo struct {
	db *gorm.DB
}

func NewQuestionRepo(db *gorm.DB) QuestionRepository {
	return &questionRepo{db: db}
}

func (r *questionRepo) GetByID(ctx context.Context, id string) (*models.Question, error) {
	var row models.Question
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *questionRepo) ListByInterview(ctx context.Context, interviewID string) ([]models.Question, error) {
	var rows []models.Question
	err := r.db.WithContext(ctx).
		Where("interview_id = ?", interviewID).
		Order("position ASC").
		Find(&rows).Error
	return rows, err
}
