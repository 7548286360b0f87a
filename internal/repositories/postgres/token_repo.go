package postgres

import (
	"context"
	"errors"

	"github.com/voxhire/voxhire/internal/models"
	"github.com/voxhire/voxhire/internal/utils"
	"gorm.io/gorm"
)

type TokenRepository interface {
	Insert(ctx context.Context, t *models.Token) error
	InsertBatch(ctx context.Context, ts []models.Token) error
	GetByID(ctx context.Context, id string) (*models.Token, error)
	GetByValue(ctx context.Context, tokenValue string) (*models.Token, error)
	ListByInterview(ctx context.Context, interviewID string) ([]models.Token, error)

	// ConsumeAttempt increments the attempt counter and mirrors the legacy
	// is_used flag in one conditional statement. It reports false when the
	// token was already exhausted, so two near-simultaneous callers can
	// never over-consume.
	ConsumeAttempt(ctx context.Context, tokenID string) (bool, error)
}

type tokenRepo struct {
	db *gorm.DB
}

func NewTokenRepo(db *gorm.DB) TokenRepository {
	return &tokenRepo{db: db}
}

func (r *tokenRepo) Insert(ctx context.Context, t *models.Token) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *tokenRepo) InsertBatch(ctx context.Context, ts []models.Token) error {
	if len(ts) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&ts).Error
}

func (r *tokenRepo) GetByID(ctx context.Context, id string) (*models.Token, error) {
	var row models.Token
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *tokenRepo) GetByValue(ctx context.Context, tokenValue string) (*models.Token, error) {
	var row models.Token
	err := r.db.WithContext(ctx).Where("token_value = ?", tokenValue).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *tokenRepo) ListByInterview(ctx context.Context, interviewID string) ([]models.Token, error) {
	var rows []models.Token
	err := r.db.WithContext(ctx).
		Where("interview_id = ?", interviewID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

func (r *tokenRepo) ConsumeAttempt(ctx context.Context, tokenID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Token{}).
		Where("id = ? AND current_attempts < max_attempts", tokenID).
		Updates(map[string]any{
			"current_attempts": gorm.Expr("current_attempts + 1"),
			"is_used":          true,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
