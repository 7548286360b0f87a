package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/voxhire/voxhire/internal/models"
	"github.com/voxhire/voxhire/internal/utils"
	"gorm.io/gorm"
)

type SessionRepository interface {
	Insert(ctx context.Context, s *models.CandidateSession) error
	GetByID(ctx context.Context, id string) (*models.CandidateSession, error)
	LatestByToken(ctx context.Context, tokenID string) (*models.CandidateSession, error)

	// SetEndTime records completion once; it reports false when the session
	// already ended, which callers treat as an idempotent no-op.
	SetEndTime(ctx context.Context, id string, at time.Time) (bool, error)

	// ClaimStage advances the orchestration stage only when the current stage
	// is one of from. Zero rows affected means another worker holds the
	// session or the transition is not legal from the persisted stage.
	ClaimStage(ctx context.Context, id string, from []models.SessionStage, to models.SessionStage) (bool, error)

	SetStage(ctx context.Context, id string, to models.SessionStage, processingError string) error
	MarkAnalyzed(ctx context.Context, id string, at time.Time) error
}

type sessionRepo struct {
	db *gorm.DB
}

func NewSessionRepo(db *gorm.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) Insert(ctx context.Context, s *models.CandidateSession) error {
	if s.StartTime.IsZero() {
		s.StartTime = time.Now().UTC()
	}
	if s.Stage == "" {
		s.Stage = models.StageAwaitingTranscription
	}
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *sessionRepo) GetByID(ctx context.Context, id string) (*models.CandidateSession, error) {
	var row models.CandidateSession
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *sessionRepo) LatestByToken(ctx context.Context, tokenID string) (*models.CandidateSession, error) {
	var row models.CandidateSession
	err := r.db.WithContext(ctx).
		Where("token_id = ?", tokenID).
		Order("start_time DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *sessionRepo) SetEndTime(ctx context.Context, id string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CandidateSession{}).
		Where("id = ? AND end_time IS NULL", id).
		Update("end_time", at.UTC())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *sessionRepo) ClaimStage(ctx context.Context, id string, from []models.SessionStage, to models.SessionStage) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CandidateSession{}).
		Where("id = ? AND stage IN ?", id, from).
		Updates(map[string]any{"stage": to, "processing_error": ""})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *sessionRepo) SetStage(ctx context.Context, id string, to models.SessionStage, processingError string) error {
	return r.db.WithContext(ctx).
		Model(&models.CandidateSession{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"stage":            to,
			"processing_error": utils.Truncate(processingError, utils.MaxStoredErrorLen),
		}).Error
}

func (r *sessionRepo) MarkAnalyzed(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.CandidateSession{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"stage":            models.StageAnalyzed,
			"processing_error": "",
			"analyzed_at":      at.UTC(),
		}).Error
}
