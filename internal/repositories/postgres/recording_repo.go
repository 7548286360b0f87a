package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/voxhire/voxhire/internal/models"
	"github.com/voxhire/voxhire/internal/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type RecordingRepository interface {
	Insert(ctx context.Context, rec *models.Recording) error
	GetByID(ctx context.Context, id string) (*models.Recording, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.Recording, error)
	Delete(ctx context.Context, id string) error

	// ClaimTranscription moves a recording from pending or failed into
	// processing. Zero rows affected means another worker already claimed it
	// or it has reached a terminal completed state; callers skip it.
	ClaimTranscription(ctx context.Context, id string) (bool, error)

	MarkTranscribed(ctx context.Context, id string, transcript datatypes.JSON) error
	MarkTranscriptionFailed(ctx context.Context, id string, msg string, retryCount int, nextRetryAt *time.Time) error

	SetAnalysisStatus(ctx context.Context, ids []string, status models.AnalysisStatus, msg string) error

	// ListDueRetries returns failed recordings with retry budget left whose
	// backoff has elapsed.
	ListDueRetries(ctx context.Context, now time.Time, ceiling, limit int) ([]models.Recording, error)
}

type recordingRepo struct {
	db *gorm.DB
}

func NewRecordingRepo(db *gorm.DB) RecordingRepository {
	return &recordingRepo{db: db}
}

func (r *recordingRepo) Insert(ctx context.Context, rec *models.Recording) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.TranscriptionStatus == "" {
		rec.TranscriptionStatus = models.TranscriptionPending
	}
	if rec.AnalysisStatus == "" {
		rec.AnalysisStatus = models.AnalysisPending
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *recordingRepo) GetByID(ctx context.Context, id string) (*models.Recording, error) {
	var row models.Recording
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *recordingRepo) ListBySession(ctx context.Context, sessionID string) ([]models.Recording, error) {
	var rows []models.Recording
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *recordingRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Recording{}).Error
}

func (r *recordingRepo) ClaimTranscription(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Recording{}).
		Where("id = ? AND transcription_status IN ?", id,
			[]models.TranscriptionStatus{models.TranscriptionPending, models.TranscriptionFailed}).
		Update("transcription_status", models.TranscriptionProcessing)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *recordingRepo) MarkTranscribed(ctx context.Context, id string, transcript datatypes.JSON) error {
	return r.db.WithContext(ctx).
		Model(&models.Recording{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"transcription_status": models.TranscriptionCompleted,
			"transcript":           transcript,
			"transcription_error":  "",
			"next_retry_at":        nil,
		}).Error
}

func (r *recordingRepo) MarkTranscriptionFailed(ctx context.Context, id string, msg string, retryCount int, nextRetryAt *time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Recording{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"transcription_status": models.TranscriptionFailed,
			"transcription_error":  utils.Truncate(msg, utils.MaxStoredErrorLen),
			"retry_count":          retryCount,
			"next_retry_at":        nextRetryAt,
		}).Error
}

func (r *recordingRepo) SetAnalysisStatus(ctx context.Context, ids []string, status models.AnalysisStatus, msg string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Recording{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"analysis_status": status,
			"analysis_error":  utils.Truncate(msg, utils.MaxStoredErrorLen),
		}).Error
}

func (r *recordingRepo) ListDueRetries(ctx context.Context, now time.Time, ceiling, limit int) ([]models.Recording, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Recording
	err := r.db.WithContext(ctx).
		Where("transcription_status = ? AND retry_count < ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?",
			models.TranscriptionFailed, ceiling, now.UTC()).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
