package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/voxhire/voxhire/internal/models"
	"github.com/voxhire/voxhire/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type AssessmentRepository interface {
	// Upsert replaces any existing assessment for the session, so a
	// force-reanalyze keeps exactly one document per session.
	Upsert(ctx context.Context, a *models.Assessment) error
	GetBySessionID(ctx context.Context, sessionID string) (*models.Assessment, error)
}

type assessmentRepo struct {
	col *mongo.Collection
}

func NewAssessmentRepo(db *mongo.Database) AssessmentRepository {
	return &assessmentRepo{col: db.Collection("assessments")}
}

func (r *assessmentRepo) Upsert(ctx context.Context, a *models.Assessment) error {
	if a.AnalyzedAt.IsZero() {
		a.AnalyzedAt = time.Now().UTC()
	}
	_, err := r.col.ReplaceOne(ctx,
		bson.M{"session_id": a.SessionID},
		a,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (r *assessmentRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.Assessment, error) {
	var a models.Assessment
	err := r.col.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	return &a, err
}
