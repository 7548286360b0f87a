package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/voxhire/voxhire/internal/models"
	pgrepo "github.com/voxhire/voxhire/internal/repositories/postgres"
	"github.com/voxhire/voxhire/internal/utils"
)

const maxBulkTokens = 100

// VerifyResult reports the outcome of checking one token value.
type VerifyResult struct {
	Status      models.TokenVerdict `json:"status"`
	InterviewID string              `json:"interview_id,omitempty"`
	Token       *models.Token       `json:"-"`
}

func (r *VerifyResult) Valid() bool { return r.Status == models.TokenValid }

type TokenService interface {
	Issue(ctx context.Context, interviewID, candidateName string, expiresAt *time.Time, maxAttempts int) (*models.Token, error)
	IssueBulk(ctx context.Context, interviewID string, count int) ([]models.Token, error)
	ListByInterview(ctx context.Context, interviewID string) ([]models.Token, error)

	// Verify checks existence, expiry, attempt budget, and (optionally) the
	// legacy used flag, in that order. It never consumes an attempt.
	Verify(ctx context.Context, tokenValue string, checkUsed bool) (*VerifyResult, error)

	// ConsumeAttempt atomically spends one attempt and opens a new candidate
	// session. Under concurrent calls at the attempt limit, exactly the
	// remaining budget succeeds; the rest get ATTEMPTS_EXCEEDED.
	ConsumeAttempt(ctx context.Context, token *models.Token) (*models.CandidateSession, error)
}

type tokenService struct {
	tokens     pgrepo.TokenRepository
	sessions   pgrepo.SessionRepository
	interviews pgrepo.InterviewRepository
	log        *logrus.Logger
}

func NewTokenService(tokens pgrepo.TokenRepository, sessions pgrepo.SessionRepository, interviews pgrepo.InterviewRepository, log *logrus.Logger) TokenService {
	if log == nil {
		log = logrus.New()
	}
	return &tokenService{tokens: tokens, sessions: sessions, interviews: interviews, log: log}
}

func (s *tokenService) Issue(ctx context.Context, interviewID, candidateName string, expiresAt *time.Time, maxAttempts int) (*models.Token, error) {
	const op = "TokenService.Issue"

	if interviewID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "interview_id is required", nil)
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if _, err := s.interviews.GetByID(ctx, interviewID); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "interview not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load interview", err)
	}

	t := &models.Token{
		ID:            uuid.NewString(),
		InterviewID:   interviewID,
		TokenValue:    uuid.NewString(),
		CandidateName: candidateName,
		ExpiresAt:     expiresAt,
		MaxAttempts:   maxAttempts,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.tokens.Insert(ctx, t); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create token", err)
	}

	s.log.WithFields(logrus.Fields{
		"token_id":     t.ID,
		"interview_id": interviewID,
		"max_attempts": maxAttempts,
	}).Info("token issued")
	return t, nil
}

func (s *tokenService) IssueBulk(ctx context.Context, interviewID string, count int) ([]models.Token, error) {
	const op = "TokenService.IssueBulk"

	if interviewID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "interview_id is required", nil)
	}
	if count < 1 {
		count = 1
	}
	if count > maxBulkTokens {
		count = maxBulkTokens
	}
	if _, err := s.interviews.GetByID(ctx, interviewID); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "interview not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load interview", err)
	}

	now := time.Now().UTC()
	ts := make([]models.Token, count)
	for i := range ts {
		ts[i] = models.Token{
			ID:          uuid.NewString(),
			InterviewID: interviewID,
			TokenValue:  uuid.NewString(),
			MaxAttempts: 1,
			CreatedAt:   now,
		}
	}
	if err := s.tokens.InsertBatch(ctx, ts); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create tokens", err)
	}
	return ts, nil
}

func (s *tokenService) ListByInterview(ctx context.Context, interviewID string) ([]models.Token, error) {
	const op = "TokenService.ListByInterview"

	rows, err := s.tokens.ListByInterview(ctx, interviewID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list tokens", err)
	}
	return rows, nil
}

func (s *tokenService) Verify(ctx context.Context, tokenValue string, checkUsed bool) (*VerifyResult, error) {
	const op = "TokenService.Verify"

	if tokenValue == "" {
		return &VerifyResult{Status: models.TokenInvalid}, nil
	}

	t, err := s.tokens.GetByValue(ctx, tokenValue)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			s.log.WithField("token", tokenValue).Info("invalid token attempted")
			return &VerifyResult{Status: models.TokenInvalid}, nil
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load token", err)
	}

	log := s.log.WithFields(logrus.Fields{"token_id": t.ID, "interview_id": t.InterviewID})

	if t.ExpiredAt(time.Now().UTC()) {
		log.Info("expired token attempted")
		return &VerifyResult{Status: models.TokenExpired}, nil
	}
	if t.Exhausted() {
		log.WithFields(logrus.Fields{
			"attempts":     t.CurrentAttempts,
			"max_attempts": t.MaxAttempts,
		}).Info("token attempt budget exhausted")
		return &VerifyResult{Status: models.TokenAttemptsExceeded}, nil
	}
	if checkUsed && t.IsUsed {
		log.Info("used token attempted")
		return &VerifyResult{Status: models.TokenUsed}, nil
	}

	return &VerifyResult{Status: models.TokenValid, InterviewID: t.InterviewID, Token: t}, nil
}

func (s *tokenService) ConsumeAttempt(ctx context.Context, token *models.Token) (*models.CandidateSession, error) {
	const op = "TokenService.ConsumeAttempt"

	if token == nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "token is required", nil)
	}

	ok, err := s.tokens.ConsumeAttempt(ctx, token.ID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to consume attempt", err)
	}
	if !ok {
		return nil, utils.E(utils.CodeAttemptsExceeded, op, "maximum session attempts exceeded for this token", nil)
	}

	session := &models.CandidateSession{
		ID:          uuid.NewString(),
		TokenID:     token.ID,
		InterviewID: token.InterviewID,
		StartTime:   time.Now().UTC(),
		Stage:       models.StageAwaitingTranscription,
	}
	if err := s.sessions.Insert(ctx, session); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create session", err)
	}

	s.log.WithFields(logrus.Fields{
		"session_id": session.ID,
		"token_id":   token.ID,
	}).Info("session started")
	return session, nil
}
