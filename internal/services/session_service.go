package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/voxhire/voxhire/internal/cache"
	"github.com/voxhire/voxhire/internal/models"
	pgrepo "github.com/voxhire/voxhire/internal/repositories/postgres"
	"github.com/voxhire/voxhire/internal/utils"
	"github.com/voxhire/voxhire/internal/workers"
)

// SessionStatus is the snapshot candidates poll while the background
// pipeline works through their recordings.
type SessionStatus struct {
	SessionID string              `json:"session_id"`
	Stage     models.SessionStage `json:"stage"`
	Completed bool                `json:"completed"`

	TotalRecordings    int     `json:"total_recordings"`
	Transcribed        int     `json:"transcribed"`
	Processing         int     `json:"processing"`
	Pending            int     `json:"pending"`
	Failed             int     `json:"failed"`
	TranscribedPercent float64 `json:"transcribed_percent"`

	ProcessingError string     `json:"processing_error,omitempty"`
	AnalyzedAt      *time.Time `json:"analyzed_at,omitempty"`
}

type SessionService interface {
	// Start verifies and consumes one token attempt. Failures map to the
	// token error codes; they are non-retryable for the caller.
	Start(ctx context.Context, tokenValue string) (*models.CandidateSession, error)

	Get(ctx context.Context, sessionID string) (*models.CandidateSession, error)

	// Complete sets the end time (idempotently) and enqueues batch
	// processing. It never waits for transcription or analysis.
	Complete(ctx context.Context, sessionID string) error
	CompleteByToken(ctx context.Context, tokenValue string) error

	Status(ctx context.Context, sessionID string) (*SessionStatus, error)
}

type sessionService struct {
	tokens     TokenService
	tokenRepo  pgrepo.TokenRepository
	sessions   pgrepo.SessionRepository
	recordings pgrepo.RecordingRepository
	queue      workers.Enqueuer
	status     cache.Cache
	statusTTL  time.Duration
	log        *logrus.Logger
}

func NewSessionService(
	tokens TokenService,
	tokenRepo pgrepo.TokenRepository,
	sessions pgrepo.SessionRepository,
	recordings pgrepo.RecordingRepository,
	queue workers.Enqueuer,
	status cache.Cache,
	statusTTL time.Duration,
	log *logrus.Logger,
) SessionService {
	if statusTTL <= 0 {
		statusTTL = 5 * time.Second
	}
	if log == nil {
		log = logrus.New()
	}
	return &sessionService{
		tokens:     tokens,
		tokenRepo:  tokenRepo,
		sessions:   sessions,
		recordings: recordings,
		queue:      queue,
		status:     status,
		statusTTL:  statusTTL,
		log:        log,
	}
}

func (s *sessionService) Start(ctx context.Context, tokenValue string) (*models.CandidateSession, error) {
	const op = "SessionService.Start"

	vr, err := s.tokens.Verify(ctx, tokenValue, true)
	if err != nil {
		return nil, err
	}

	switch vr.Status {
	case models.TokenValid:
	case models.TokenInvalid:
		return nil, utils.E(utils.CodeTokenInvalid, op, "token not found", nil)
	case models.TokenExpired:
		return nil, utils.E(utils.CodeTokenExpired, op, "this token has expired", nil)
	case models.TokenAttemptsExceeded:
		return nil, utils.E(utils.CodeAttemptsExceeded, op, "maximum session attempts exceeded for this token", nil)
	case models.TokenUsed:
		return nil, utils.E(utils.CodeTokenUsed, op, "this token has already been used", nil)
	default:
		return nil, utils.E(utils.CodeInternal, op, "unexpected verification status", nil)
	}

	return s.tokens.ConsumeAttempt(ctx, vr.Token)
}

func (s *sessionService) Get(ctx context.Context, sessionID string) (*models.CandidateSession, error) {
	const op = "SessionService.Get"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get session", err)
	}
	return sess, nil
}

func (s *sessionService) Complete(ctx context.Context, sessionID string) error {
	const op = "SessionService.Complete"

	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	// Fail fast on empty sessions: a successful completion here would be
	// indistinguishable from a successful empty interview.
	recs, err := s.recordings.ListBySession(ctx, sess.ID)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to list recordings", err)
	}
	if len(recs) == 0 {
		return utils.E(utils.CodeNoRecordings, op, "session has no recordings", nil)
	}

	ended, err := s.sessions.SetEndTime(ctx, sess.ID, time.Now().UTC())
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to complete session", err)
	}
	if !ended {
		s.log.WithField("session_id", sess.ID).Debug("session already ended")
	}

	if err := s.queue.Enqueue(workers.Job{Kind: workers.JobBatch, SessionID: sess.ID}); err != nil {
		// End time is already persisted; the batch can be re-triggered by
		// completing again or by a force-reanalyze.
		s.log.WithError(err).WithField("session_id", sess.ID).Error("failed to enqueue batch job")
		return utils.E(utils.CodeUnavailable, op, "processing queue unavailable", err)
	}

	s.invalidateStatus(ctx, sess.ID)
	s.log.WithField("session_id", sess.ID).Info("session completed, batch queued")
	return nil
}

func (s *sessionService) CompleteByToken(ctx context.Context, tokenValue string) error {
	const op = "SessionService.CompleteByToken"

	t, err := s.tokenRepo.GetByValue(ctx, tokenValue)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeTokenInvalid, op, "token not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to load token", err)
	}

	sess, err := s.sessions.LatestByToken(ctx, t.ID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "no session found for this token", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to load session", err)
	}

	return s.Complete(ctx, sess.ID)
}

func (s *sessionService) Status(ctx context.Context, sessionID string) (*SessionStatus, error) {
	const op = "SessionService.Status"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	if s.status != nil {
		var cached SessionStatus
		if hit, err := s.status.GetJSON(ctx, cache.SessionStatusKey(sessionID), &cached); err == nil && hit {
			return &cached, nil
		}
	}

	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	recs, err := s.recordings.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list recordings", err)
	}

	st := &SessionStatus{
		SessionID:       sess.ID,
		Stage:           sess.Stage,
		Completed:       sess.Completed(),
		TotalRecordings: len(recs),
		ProcessingError: sess.ProcessingError,
		AnalyzedAt:      sess.AnalyzedAt,
	}
	for _, r := range recs {
		switch r.TranscriptionStatus {
		case models.TranscriptionCompleted:
			st.Transcribed++
		case models.TranscriptionProcessing:
			st.Processing++
		case models.TranscriptionFailed:
			st.Failed++
		default:
			st.Pending++
		}
	}
	if st.TotalRecordings > 0 {
		st.TranscribedPercent = float64(st.Transcribed) / float64(st.TotalRecordings) * 100
	}

	if s.status != nil {
		_ = s.status.SetJSON(ctx, cache.SessionStatusKey(sessionID), st, s.statusTTL)
	}
	return st, nil
}

func (s *sessionService) invalidateStatus(ctx context.Context, sessionID string) {
	if s.status != nil {
		_ = s.status.Del(ctx, cache.SessionStatusKey(sessionID))
	}
}
