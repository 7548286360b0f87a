package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/voxhire/voxhire/internal/cache"
	"github.com/voxhire/voxhire/internal/models"
	"github.com/voxhire/voxhire/internal/providers/analysis"
	"github.com/voxhire/voxhire/internal/providers/transcribe"
	mongorepo "github.com/voxhire/voxhire/internal/repositories/mongo"
	pgrepo "github.com/voxhire/voxhire/internal/repositories/postgres"
	"github.com/voxhire/voxhire/internal/utils"
)

// BatchConfig controls the orchestration policy.
type BatchConfig struct {
	// AllowPartialAnalysis lets a session with terminally failed recordings
	// proceed to analysis over the transcribed subset. When false (the
	// default) such sessions stop at transcription_incomplete.
	AllowPartialAnalysis bool
}

type BatchService interface {
	// ProcessSession runs the transcribe-all-then-analyze-once workflow.
	// Re-running on an analyzed session is a no-op unless force is set.
	ProcessSession(ctx context.Context, sessionID string, force bool) error

	Assessment(ctx context.Context, sessionID string) (*models.Assessment, error)
}

type batchService struct {
	sessions    pgrepo.SessionRepository
	recordings  pgrepo.RecordingRepository
	questions   pgrepo.QuestionRepository
	tokens      pgrepo.TokenRepository
	pipeline    RecordingService
	engine      analysis.Engine
	assessments mongorepo.AssessmentRepository
	status      cache.Cache
	cfg         BatchConfig
	log         *logrus.Logger
}

func NewBatchService(
	sessions pgrepo.SessionRepository,
	recordings pgrepo.RecordingRepository,
	questions pgrepo.QuestionRepository,
	tokens pgrepo.TokenRepository,
	pipeline RecordingService,
	engine analysis.Engine,
	assessments mongorepo.AssessmentRepository,
	status cache.Cache,
	cfg BatchConfig,
	log *logrus.Logger,
) BatchService {
	if log == nil {
		log = logrus.New()
	}
	return &batchService{
		sessions:    sessions,
		recordings:  recordings,
		questions:   questions,
		tokens:      tokens,
		pipeline:    pipeline,
		engine:      engine,
		assessments: assessments,
		status:      status,
		cfg:         cfg,
		log:         log,
	}
}

// claimable are the stages a non-forced run may take over: exactly those the
// stage machine lets advance into transcribing. Analysis failures are not
// among them; the engine call is costly, so a candidate re-completing the
// session must not re-invoke it. Recovery goes through force-reanalyze.
var claimable = func() []models.SessionStage {
	var out []models.SessionStage
	for _, st := range models.AllSessionStages {
		if st.CanAdvance(models.StageTranscribing) {
			out = append(out, st)
		}
	}
	return out
}()

func (s *batchService) ProcessSession(ctx context.Context, sessionID string, force bool) error {
	const op = "BatchService.ProcessSession"
	log := s.log.WithField("session_id", sessionID)

	recs, err := s.recordings.ListBySession(ctx, sessionID)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to list recordings", err)
	}
	if len(recs) == 0 {
		return utils.E(utils.CodeNoRecordings, op, "session has no recordings", nil)
	}

	if force {
		if err := s.sessions.SetStage(ctx, sessionID, models.StageTranscribing, ""); err != nil {
			return utils.E(utils.CodeInternal, op, "failed to reset session stage", err)
		}
	} else {
		claimed, err := s.sessions.ClaimStage(ctx, sessionID, claimable, models.StageTranscribing)
		if err != nil {
			return utils.E(utils.CodeInternal, op, "failed to claim session", err)
		}
		if !claimed {
			sess, err := s.sessions.GetByID(ctx, sessionID)
			if err != nil {
				return utils.E(utils.CodeInternal, op, "failed to load session", err)
			}
			// Analyzed sessions stay analyzed; in-flight sessions belong to
			// another worker. Either way this run has nothing to do.
			log.WithField("stage", sess.Stage).Debug("session not claimable, skipping")
			return nil
		}
	}
	s.invalidateStatus(ctx, sessionID)

	var todo []string
	for _, r := range recs {
		if r.TranscriptionStatus != models.TranscriptionCompleted {
			todo = append(todo, r.ID)
		}
	}
	if len(todo) > 0 {
		log.WithField("count", len(todo)).Info("transcribing session recordings")
		s.pipeline.TranscribeMany(ctx, todo)
	}

	recs, err = s.recordings.ListBySession(ctx, sessionID)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to reload recordings", err)
	}

	var completed []models.Recording
	var failedIDs, inflightIDs []string
	for _, r := range recs {
		switch r.TranscriptionStatus {
		case models.TranscriptionCompleted:
			completed = append(completed, r)
		case models.TranscriptionFailed:
			failedIDs = append(failedIDs, r.ID)
		default:
			inflightIDs = append(inflightIDs, r.ID)
		}
	}

	if len(inflightIDs) > 0 {
		// Another worker still holds a claim on these recordings. Hand the
		// session back instead of counting them as failures; a later run
		// picks it up once they resolve.
		if err := s.sessions.SetStage(ctx, sessionID, models.StageAwaitingTranscription, ""); err != nil {
			return utils.E(utils.CodeInternal, op, "failed to release session", err)
		}
		s.invalidateStatus(ctx, sessionID)
		log.WithField("in_flight", inflightIDs).Info("recordings still transcribing elsewhere, deferring session")
		return nil
	}

	if len(failedIDs) > 0 && (!s.cfg.AllowPartialAnalysis || len(completed) == 0) {
		msg := fmt.Sprintf("%d of %d recordings failed transcription: %s",
			len(failedIDs), len(recs), strings.Join(failedIDs, ", "))
		if err := s.sessions.SetStage(ctx, sessionID, models.StageTranscriptionIncomplete, msg); err != nil {
			return utils.E(utils.CodeInternal, op, "failed to mark session incomplete", err)
		}
		s.invalidateStatus(ctx, sessionID)
		log.WithField("failed", failedIDs).Warn("session transcription incomplete")
		return utils.E(utils.CodeTranscriptionIncomplete, op, msg, nil)
	}

	if err := s.sessions.SetStage(ctx, sessionID, models.StageReadyForAnalysis, ""); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to advance session stage", err)
	}
	return s.analyze(ctx, sessionID, completed)
}

func (s *batchService) analyze(ctx context.Context, sessionID string, completed []models.Recording) error {
	const op = "BatchService.analyze"
	log := s.log.WithField("session_id", sessionID)

	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to load session", err)
	}

	responses, metrics, err := s.buildPayload(ctx, sess, completed)
	if err != nil {
		return err
	}

	if err := s.sessions.SetStage(ctx, sessionID, models.StageAnalyzing, ""); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to advance session stage", err)
	}

	completedIDs := make([]string, len(completed))
	for i, r := range completed {
		completedIDs[i] = r.ID
	}

	sc := analysis.SessionContext{
		SessionID:   sess.ID,
		InterviewID: sess.InterviewID,
		Metrics:     metrics,
	}
	// Best effort: the candidate name only enriches the analysis context.
	if t, err := s.tokens.GetByID(ctx, sess.TokenID); err == nil {
		sc.CandidateName = t.CandidateName
	}

	// One engine call per session per attempt; per-answer calls are
	// deliberately avoided so the engine can reason across the whole session.
	log.WithField("responses", len(responses)).Info("running combined analysis")
	result, err := s.engine.Analyze(ctx, sc, responses)
	if err != nil {
		msg := utils.Truncate(err.Error(), utils.MaxStoredErrorLen)
		if serr := s.sessions.SetStage(ctx, sessionID, models.StageAnalysisFailed, msg); serr != nil {
			log.WithError(serr).Error("failed to mark analysis failure")
		}
		if serr := s.recordings.SetAnalysisStatus(ctx, completedIDs, models.AnalysisFailed, msg); serr != nil {
			log.WithError(serr).Error("failed to mark recording analysis failure")
		}
		s.invalidateStatus(ctx, sessionID)
		log.WithError(err).Error("combined analysis failed")
		return utils.E(utils.CodeAnalysisFailed, op, "analysis engine call failed", err)
	}

	now := time.Now().UTC()
	doc := &models.Assessment{
		SessionID:   sess.ID,
		InterviewID: sess.InterviewID,
		Metrics:     metrics,
		Result:      *result,
		ModelName:   s.engine.ModelName(),
		AnalyzedAt:  now,
	}
	if err := s.assessments.Upsert(ctx, doc); err != nil {
		msg := utils.Truncate(err.Error(), utils.MaxStoredErrorLen)
		if serr := s.sessions.SetStage(ctx, sessionID, models.StageAnalysisFailed, msg); serr != nil {
			log.WithError(serr).Error("failed to mark analysis failure")
		}
		s.invalidateStatus(ctx, sessionID)
		return utils.E(utils.CodeAnalysisFailed, op, "failed to persist assessment", err)
	}

	if err := s.recordings.SetAnalysisStatus(ctx, completedIDs, models.AnalysisCompleted, ""); err != nil {
		log.WithError(err).Error("failed to mark recording analysis completion")
	}
	if err := s.sessions.MarkAnalyzed(ctx, sessionID, now); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to mark session analyzed", err)
	}
	s.invalidateStatus(ctx, sessionID)

	log.WithFields(logrus.Fields{
		"score":          result.OverallScore,
		"recommendation": result.Recommendation,
	}).Info("session analyzed")
	return nil
}

// buildPayload turns completed recordings into analysis responses in
// question order, not transcription-completion order.
func (s *batchService) buildPayload(ctx context.Context, sess *models.CandidateSession, completed []models.Recording) ([]analysis.Response, models.SessionMetrics, error) {
	const op = "BatchService.buildPayload"

	questions, err := s.questions.ListByInterview(ctx, sess.InterviewID)
	if err != nil {
		return nil, models.SessionMetrics{}, utils.E(utils.CodeInternal, op, "failed to list questions", err)
	}
	position := make(map[string]int, len(questions))
	text := make(map[string]*models.Question, len(questions))
	for i := range questions {
		position[questions[i].ID] = questions[i].Position
		text[questions[i].ID] = &questions[i]
	}

	ordered := make([]models.Recording, len(completed))
	copy(ordered, completed)
	sort.SliceStable(ordered, func(i, j int) bool {
		return position[ordered[i].QuestionID] < position[ordered[j].QuestionID]
	})

	var metrics models.SessionMetrics
	responses := make([]analysis.Response, 0, len(ordered))

	for _, rec := range ordered {
		var tr transcribe.Result
		if err := json.Unmarshal(rec.Transcript, &tr); err != nil {
			return nil, models.SessionMetrics{}, utils.E(utils.CodeInternal, op,
				fmt.Sprintf("corrupt transcript for recording %s", rec.ID), err)
		}
		m := transcribe.ComputeMetrics(&tr)

		resp := analysis.Response{
			QuestionID:          rec.QuestionID,
			QuestionText:        fmt.Sprintf("Question %d", len(responses)+1),
			Transcript:          tr.Text,
			WordCount:           m.WordCount,
			DurationSeconds:     m.DurationSeconds,
			SpeakingRate:        m.SpeakingRate,
			PauseCount:          m.PauseCount,
			LongestPauseSeconds: m.LongestPauseSeconds,
		}
		if q := text[rec.QuestionID]; q != nil {
			resp.QuestionText = q.Text
			resp.QuestionCategory = q.Category
		}
		responses = append(responses, resp)

		metrics.TotalWords += m.WordCount
		metrics.TotalDurationSeconds += m.DurationSeconds
	}

	metrics.TotalQuestions = len(responses)
	if metrics.TotalDurationSeconds > 0 {
		metrics.MeanSpeakingRate = float64(metrics.TotalWords) / (metrics.TotalDurationSeconds / 60)
	}
	if metrics.TotalQuestions > 0 {
		metrics.AverageResponseWords = float64(metrics.TotalWords) / float64(metrics.TotalQuestions)
	}
	return responses, metrics, nil
}

func (s *batchService) Assessment(ctx context.Context, sessionID string) (*models.Assessment, error) {
	const op = "BatchService.Assessment"

	doc, err := s.assessments.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "no assessment for this session", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load assessment", err)
	}
	return doc, nil
}

func (s *batchService) invalidateStatus(ctx context.Context, sessionID string) {
	if s.status != nil {
		_ = s.status.Del(ctx, cache.SessionStatusKey(sessionID))
	}
}
