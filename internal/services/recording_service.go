package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/voxhire/voxhire/internal/models"
	"github.com/voxhire/voxhire/internal/providers/transcribe"
	pgrepo "github.com/voxhire/voxhire/internal/repositories/postgres"
	"github.com/voxhire/voxhire/internal/storage"
	"github.com/voxhire/voxhire/internal/utils"
)

// Outcome is the terminal result of one transcription attempt.
type Outcome struct {
	RecordingID string                     `json:"recording_id"`
	QuestionID  string                     `json:"question_id"`
	Status      models.TranscriptionStatus `json:"status"`
	// Skipped means another worker already claimed the recording, or it was
	// transcribed before this attempt ran.
	Skipped bool   `json:"skipped,omitempty"`
	Err     string `json:"error,omitempty"`
}

type RecordingService interface {
	// SaveByToken stores an uploaded answer for the token's active session.
	SaveByToken(ctx context.Context, tokenValue, questionID string, content []byte, extension string) (*models.Recording, error)

	// TranscribeOne runs the full single-recording pipeline: claim, fetch
	// bytes (materializing remote files to a scratch path), transcribe,
	// persist. Failures schedule a retry until the ceiling is reached.
	TranscribeOne(ctx context.Context, recordingID string) (Outcome, error)

	// TranscribeMany runs transcriptions with bounded parallelism and
	// returns once every recording resolves.
	TranscribeMany(ctx context.Context, recordingIDs []string) []Outcome

	// RetryTranscription adapts TranscribeOne for the background job pool.
	RetryTranscription(ctx context.Context, recordingID string) error

	SessionRecordings(ctx context.Context, sessionID string) ([]models.Recording, error)
	URLFor(ctx context.Context, recordingID string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, recordingID string) error
}

// RecordingConfig are the pipeline tunables.
type RecordingConfig struct {
	Workers      int // bounded parallelism for TranscribeMany
	RetryCeiling int
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	StorageType  models.StorageType // what the configured store writes
}

func (c *RecordingConfig) defaults() {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.RetryCeiling <= 0 {
		c.RetryCeiling = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 5 * time.Minute
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 24 * time.Hour
	}
	if c.StorageType == "" {
		c.StorageType = models.StorageLocal
	}
}

type recordingService struct {
	recordings pgrepo.RecordingRepository
	sessions   pgrepo.SessionRepository
	questions  pgrepo.QuestionRepository
	tokens     pgrepo.TokenRepository
	store      storage.Store
	engine     transcribe.Engine
	cfg        RecordingConfig
	log        *logrus.Logger
}

func NewRecordingService(
	recordings pgrepo.RecordingRepository,
	sessions pgrepo.SessionRepository,
	questions pgrepo.QuestionRepository,
	tokens pgrepo.TokenRepository,
	store storage.Store,
	engine transcribe.Engine,
	cfg RecordingConfig,
	log *logrus.Logger,
) RecordingService {
	cfg.defaults()
	if log == nil {
		log = logrus.New()
	}
	return &recordingService{
		recordings: recordings,
		sessions:   sessions,
		questions:  questions,
		tokens:     tokens,
		store:      store,
		engine:     engine,
		cfg:        cfg,
		log:        log,
	}
}

func (s *recordingService) SaveByToken(ctx context.Context, tokenValue, questionID string, content []byte, extension string) (*models.Recording, error) {
	const op = "RecordingService.SaveByToken"

	if tokenValue == "" || questionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "token and question_id are required", nil)
	}
	if len(content) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "empty recording", nil)
	}

	t, err := s.tokens.GetByValue(ctx, tokenValue)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeTokenInvalid, op, "token not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load token", err)
	}

	sess, err := s.sessions.LatestByToken(ctx, t.ID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "no session found for this token", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load session", err)
	}
	if sess.Completed() {
		return nil, utils.E(utils.CodeConflict, op, "session already completed", nil)
	}

	if _, err := s.questions.GetByID(ctx, questionID); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "question not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load question", err)
	}

	prefix := fmt.Sprintf("session_%s_question_%s", sess.ID, questionID)
	key, err := s.store.Save(ctx, content, prefix, extension)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to store recording", err)
	}

	rec := &models.Recording{
		ID:                  uuid.NewString(),
		SessionID:           sess.ID,
		QuestionID:          questionID,
		FilePath:            key,
		FileSize:            int64(len(content)),
		StorageType:         s.cfg.StorageType,
		TranscriptionStatus: models.TranscriptionPending,
		AnalysisStatus:      models.AnalysisPending,
		CreatedAt:           time.Now().UTC(),
	}
	if err := s.recordings.Insert(ctx, rec); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to persist recording", err)
	}

	s.log.WithFields(logrus.Fields{
		"recording_id": rec.ID,
		"session_id":   sess.ID,
		"question_id":  questionID,
		"size":         rec.FileSize,
	}).Info("recording saved")
	return rec, nil
}

func (s *recordingService) TranscribeOne(ctx context.Context, recordingID string) (Outcome, error) {
	const op = "RecordingService.TranscribeOne"

	rec, err := s.recordings.GetByID(ctx, recordingID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return Outcome{RecordingID: recordingID}, utils.E(utils.CodeNotFound, op, "recording not found", err)
		}
		return Outcome{RecordingID: recordingID}, utils.E(utils.CodeInternal, op, "failed to load recording", err)
	}

	out := Outcome{RecordingID: rec.ID, QuestionID: rec.QuestionID}

	// Completed recordings and recordings another worker holds in processing
	// cannot move to processing again; skip without touching the row.
	if !rec.TranscriptionStatus.CanTransition(models.TranscriptionProcessing) {
		out.Skipped = true
		out.Status = rec.TranscriptionStatus
		return out, nil
	}

	// Claim before doing any work. The retry sweep and a live batch run may
	// both target the same recording; only one gets past this update.
	claimed, err := s.recordings.ClaimTranscription(ctx, rec.ID)
	if err != nil {
		return out, utils.E(utils.CodeInternal, op, "failed to claim recording", err)
	}
	if !claimed {
		out.Skipped = true
		out.Status = rec.TranscriptionStatus
		return out, nil
	}

	// The claim pins the row in processing, so a reload here gives a stable
	// view. The first read can predate a whole fail cycle on another worker;
	// computing the retry counter from it would reset the count.
	rec, err = s.recordings.GetByID(ctx, rec.ID)
	if err != nil {
		return out, utils.E(utils.CodeInternal, op, "failed to reload recording", err)
	}

	log := s.log.WithFields(logrus.Fields{"recording_id": rec.ID, "session_id": rec.SessionID})
	log.Info("transcription started")

	localPath, cleanup, err := s.materialize(ctx, rec)
	if err != nil {
		return s.failTranscription(ctx, rec, fmt.Errorf("fetch recording bytes: %w", err)), nil
	}
	defer cleanup()

	res, err := s.engine.Transcribe(ctx, localPath)
	if err != nil {
		return s.failTranscription(ctx, rec, err), nil
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return s.failTranscription(ctx, rec, fmt.Errorf("encode transcript: %w", err)), nil
	}
	if err := s.recordings.MarkTranscribed(ctx, rec.ID, datatypes.JSON(payload)); err != nil {
		return out, utils.E(utils.CodeInternal, op, "failed to persist transcript", err)
	}

	log.WithField("transcript_chars", len(res.Text)).Info("transcription completed")
	out.Status = models.TranscriptionCompleted
	return out, nil
}

// materialize resolves a recording to a readable local path. Remote files are
// downloaded to a scratch file which the returned cleanup removes regardless
// of the transcription outcome.
func (s *recordingService) materialize(ctx context.Context, rec *models.Recording) (string, func(), error) {
	noop := func() {}

	if rec.StorageType == models.StorageLocal {
		if ls, ok := s.store.(*storage.LocalStore); ok {
			p := ls.Path(rec.FilePath)
			if _, err := os.Stat(p); err != nil {
				return "", noop, err
			}
			return p, noop, nil
		}
	}

	content, err := s.store.FetchBytes(ctx, rec.FilePath)
	if err != nil {
		return "", noop, err
	}

	ext := filepath.Ext(rec.FilePath)
	if ext == "" {
		ext = ".wav"
	}
	f, err := os.CreateTemp("", "voxhire-*"+ext)
	if err != nil {
		return "", noop, err
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", noop, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", noop, err
	}

	name := f.Name()
	cleanup := func() {
		if err := os.Remove(name); err != nil {
			s.log.WithError(err).WithField("path", name).Warn("failed to remove scratch file")
		}
	}
	return name, cleanup, nil
}

func (s *recordingService) failTranscription(ctx context.Context, rec *models.Recording, cause error) Outcome {
	retry := rec.RetryCount + 1

	var next *time.Time
	if retry < s.cfg.RetryCeiling {
		t := time.Now().UTC().Add(s.backoff(retry))
		next = &t
	}

	msg := utils.Truncate(cause.Error(), utils.MaxStoredErrorLen)
	if err := s.recordings.MarkTranscriptionFailed(ctx, rec.ID, msg, retry, next); err != nil {
		s.log.WithError(err).WithField("recording_id", rec.ID).Error("failed to persist transcription failure")
	}

	log := s.log.WithFields(logrus.Fields{
		"recording_id": rec.ID,
		"retry_count":  retry,
		"ceiling":      s.cfg.RetryCeiling,
	})
	if next != nil {
		log.WithField("next_retry_at", next).WithError(cause).Warn("transcription failed, retry scheduled")
	} else {
		log.WithError(cause).Error("transcription failed permanently")
	}

	return Outcome{
		RecordingID: rec.ID,
		QuestionID:  rec.QuestionID,
		Status:      models.TranscriptionFailed,
		Err:         msg,
	}
}

// backoff grows exponentially with the retry count and never exceeds the cap.
func (s *recordingService) backoff(retryCount int) time.Duration {
	d := s.cfg.BackoffBase
	for i := 1; i < retryCount; i++ {
		d *= 2
		if d >= s.cfg.BackoffCap || d <= 0 {
			return s.cfg.BackoffCap
		}
	}
	if d > s.cfg.BackoffCap {
		return s.cfg.BackoffCap
	}
	return d
}

func (s *recordingService) TranscribeMany(ctx context.Context, recordingIDs []string) []Outcome {
	out := make([]Outcome, len(recordingIDs))
	if len(recordingIDs) == 0 {
		return out
	}

	// Fixed worker pool: the transcription engine is a shared, resource-heavy
	// backend, so fan-out is bounded rather than one goroutine per recording.
	idx := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < s.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idx {
				o, err := s.TranscribeOne(ctx, recordingIDs[i])
				if err != nil {
					o.RecordingID = recordingIDs[i]
					o.Status = models.TranscriptionFailed
					o.Err = utils.Truncate(err.Error(), utils.MaxStoredErrorLen)
				}
				out[i] = o
			}
		}()
	}
	for i := range recordingIDs {
		idx <- i
	}
	close(idx)
	wg.Wait()

	return out
}

func (s *recordingService) RetryTranscription(ctx context.Context, recordingID string) error {
	out, err := s.TranscribeOne(ctx, recordingID)
	if err != nil {
		return err
	}
	if out.Status == models.TranscriptionFailed {
		return utils.E(utils.CodeTranscriptionFailed, "RecordingService.RetryTranscription", out.Err, nil)
	}
	return nil
}

func (s *recordingService) SessionRecordings(ctx context.Context, sessionID string) ([]models.Recording, error) {
	const op = "RecordingService.SessionRecordings"

	rows, err := s.recordings.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list recordings", err)
	}
	return rows, nil
}

func (s *recordingService) URLFor(ctx context.Context, recordingID string, ttl time.Duration) (string, error) {
	const op = "RecordingService.URLFor"

	rec, err := s.recordings.GetByID(ctx, recordingID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return "", utils.E(utils.CodeNotFound, op, "recording not found", err)
		}
		return "", utils.E(utils.CodeInternal, op, "failed to load recording", err)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	url, err := s.store.URLFor(ctx, rec.FilePath, ttl)
	if err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "failed to build recording URL", err)
	}
	return url, nil
}

func (s *recordingService) Delete(ctx context.Context, recordingID string) error {
	const op = "RecordingService.Delete"

	rec, err := s.recordings.GetByID(ctx, recordingID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "recording not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to load recording", err)
	}

	if err := s.store.Delete(ctx, rec.FilePath); err != nil {
		s.log.WithError(err).WithField("recording_id", rec.ID).Warn("failed to delete stored bytes")
	}
	if err := s.recordings.Delete(ctx, rec.ID); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to delete recording", err)
	}
	return nil
}
