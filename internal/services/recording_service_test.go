package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/voxhire/voxhire/internal/models"
	"github.com/voxhire/voxhire/internal/providers/transcribe"
	"github.com/voxhire/voxhire/internal/storage"
	"github.com/voxhire/voxhire/internal/utils"
)

type recordingFixture struct {
	svc        RecordingService
	tokens     *memTokenRepo
	sessions   *memSessionRepo
	recordings *memRecordingRepo
	store      *fakeStore
	engine     *fakeEngine
	cfg        RecordingConfig
}

func newRecordingFixture(t *testing.T, cfg RecordingConfig) *recordingFixture {
	t.Helper()
	f := &recordingFixture{
		tokens:     newMemTokenRepo(),
		sessions:   newMemSessionRepo(),
		recordings: newMemRecordingRepo(),
		store:      newFakeStore(),
		engine:     &fakeEngine{},
		cfg:        cfg,
	}
	if f.cfg.StorageType == "" {
		f.cfg.StorageType = models.StorageRemote
	}
	questions := newMemQuestionRepo(
		&models.Question{ID: "q1", InterviewID: testInterviewID, Text: "Tell me about yourself", Position: 1},
		&models.Question{ID: "q2", InterviewID: testInterviewID, Text: "Why this role?", Position: 2},
	)
	f.svc = NewRecordingService(f.recordings, f.sessions, questions, f.tokens, f.store, f.engine, f.cfg, nil)
	return f
}

func (f *recordingFixture) seedSession(t *testing.T, completed bool) (*models.Token, *models.CandidateSession) {
	t.Helper()
	tok := &models.Token{
		ID: "tok-1", InterviewID: testInterviewID, TokenValue: "val-1",
		MaxAttempts: 1, CurrentAttempts: 1, IsUsed: true, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, f.tokens.Insert(context.Background(), tok))

	sess := &models.CandidateSession{
		ID: "sess-1", TokenID: tok.ID, InterviewID: testInterviewID,
		StartTime: time.Now().UTC(), Stage: models.StageAwaitingTranscription,
	}
	if completed {
		end := time.Now().UTC()
		sess.EndTime = &end
	}
	require.NoError(t, f.sessions.Insert(context.Background(), sess))
	return tok, sess
}

func (f *recordingFixture) seedStoredRecording(t *testing.T, id string, status models.TranscriptionStatus, retryCount int) *models.Recording {
	t.Helper()
	key, err := f.store.Save(context.Background(), []byte("audio-bytes"), "rec_"+id, ".wav")
	require.NoError(t, err)
	rec := &models.Recording{
		ID: id, SessionID: "sess-1", QuestionID: "q1",
		FilePath: key, FileSize: 11, StorageType: models.StorageRemote,
		TranscriptionStatus: status, AnalysisStatus: models.AnalysisPending,
		RetryCount: retryCount, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, f.recordings.Insert(context.Background(), rec))
	return rec
}

func TestSaveByToken(t *testing.T) {
	f := newRecordingFixture(t, RecordingConfig{})
	tok, sess := f.seedSession(t, false)

	rec, err := f.svc.SaveByToken(context.Background(), tok.TokenValue, "q1", []byte("audio"), ".webm")
	require.NoError(t, err)
	require.Equal(t, sess.ID, rec.SessionID)
	require.Equal(t, models.TranscriptionPending, rec.TranscriptionStatus)
	require.Equal(t, int64(5), rec.FileSize)

	stored, err := f.store.FetchBytes(context.Background(), rec.FilePath)
	require.NoError(t, err)
	require.Equal(t, []byte("audio"), stored)
}

func TestSaveByTokenUnknownQuestion(t *testing.T) {
	f := newRecordingFixture(t, RecordingConfig{})
	tok, _ := f.seedSession(t, false)

	_, err := f.svc.SaveByToken(context.Background(), tok.TokenValue, "q99", []byte("audio"), ".webm")
	var ae *utils.AppError
	require.True(t, errors.As(err, &ae))
	require.Equal(t, utils.CodeNotFound, ae.Code)
}

func TestSaveByTokenCompletedSession(t *testing.T) {
	f := newRecordingFixture(t, RecordingConfig{})
	tok, _ := f.seedSession(t, true)

	_, err := f.svc.SaveByToken(context.Background(), tok.TokenValue, "q1", []byte("audio"), ".webm")
	var ae *utils.AppError
	require.True(t, errors.As(err, &ae))
	require.Equal(t, utils.CodeConflict, ae.Code)
}

func TestTranscribeOneSuccess(t *testing.T) {
	f := newRecordingFixture(t, RecordingConfig{})
	f.seedSession(t, true)
	rec := f.seedStoredRecording(t, "r1", models.TranscriptionPending, 0)

	f.engine.fn = func(string) (*transcribe.Result, error) {
		return &transcribe.Result{Text: "I built the billing service", DurationSeconds: 14}, nil
	}

	out, err := f.svc.TranscribeOne(context.Background(), rec.ID)
	require.NoError(t, err)
	require.False(t, out.Skipped)
	require.Equal(t, models.TranscriptionCompleted, out.Status)

	stored, err := f.recordings.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, models.TranscriptionCompleted, stored.TranscriptionStatus)
	require.Nil(t, stored.NextRetryAt)
	require.Empty(t, stored.TranscriptionError)

	var res transcribe.Result
	require.NoError(t, json.Unmarshal(stored.Transcript, &res))
	require.Equal(t, "I built the billing service", res.Text)
}

func TestTranscribeOneSkipsClaimedRecording(t *testing.T) {
	f := newRecordingFixture(t, RecordingConfig{})
	f.seedSession(t, true)
	rec := f.seedStoredRecording(t, "r1", models.TranscriptionProcessing, 0)

	out, err := f.svc.TranscribeOne(context.Background(), rec.ID)
	require.NoError(t, err)
	require.True(t, out.Skipped)
	require.Zero(t, f.engine.callCount())
}

func TestTranscribeOneSkipsCompletedRecording(t *testing.T) {
	f := newRecordingFixture(t, RecordingConfig{})
	f.seedSession(t, true)
	rec := f.seedStoredRecording(t, "r1", models.TranscriptionCompleted, 0)

	out, err := f.svc.TranscribeOne(context.Background(), rec.ID)
	require.NoError(t, err)
	require.True(t, out.Skipped)
	require.Equal(t, models.TranscriptionCompleted, out.Status)
	require.Zero(t, f.engine.callCount())
}

func TestTranscribeFailureSchedulesRetry(t *testing.T) {
	base := 5 * time.Minute
	f := newRecordingFixture(t, RecordingConfig{RetryCeiling: 3, BackoffBase: base})
	f.seedSession(t, true)
	rec := f.seedStoredRecording(t, "r1", models.TranscriptionPending, 0)

	f.engine.fn = func(string) (*transcribe.Result, error) {
		return nil, errors.New("speech backend unavailable")
	}

	before := time.Now().UTC()
	out, err := f.svc.TranscribeOne(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, models.TranscriptionFailed, out.Status)
	require.Contains(t, out.Err, "speech backend unavailable")

	stored, err := f.recordings.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.RetryCount)
	require.NotNil(t, stored.NextRetryAt)
	require.WithinDuration(t, before.Add(base), *stored.NextRetryAt, 5*time.Second)
}

func TestTranscribeFailureCountsInterleavedRetries(t *testing.T) {
	f := newRecordingFixture(t, RecordingConfig{RetryCeiling: 3})
	f.seedSession(t, true)
	rec := f.seedStoredRecording(t, "r1", models.TranscriptionFailed, 0)

	// Two whole fail cycles complete on another worker between this worker's
	// initial read and its claim. The counter must build on their result,
	// not on the stale snapshot.
	f.recordings.claimHook = func(row *models.Recording) {
		row.RetryCount = 2
	}
	f.engine.fn = func(string) (*transcribe.Result, error) {
		return nil, errors.New("speech backend unavailable")
	}

	out, err := f.svc.TranscribeOne(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, models.TranscriptionFailed, out.Status)

	stored, err := f.recordings.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, 3, stored.RetryCount)
	require.Nil(t, stored.NextRetryAt, "the ceiling is reached, no further retry")
}

func TestTranscribeFailureTruncatesError(t *testing.T) {
	f := newRecordingFixture(t, RecordingConfig{})
	f.seedSession(t, true)
	rec := f.seedStoredRecording(t, "r1", models.TranscriptionPending, 0)

	f.engine.fn = func(string) (*transcribe.Result, error) {
		return nil, errors.New(strings.Repeat("x", 2000))
	}

	_, err := f.svc.TranscribeOne(context.Background(), rec.ID)
	require.NoError(t, err)

	stored, err := f.recordings.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Len(t, stored.TranscriptionError, utils.MaxStoredErrorLen)
}

func TestRetryCeilingStopsScheduling(t *testing.T) {
	f := newRecordingFixture(t, RecordingConfig{RetryCeiling: 3})
	f.seedSession(t, true)
	// Already failed twice; the third failure is final.
	rec := f.seedStoredRecording(t, "r1", models.TranscriptionFailed, 2)

	f.engine.fn = func(string) (*transcribe.Result, error) {
		return nil, errors.New("still broken")
	}

	_, err := f.svc.TranscribeOne(context.Background(), rec.ID)
	require.NoError(t, err)

	stored, err := f.recordings.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, 3, stored.RetryCount)
	require.Nil(t, stored.NextRetryAt)

	due, err := f.recordings.ListDueRetries(context.Background(), time.Now().UTC().Add(48*time.Hour), 3, 100)
	require.NoError(t, err)
	require.Empty(t, due)
}

func TestBackoffDoublesUpToCap(t *testing.T) {
	svc := &recordingService{cfg: RecordingConfig{
		BackoffBase: 5 * time.Minute,
		BackoffCap:  24 * time.Hour,
	}}

	require.Equal(t, 5*time.Minute, svc.backoff(1))
	require.Equal(t, 10*time.Minute, svc.backoff(2))
	require.Equal(t, 20*time.Minute, svc.backoff(3))
	require.Equal(t, 24*time.Hour, svc.backoff(20))
}

func TestScratchFileRemovedAfterTranscription(t *testing.T) {
	f := newRecordingFixture(t, RecordingConfig{})
	f.seedSession(t, true)
	rec := f.seedStoredRecording(t, "r1", models.TranscriptionPending, 0)

	var seen string
	f.engine.fn = func(path string) (*transcribe.Result, error) {
		seen = path
		b, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, []byte("audio-bytes"), b)
		return &transcribe.Result{Text: "ok"}, nil
	}

	_, err := f.svc.TranscribeOne(context.Background(), rec.ID)
	require.NoError(t, err)
	require.NotEmpty(t, seen)

	_, statErr := os.Stat(seen)
	require.True(t, os.IsNotExist(statErr), "scratch file should be removed")
}

func TestLocalRecordingsReadInPlace(t *testing.T) {
	dir := t.TempDir()
	local, err := storage.NewLocalStore(dir)
	require.NoError(t, err)

	f := newRecordingFixture(t, RecordingConfig{StorageType: models.StorageLocal})
	// Swap in a disk-backed store for this test.
	svc := NewRecordingService(f.recordings, f.sessions, newMemQuestionRepo(), f.tokens, local, f.engine, RecordingConfig{StorageType: models.StorageLocal}, nil)
	f.seedSession(t, true)

	key, err := local.Save(context.Background(), []byte("local-audio"), "rec_r1", ".wav")
	require.NoError(t, err)
	rec := &models.Recording{
		ID: "r1", SessionID: "sess-1", QuestionID: "q1",
		FilePath: key, StorageType: models.StorageLocal,
		TranscriptionStatus: models.TranscriptionPending, AnalysisStatus: models.AnalysisPending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, f.recordings.Insert(context.Background(), rec))

	f.engine.fn = func(path string) (*transcribe.Result, error) {
		// No scratch copy: the engine reads the stored file directly.
		require.Equal(t, local.Path(key), path)
		return &transcribe.Result{Text: "ok"}, nil
	}

	out, err := svc.TranscribeOne(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, models.TranscriptionCompleted, out.Status)

	_, statErr := os.Stat(local.Path(key))
	require.NoError(t, statErr, "stored file must survive transcription")
}

func TestTranscribeManyBoundedParallelism(t *testing.T) {
	f := newRecordingFixture(t, RecordingConfig{Workers: 2})
	f.seedSession(t, true)

	var ids []string
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("r%d", i)
		f.seedStoredRecording(t, id, models.TranscriptionPending, 0)
		ids = append(ids, id)
	}

	var inFlight, peak int64
	var mu sync.Mutex
	f.engine.fn = func(string) (*transcribe.Result, error) {
		n := atomic.AddInt64(&inFlight, 1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return &transcribe.Result{Text: "ok"}, nil
	}

	out := f.svc.TranscribeMany(context.Background(), ids)
	require.Len(t, out, 6)
	for i, o := range out {
		require.Equal(t, ids[i], o.RecordingID)
		require.Equal(t, models.TranscriptionCompleted, o.Status)
	}

	mu.Lock()
	defer mu.Unlock()
	require.LessOrEqual(t, peak, int64(2), "parallelism must respect the worker bound")
}

func TestDeleteRemovesBytesAndRow(t *testing.T) {
	f := newRecordingFixture(t, RecordingConfig{})
	f.seedSession(t, true)
	rec := f.seedStoredRecording(t, "r1", models.TranscriptionCompleted, 0)

	require.NoError(t, f.svc.Delete(context.Background(), rec.ID))

	_, err := f.recordings.GetByID(context.Background(), rec.ID)
	require.ErrorIs(t, err, utils.ErrNotFound)
	_, err = f.store.FetchBytes(context.Background(), rec.FilePath)
	require.ErrorIs(t, err, utils.ErrNotFound)
}

func TestURLFor(t *testing.T) {
	f := newRecordingFixture(t, RecordingConfig{})
	f.seedSession(t, true)
	rec := f.seedStoredRecording(t, "r1", models.TranscriptionCompleted, 0)

	url, err := f.svc.URLFor(context.Background(), rec.ID, time.Minute)
	require.NoError(t, err)
	require.Equal(t, "https://files.test/"+rec.FilePath, url)
}
