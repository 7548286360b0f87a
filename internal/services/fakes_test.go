package services

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"gorm.io/datatypes"

	"github.com/voxhire/voxhire/internal/models"
	"github.com/voxhire/voxhire/internal/providers/analysis"
	"github.com/voxhire/voxhire/internal/providers/transcribe"
	"github.com/voxhire/voxhire/internal/utils"
	"github.com/voxhire/voxhire/internal/workers"
)

// In-memory repository doubles. They guard every map with a mutex so the
// concurrency tests exercise the same conditional-update semantics the SQL
// implementations provide.

type memTokenRepo struct {
	mu   sync.Mutex
	rows map[string]*models.Token
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{rows: map[string]*models.Token{}}
}

func (r *memTokenRepo) Insert(_ context.Context, t *models.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.rows[t.ID] = &cp
	return nil
}

func (r *memTokenRepo) InsertBatch(ctx context.Context, ts []models.Token) error {
	for i := range ts {
		if err := r.Insert(ctx, &ts[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *memTokenRepo) GetByID(_ context.Context, id string) (*models.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.rows[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, utils.ErrNotFound
}

func (r *memTokenRepo) GetByValue(_ context.Context, tokenValue string) (*models.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.rows {
		if t.TokenValue == tokenValue {
			cp := *t
			return &cp, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (r *memTokenRepo) ListByInterview(_ context.Context, interviewID string) ([]models.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Token
	for _, t := range r.rows {
		if t.InterviewID == interviewID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *memTokenRepo) ConsumeAttempt(_ context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.rows[tokenID]
	if !ok || t.CurrentAttempts >= t.MaxAttempts {
		return false, nil
	}
	t.CurrentAttempts++
	t.IsUsed = true
	return true, nil
}

type memSessionRepo struct {
	mu   sync.Mutex
	rows map[string]*models.CandidateSession
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{rows: map[string]*models.CandidateSession{}}
}

func (r *memSessionRepo) Insert(_ context.Context, s *models.CandidateSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.rows[s.ID] = &cp
	return nil
}

func (r *memSessionRepo) GetByID(_ context.Context, id string) (*models.CandidateSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.rows[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, utils.ErrNotFound
}

func (r *memSessionRepo) LatestByToken(_ context.Context, tokenID string) (*models.CandidateSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.CandidateSession
	for _, s := range r.rows {
		if s.TokenID != tokenID {
			continue
		}
		if latest == nil || s.StartTime.After(latest.StartTime) {
			latest = s
		}
	}
	if latest == nil {
		return nil, utils.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *memSessionRepo) SetEndTime(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok || s.EndTime != nil {
		return false, nil
	}
	s.EndTime = &at
	return true, nil
}

func (r *memSessionRepo) ClaimStage(_ context.Context, id string, from []models.SessionStage, to models.SessionStage) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if s.Stage == f {
			s.Stage = to
			s.ProcessingError = ""
			return true, nil
		}
	}
	return false, nil
}

func (r *memSessionRepo) SetStage(_ context.Context, id string, to models.SessionStage, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.rows[id]; ok {
		s.Stage = to
		s.ProcessingError = utils.Truncate(processingError, utils.MaxStoredErrorLen)
	}
	return nil
}

func (r *memSessionRepo) MarkAnalyzed(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.rows[id]; ok {
		s.Stage = models.StageAnalyzed
		s.ProcessingError = ""
		s.AnalyzedAt = &at
	}
	return nil
}

type memRecordingRepo struct {
	mu   sync.Mutex
	rows map[string]*models.Recording

	// claimHook runs on the row right before a claim is applied, to stand in
	// for work another worker finished since the caller last read the row.
	claimHook func(rec *models.Recording)
}

func newMemRecordingRepo() *memRecordingRepo {
	return &memRecordingRepo{rows: map[string]*models.Recording{}}
}

func (r *memRecordingRepo) Insert(_ context.Context, rec *models.Recording) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.rows[rec.ID] = &cp
	return nil
}

func (r *memRecordingRepo) GetByID(_ context.Context, id string) (*models.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.rows[id]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, utils.ErrNotFound
}

func (r *memRecordingRepo) ListBySession(_ context.Context, sessionID string) ([]models.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Recording
	for _, rec := range r.rows {
		if rec.SessionID == sessionID {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memRecordingRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

func (r *memRecordingRepo) ClaimTranscription(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[id]
	if !ok {
		return false, nil
	}
	if r.claimHook != nil {
		r.claimHook(rec)
	}
	if rec.TranscriptionStatus != models.TranscriptionPending && rec.TranscriptionStatus != models.TranscriptionFailed {
		return false, nil
	}
	rec.TranscriptionStatus = models.TranscriptionProcessing
	return true, nil
}

func (r *memRecordingRepo) MarkTranscribed(_ context.Context, id string, transcript datatypes.JSON) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.rows[id]; ok {
		rec.TranscriptionStatus = models.TranscriptionCompleted
		rec.Transcript = transcript
		rec.TranscriptionError = ""
		rec.NextRetryAt = nil
	}
	return nil
}

func (r *memRecordingRepo) MarkTranscriptionFailed(_ context.Context, id, msg string, retryCount int, nextRetryAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.rows[id]; ok {
		rec.TranscriptionStatus = models.TranscriptionFailed
		rec.TranscriptionError = msg
		rec.RetryCount = retryCount
		rec.NextRetryAt = nextRetryAt
	}
	return nil
}

func (r *memRecordingRepo) SetAnalysisStatus(_ context.Context, ids []string, status models.AnalysisStatus, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if rec, ok := r.rows[id]; ok {
			rec.AnalysisStatus = status
			rec.AnalysisError = msg
		}
	}
	return nil
}

func (r *memRecordingRepo) ListDueRetries(_ context.Context, now time.Time, ceiling, limit int) ([]models.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Recording
	for _, rec := range r.rows {
		if rec.TranscriptionStatus != models.TranscriptionFailed {
			continue
		}
		if rec.RetryCount >= ceiling || rec.NextRetryAt == nil || rec.NextRetryAt.After(now) {
			continue
		}
		out = append(out, *rec)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type memInterviewRepo struct {
	rows map[string]*models.Interview
}

func newMemInterviewRepo(ivs ...*models.Interview) *memInterviewRepo {
	r := &memInterviewRepo{rows: map[string]*models.Interview{}}
	for _, iv := range ivs {
		r.rows[iv.ID] = iv
	}
	return r
}

func (r *memInterviewRepo) GetByID(_ context.Context, id string) (*models.Interview, error) {
	if iv, ok := r.rows[id]; ok {
		return iv, nil
	}
	return nil, utils.ErrNotFound
}

func (r *memInterviewRepo) GetOwned(_ context.Context, id, ownerID string) (*models.Interview, error) {
	if iv, ok := r.rows[id]; ok && iv.OwnerID == ownerID {
		return iv, nil
	}
	return nil, utils.ErrNotFound
}

type memQuestionRepo struct {
	rows map[string]*models.Question
}

func newMemQuestionRepo(qs ...*models.Question) *memQuestionRepo {
	r := &memQuestionRepo{rows: map[string]*models.Question{}}
	for _, q := range qs {
		r.rows[q.ID] = q
	}
	return r
}

func (r *memQuestionRepo) GetByID(_ context.Context, id string) (*models.Question, error) {
	if q, ok := r.rows[id]; ok {
		return q, nil
	}
	return nil, utils.ErrNotFound
}

func (r *memQuestionRepo) ListByInterview(_ context.Context, interviewID string) ([]models.Question, error) {
	var out []models.Question
	for _, q := range r.rows {
		if q.InterviewID == interviewID {
			out = append(out, *q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

type memAssessmentRepo struct {
	mu   sync.Mutex
	rows map[string]*models.Assessment
	ups  int
}

func newMemAssessmentRepo() *memAssessmentRepo {
	return &memAssessmentRepo{rows: map[string]*models.Assessment{}}
}

func (r *memAssessmentRepo) Upsert(_ context.Context, a *models.Assessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.rows[a.SessionID] = &cp
	r.ups++
	return nil
}

func (r *memAssessmentRepo) GetBySessionID(_ context.Context, sessionID string) (*models.Assessment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.rows[sessionID]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, utils.ErrNotFound
}

// fakeStore keeps bytes in memory and hands out stable keys.
type fakeStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	n     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{blobs: map[string][]byte{}}
}

func (s *fakeStore) Save(_ context.Context, content []byte, keyPrefix, extension string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	key := keyPrefix + "_" + string(rune('a'+s.n%26)) + extension
	s.blobs[key] = content
	return key, nil
}

func (s *fakeStore) FetchBytes(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.blobs[key]; ok {
		return b, nil
	}
	return nil, utils.ErrNotFound
}

func (s *fakeStore) URLFor(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://files.test/" + key, nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

// fakeEngine scripts transcription results per call.
type fakeEngine struct {
	mu    sync.Mutex
	fn    func(path string) (*transcribe.Result, error)
	calls int
	paths []string
}

func (e *fakeEngine) Transcribe(_ context.Context, localPath string) (*transcribe.Result, error) {
	e.mu.Lock()
	e.calls++
	e.paths = append(e.paths, localPath)
	fn := e.fn
	e.mu.Unlock()
	if fn != nil {
		return fn(localPath)
	}
	return &transcribe.Result{Text: "hello world", DurationSeconds: 2}, nil
}

func (e *fakeEngine) Close() error { return nil }

func (e *fakeEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// fakeAnalyzer scripts the combined-analysis result and records its inputs.
type fakeAnalyzer struct {
	mu    sync.Mutex
	fn    func(sc analysis.SessionContext, responses []analysis.Response) (*models.AssessmentResult, error)
	calls int
	last  []analysis.Response
}

func (a *fakeAnalyzer) Analyze(_ context.Context, sc analysis.SessionContext, responses []analysis.Response) (*models.AssessmentResult, error) {
	a.mu.Lock()
	a.calls++
	a.last = append([]analysis.Response(nil), responses...)
	fn := a.fn
	a.mu.Unlock()
	if fn != nil {
		return fn(sc, responses)
	}
	return &models.AssessmentResult{OverallScore: 7.5, Recommendation: "hire", Summary: "solid"}, nil
}

func (a *fakeAnalyzer) ModelName() string { return "fake-model" }
func (a *fakeAnalyzer) Close() error      { return nil }

func (a *fakeAnalyzer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// memQueue records enqueued jobs.
type memQueue struct {
	mu   sync.Mutex
	jobs []workers.Job
	err  error
}

func (q *memQueue) Enqueue(job workers.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memQueue) all() []workers.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]workers.Job(nil), q.jobs...)
}

// memCache is a TTL-ignoring Cache for status snapshot tests.
type memCache struct {
	mu   sync.Mutex
	vals map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{vals: map[string][]byte{}}
}

func (c *memCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.vals[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *memCache) SetJSON(_ context.Context, key string, val any, _ time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals[key] = b
	return nil
}

func (c *memCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.vals, k)
	}
	return nil
}
