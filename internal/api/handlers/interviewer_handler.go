package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/voxhire/voxhire/internal/models"
	pgrepo "github.com/voxhire/voxhire/internal/repositories/postgres"
	"github.com/voxhire/voxhire/internal/services"
	"github.com/voxhire/voxhire/internal/utils"
	"github.com/voxhire/voxhire/internal/workers"
)

// recordingURLTTL bounds how long a shared playback link stays valid.
const recordingURLTTL = 15 * time.Minute

type InterviewerHandler struct {
	tokens     services.TokenService
	sessions   services.SessionService
	recordings services.RecordingService
	batch      services.BatchService
	interviews pgrepo.InterviewRepository
	queue      workers.Enqueuer
}

func NewInterviewerHandler(
	tokens services.TokenService,
	sessions services.SessionService,
	recordings services.RecordingService,
	batch services.BatchService,
	interviews pgrepo.InterviewRepository,
	queue workers.Enqueuer,
) *InterviewerHandler {
	return &InterviewerHandler{
		tokens:     tokens,
		sessions:   sessions,
		recordings: recordings,
		batch:      batch,
		interviews: interviews,
		queue:      queue,
	}
}

// requireOwned resolves an interview and checks it belongs to the caller.
func (h *InterviewerHandler) requireOwned(c *gin.Context, interviewID string) bool {
	interviewerID, ok := requireInterviewerID(c)
	if !ok {
		return false
	}
	if _, err := h.interviews.GetOwned(c.Request.Context(), interviewID, interviewerID); err != nil {
		writeError(c, utils.E(utils.CodeNotFound, "InterviewerHandler", "interview not found", err))
		return false
	}
	return true
}

type IssueTokenRequest struct {
	CandidateName string     `json:"candidate_name"`
	ExpiresAt     *time.Time `json:"expires_at"`
	MaxAttempts   int        `json:"max_attempts"`
}

type TokenResponse struct {
	ID              string     `json:"id"`
	TokenValue      string     `json:"token"`
	CandidateName   string     `json:"candidate_name,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	MaxAttempts     int        `json:"max_attempts"`
	CurrentAttempts int        `json:"current_attempts"`
	IsUsed          bool       `json:"is_used"`
}

func tokenResponse(t *models.Token) TokenResponse {
	return TokenResponse{
		ID:              t.ID,
		TokenValue:      t.TokenValue,
		CandidateName:   t.CandidateName,
		ExpiresAt:       t.ExpiresAt,
		MaxAttempts:     t.MaxAttempts,
		CurrentAttempts: t.CurrentAttempts,
		IsUsed:          t.IsUsed,
	}
}

func (h *InterviewerHandler) IssueToken(c *gin.Context) {
	interviewID := c.Param("interview_id")
	if !h.requireOwned(c, interviewID) {
		return
	}

	var req IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "InterviewerHandler.IssueToken", "invalid request body", err))
		return
	}

	t, err := h.tokens.Issue(c.Request.Context(), interviewID, req.CandidateName, req.ExpiresAt, req.MaxAttempts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse(t))
}

type IssueBulkRequest struct {
	Count int `json:"count" binding:"required"`
}

func (h *InterviewerHandler) IssueBulk(c *gin.Context) {
	interviewID := c.Param("interview_id")
	if !h.requireOwned(c, interviewID) {
		return
	}

	var req IssueBulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "InterviewerHandler.IssueBulk", "invalid request body", err))
		return
	}

	ts, err := h.tokens.IssueBulk(c.Request.Context(), interviewID, req.Count)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]TokenResponse, len(ts))
	for i := range ts {
		out[i] = tokenResponse(&ts[i])
	}
	c.JSON(http.StatusOK, gin.H{"tokens": out})
}

func (h *InterviewerHandler) ListTokens(c *gin.Context) {
	interviewID := c.Param("interview_id")
	if !h.requireOwned(c, interviewID) {
		return
	}

	ts, err := h.tokens.ListByInterview(c.Request.Context(), interviewID)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]TokenResponse, len(ts))
	for i := range ts {
		out[i] = tokenResponse(&ts[i])
	}
	c.JSON(http.StatusOK, gin.H{"tokens": out})
}

// requireSession loads a session and checks the caller owns its interview.
func (h *InterviewerHandler) requireSession(c *gin.Context, sessionID string) (*models.CandidateSession, bool) {
	interviewerID, ok := requireInterviewerID(c)
	if !ok {
		return nil, false
	}
	sess, err := h.sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	if _, err := h.interviews.GetOwned(c.Request.Context(), sess.InterviewID, interviewerID); err != nil {
		writeError(c, utils.E(utils.CodeForbidden, "InterviewerHandler", "forbidden", nil))
		return nil, false
	}
	return sess, true
}

func (h *InterviewerHandler) SessionStatus(c *gin.Context) {
	if _, ok := h.requireSession(c, c.Param("session_id")); !ok {
		return
	}

	status, err := h.sessions.Status(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *InterviewerHandler) Assessment(c *gin.Context) {
	if _, ok := h.requireSession(c, c.Param("session_id")); !ok {
		return
	}

	doc, err := h.batch.Assessment(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// Reanalyze forces a fresh batch run, re-transcribing failures and
// overwriting the stored assessment.
func (h *InterviewerHandler) Reanalyze(c *gin.Context) {
	sess, ok := h.requireSession(c, c.Param("session_id"))
	if !ok {
		return
	}

	if err := h.queue.Enqueue(workers.Job{Kind: workers.JobBatch, SessionID: sess.ID, Force: true}); err != nil {
		writeError(c, utils.E(utils.CodeUnavailable, "InterviewerHandler.Reanalyze", "processing queue unavailable", err))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "processing"})
}

func (h *InterviewerHandler) SessionRecordings(c *gin.Context) {
	if _, ok := h.requireSession(c, c.Param("session_id")); !ok {
		return
	}

	recs, err := h.recordings.SessionRecordings(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recordings": recs})
}

// RecordingURL returns a short-lived playback link for one recording.
func (h *InterviewerHandler) RecordingURL(c *gin.Context) {
	if _, ok := h.requireSession(c, c.Param("session_id")); !ok {
		return
	}

	url, err := h.recordings.URLFor(c.Request.Context(), c.Param("recording_id"), recordingURLTTL)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "expires_in_seconds": int(recordingURLTTL.Seconds())})
}
