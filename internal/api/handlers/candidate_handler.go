package handlers

import (
	"io"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/voxhire/voxhire/internal/models"
	"github.com/voxhire/voxhire/internal/services"
	"github.com/voxhire/voxhire/internal/utils"
)

// maxUploadBytes caps a single answer recording.
const maxUploadBytes = 50 << 20

type CandidateHandler struct {
	tokens     services.TokenService
	sessions   services.SessionService
	recordings services.RecordingService
}

func NewCandidateHandler(tokens services.TokenService, sessions services.SessionService, recordings services.RecordingService) *CandidateHandler {
	return &CandidateHandler{tokens: tokens, sessions: sessions, recordings: recordings}
}

type VerifyTokenResponse struct {
	Status      models.TokenVerdict `json:"status"`
	InterviewID string              `json:"interview_id,omitempty"`
}

// Verify reports whether an interview token is usable without spending an
// attempt, so the frontend can show the right screen before starting.
func (h *CandidateHandler) Verify(c *gin.Context) {
	res, err := h.tokens.Verify(c.Request.Context(), c.Param("token"), true)
	if err != nil {
		writeError(c, err)
		return
	}

	out := VerifyTokenResponse{Status: res.Status}
	if res.Status == models.TokenValid {
		out.InterviewID = res.InterviewID
	}
	c.JSON(http.StatusOK, out)
}

type StartSessionRequest struct {
	Token string `json:"token" binding:"required"`
}

type StartSessionResponse struct {
	SessionID   string `json:"session_id"`
	InterviewID string `json:"interview_id"`
	StartTime   string `json:"start_time"`
}

func (h *CandidateHandler) Start(c *gin.Context) {
	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "CandidateHandler.Start", "invalid request body", err))
		return
	}

	sess, err := h.sessions.Start(c.Request.Context(), req.Token)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, StartSessionResponse{
		SessionID:   sess.ID,
		InterviewID: sess.InterviewID,
		StartTime:   sess.StartTime.Format("2006-01-02T15:04:05Z07:00"),
	})
}

type UploadRecordingResponse struct {
	RecordingID string `json:"recording_id"`
	QuestionID  string `json:"question_id"`
	FileSize    int64  `json:"file_size"`
}

// Upload accepts a multipart answer recording keyed by interview token.
func (h *CandidateHandler) Upload(c *gin.Context) {
	const op = "CandidateHandler.Upload"

	tokenValue := c.Param("token")
	questionID := c.PostForm("question_id")
	if questionID == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "question_id is required", nil))
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "file is required", err))
		return
	}
	if fh.Size > maxUploadBytes {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "file too large", nil))
		return
	}

	f, err := fh.Open()
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, op, "failed to open upload", err))
		return
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, op, "failed to read upload", err))
		return
	}
	if int64(len(content)) > maxUploadBytes {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "file too large", nil))
		return
	}

	rec, err := h.recordings.SaveByToken(c.Request.Context(), tokenValue, questionID, content, filepath.Ext(fh.Filename))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, UploadRecordingResponse{
		RecordingID: rec.ID,
		QuestionID:  rec.QuestionID,
		FileSize:    rec.FileSize,
	})
}

// Complete ends the candidate's active session and kicks off background
// processing. Completing twice is harmless.
func (h *CandidateHandler) Complete(c *gin.Context) {
	if err := h.sessions.CompleteByToken(c.Request.Context(), c.Param("token")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "processing"})
}

func (h *CandidateHandler) Status(c *gin.Context) {
	status, err := h.sessions.Status(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
