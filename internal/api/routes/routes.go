package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/voxhire/voxhire/internal/api/handlers"
	"github.com/voxhire/voxhire/internal/api/middleware"
)

type Deps struct {
	Candidate   *handlers.CandidateHandler
	Interviewer *handlers.InterviewerHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// Candidate routes authenticate by interview token, not JWT.
	candidate := r.Group("/candidate")
	candidate.GET("/verify/:token", d.Candidate.Verify)
	candidate.POST("/start", d.Candidate.Start)
	candidate.POST("/recording/:token", d.Candidate.Upload)
	candidate.POST("/complete/:token", d.Candidate.Complete)
	candidate.GET("/session/:session_id/status", d.Candidate.Status)

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth())

	auth.POST("/interview/:interview_id/tokens", d.Interviewer.IssueToken)
	auth.POST("/interview/:interview_id/tokens/bulk", d.Interviewer.IssueBulk)
	auth.GET("/interview/:interview_id/tokens", d.Interviewer.ListTokens)

	auth.GET("/session/:session_id/status", d.Interviewer.SessionStatus)
	auth.GET("/session/:session_id/assessment", d.Interviewer.Assessment)
	auth.POST("/session/:session_id/reanalyze", d.Interviewer.Reanalyze)
	auth.GET("/session/:session_id/recordings", d.Interviewer.SessionRecordings)
	auth.GET("/session/:session_id/recordings/:recording_id/url", d.Interviewer.RecordingURL)
}
