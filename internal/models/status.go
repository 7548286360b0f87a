package models

// TranscriptionStatus tracks a single recording through the speech-to-text
// pipeline. Transitions are checked so a retry sweep and a live batch run
// cannot push a recording into an invalid state.
type TranscriptionStatus string

const (
	TranscriptionPending    TranscriptionStatus = "pending"
	TranscriptionProcessing TranscriptionStatus = "processing"
	TranscriptionCompleted  TranscriptionStatus = "completed"
	TranscriptionFailed     TranscriptionStatus = "failed"
)

// Terminal reports whether the status is an end state for a single attempt.
// A failed recording may still be retried until its retry budget runs out.
func (s TranscriptionStatus) Terminal() bool {
	return s == TranscriptionCompleted || s == TranscriptionFailed
}

func (s TranscriptionStatus) CanTransition(to TranscriptionStatus) bool {
	switch s {
	case TranscriptionPending:
		return to == TranscriptionProcessing
	case TranscriptionProcessing:
		return to == TranscriptionCompleted || to == TranscriptionFailed
	case TranscriptionFailed:
		// retry path
		return to == TranscriptionProcessing
	default:
		return false
	}
}

// AnalysisStatus tracks a recording's share of the combined session analysis.
// It may only leave pending once the transcription track is terminal.
type AnalysisStatus string

const (
	AnalysisPending   AnalysisStatus = "pending"
	AnalysisCompleted AnalysisStatus = "completed"
	AnalysisFailed    AnalysisStatus = "failed"
)

func (s AnalysisStatus) Terminal() bool {
	return s == AnalysisCompleted || s == AnalysisFailed
}

// SessionStage is the batch-orchestration state machine for one candidate
// session.
type SessionStage string

const (
	StageAwaitingTranscription   SessionStage = "awaiting_transcription"
	StageTranscribing            SessionStage = "transcribing"
	StageReadyForAnalysis        SessionStage = "ready_for_analysis"
	StageTranscriptionIncomplete SessionStage = "transcription_incomplete"
	StageAnalyzing               SessionStage = "analyzing"
	StageAnalyzed                SessionStage = "analyzed"
	StageAnalysisFailed          SessionStage = "analysis_failed"
)

// AllSessionStages lists every stage, for building stage filters.
var AllSessionStages = []SessionStage{
	StageAwaitingTranscription,
	StageTranscribing,
	StageReadyForAnalysis,
	StageTranscriptionIncomplete,
	StageAnalyzing,
	StageAnalyzed,
	StageAnalysisFailed,
}

// CanAdvance reports whether the stage machine permits the transition
// without operator intervention. Analyzed and analysis_failed sessions only
// move again through an explicit force-reanalyze, which resets the stage
// directly instead of advancing it.
func (s SessionStage) CanAdvance(to SessionStage) bool {
	switch s {
	case StageAwaitingTranscription:
		return to == StageTranscribing
	case StageTranscribing:
		return to == StageReadyForAnalysis || to == StageTranscriptionIncomplete
	case StageReadyForAnalysis:
		return to == StageAnalyzing
	case StageTranscriptionIncomplete:
		// the retry sweep may recover failed recordings, after which the
		// orchestrator runs again
		return to == StageTranscribing
	case StageAnalyzing:
		return to == StageAnalyzed || to == StageAnalysisFailed
	default:
		return false
	}
}

// StorageType says where a recording's bytes live.
type StorageType string

const (
	StorageLocal  StorageType = "local"
	StorageRemote StorageType = "remote"
)
