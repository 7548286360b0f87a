package transcribe

import "strings"

// pauseThresholdSeconds is the gap between segments counted as a pause.
const pauseThresholdSeconds = 1.5

// Metrics are per-response speaking metrics derived from a transcript.
type Metrics struct {
	WordCount           int
	DurationSeconds     float64
	SpeakingRate        float64 // words per minute
	PauseCount          int
	LongestPauseSeconds float64
}

// ComputeMetrics derives speaking metrics from a result. Duration falls back
// to the end of the last segment when the engine did not report one.
func ComputeMetrics(r *Result) Metrics {
	m := Metrics{
		WordCount:       len(strings.Fields(r.Text)),
		DurationSeconds: r.DurationSeconds,
	}
	if m.DurationSeconds == 0 && len(r.Segments) > 0 {
		m.DurationSeconds = r.Segments[len(r.Segments)-1].End
	}
	if m.DurationSeconds > 0 {
		m.SpeakingRate = float64(m.WordCount) / (m.DurationSeconds / 60)
	}

	for i := 1; i < len(r.Segments); i++ {
		gap := r.Segments[i].Start - r.Segments[i-1].End
		if gap >= pauseThresholdSeconds {
			m.PauseCount++
			if gap > m.LongestPauseSeconds {
				m.LongestPauseSeconds = gap
			}
		}
	}
	return m
}
