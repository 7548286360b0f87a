package transcribe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeMetrics(t *testing.T) {
	r := &Result{
		Text:            "so first I profiled the endpoint and then fixed the query",
		DurationSeconds: 30,
		Segments: []Segment{
			{Start: 0, End: 8, Text: "so first I profiled the endpoint"},
			{Start: 10.2, End: 16, Text: "and then"},
			{Start: 16.5, End: 30, Text: "fixed the query"},
		},
	}

	m := ComputeMetrics(r)
	require.Equal(t, 11, m.WordCount)
	require.InDelta(t, 30.0, m.DurationSeconds, 0.001)
	require.InDelta(t, 22.0, m.SpeakingRate, 0.001)
	// Only the 8s -> 10.2s gap crosses the pause threshold.
	require.Equal(t, 1, m.PauseCount)
	require.InDelta(t, 2.2, m.LongestPauseSeconds, 0.001)
}

func TestComputeMetricsDurationFallback(t *testing.T) {
	r := &Result{
		Text:     "short answer",
		Segments: []Segment{{Start: 0, End: 4, Text: "short answer"}},
	}

	m := ComputeMetrics(r)
	require.InDelta(t, 4.0, m.DurationSeconds, 0.001)
	require.InDelta(t, 30.0, m.SpeakingRate, 0.001)
}

func TestComputeMetricsEmpty(t *testing.T) {
	m := ComputeMetrics(&Result{})
	require.Zero(t, m.WordCount)
	require.Zero(t, m.SpeakingRate)
	require.Zero(t, m.PauseCount)
}
