package config

import (
	"os"
	"strconv"
	"time"
)

// Pipeline holds the tunables for the transcription and analysis workflow.
// Every field falls back to a sane default so a bare environment still runs.
type Pipeline struct {
	TranscribeWorkers int
	QueueWorkers      int
	QueueSize         int

	RetryCeiling  int
	RetryBase     time.Duration
	RetryCap      time.Duration
	SweepInterval time.Duration

	StatusCacheTTL       time.Duration
	AllowPartialAnalysis bool
}

func LoadPipeline() Pipeline {
	return Pipeline{
		TranscribeWorkers:    envInt("TRANSCRIBE_WORKERS", 2),
		QueueWorkers:         envInt("QUEUE_WORKERS", 4),
		QueueSize:            envInt("QUEUE_SIZE", 256),
		RetryCeiling:         envInt("TRANSCRIBE_RETRY_CEILING", 3),
		RetryBase:            envDuration("TRANSCRIBE_RETRY_BASE", 5*time.Minute),
		RetryCap:             envDuration("TRANSCRIBE_RETRY_CAP", 24*time.Hour),
		SweepInterval:        envDuration("RETRY_SWEEP_INTERVAL", 5*time.Minute),
		StatusCacheTTL:       envDuration("STATUS_CACHE_TTL", 10*time.Second),
		AllowPartialAnalysis: envBool("ALLOW_PARTIAL_ANALYSIS", false),
	}
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
