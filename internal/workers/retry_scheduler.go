package workers

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/voxhire/voxhire/internal/logger"
	"github.com/voxhire/voxhire/internal/models"
)

type retryStore interface {
	ListDueRetries(ctx context.Context, now time.Time, ceiling, limit int) ([]models.Recording, error)
}

// RetryScheduler periodically sweeps recordings stuck in failed transcription
// whose backoff has elapsed and requeues them. It is the only component that
// originates work without a direct caller; it exists to recover from
// transient transcription-backend outages.
type RetryScheduler struct {
	store    retryStore
	queue    Enqueuer
	interval time.Duration
	ceiling  int
	limit    int
	log      *logrus.Entry
}

func NewRetryScheduler(store retryStore, queue Enqueuer, interval time.Duration, ceiling int, l *logrus.Logger) *RetryScheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if ceiling <= 0 {
		ceiling = 3
	}
	if l == nil {
		l = logrus.New()
	}
	return &RetryScheduler{
		store:    store,
		queue:    queue,
		interval: interval,
		ceiling:  ceiling,
		limit:    100,
		log:      logger.Component(l, "retry_scheduler"),
	}
}

// Run blocks until ctx is done.
func (s *RetryScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.log.WithError(err).Error("retry sweep failed")
				continue
			}
			if n > 0 {
				s.log.WithField("count", n).Info("requeued failed transcriptions")
			}
		}
	}
}

// Sweep requeues every due recording once. A recording that leaves the
// failed state between the query and execution is skipped by the claim
// inside the transcription pipeline, so double-enqueueing is harmless.
func (s *RetryScheduler) Sweep(ctx context.Context) (int, error) {
	due, err := s.store.ListDueRetries(ctx, time.Now().UTC(), s.ceiling, s.limit)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, rec := range due {
		// The query enforces the budget too; this re-checks the row we got
		// back in case the store is more permissive than the SQL guard.
		if !rec.Retryable(s.ceiling) {
			continue
		}
		if err := s.queue.Enqueue(Job{Kind: JobTranscribe, RecordingID: rec.ID}); err != nil {
			s.log.WithError(err).WithField("recording_id", rec.ID).Warn("enqueue retry failed")
			continue
		}
		queued++
	}
	return queued, nil
}
