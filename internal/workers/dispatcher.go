package workers

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/voxhire/voxhire/internal/logger"
	"github.com/voxhire/voxhire/internal/utils"
)

type JobKind string

const (
	// JobBatch runs the transcribe-all-then-analyze-once workflow for a
	// completed session.
	JobBatch JobKind = "batch"
	// JobTranscribe retries transcription for a single recording.
	JobTranscribe JobKind = "transcribe"
)

// Job is the tagged unit of background work. Exactly one of SessionID or
// RecordingID is meaningful depending on Kind.
type Job struct {
	Kind        JobKind
	SessionID   string
	RecordingID string
	Force       bool
}

// Enqueuer hands jobs to the background pool without blocking the caller.
type Enqueuer interface {
	Enqueue(job Job) error
}

// BatchRunner processes one completed session end to end.
type BatchRunner interface {
	ProcessSession(ctx context.Context, sessionID string, force bool) error
}

// RetryRunner re-runs transcription for one recording.
type RetryRunner interface {
	RetryTranscription(ctx context.Context, recordingID string) error
}

var ErrQueueFull = errors.New("job queue full")
var ErrQueueClosed = errors.New("job queue closed")

// Dispatcher is an explicit work queue plus a fixed pool of workers. Session
// completion and the retry sweep both enqueue here; nothing in the HTTP path
// waits on job execution.
type Dispatcher struct {
	jobs        chan Job
	workerCount int

	batch       BatchRunner
	transcriber RetryRunner
	log         *logrus.Entry

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(batch BatchRunner, transcriber RetryRunner, workerCount, queueSize int, l *logrus.Logger) *Dispatcher {
	if workerCount <= 0 {
		workerCount = 2
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if l == nil {
		l = logrus.New()
	}
	return &Dispatcher{
		jobs:        make(chan Job, queueSize),
		workerCount: workerCount,
		batch:       batch,
		transcriber: transcriber,
		log:         logger.Component(l, "dispatcher"),
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workerCount; i++ {
		d.wg.Add(1)
		go d.run(ctx)
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for job := range d.jobs {
		d.handle(ctx, job)
	}
}

func (d *Dispatcher) handle(ctx context.Context, job Job) {
	log := d.log.WithFields(logrus.Fields{
		"kind":         job.Kind,
		"session_id":   job.SessionID,
		"recording_id": job.RecordingID,
	})

	var err error
	switch job.Kind {
	case JobBatch:
		err = d.batch.ProcessSession(ctx, job.SessionID, job.Force)
	case JobTranscribe:
		err = d.transcriber.RetryTranscription(ctx, job.RecordingID)
	default:
		log.Warn("unknown job kind")
		return
	}

	if err != nil {
		// Incomplete transcription and empty sessions are recorded on the
		// session row; they are outcomes, not faults.
		if utils.IsCode(err, utils.CodeTranscriptionIncomplete) || utils.IsCode(err, utils.CodeNoRecordings) {
			log.WithError(err).Warn("job finished without result")
		} else {
			log.WithError(err).Error("job failed")
		}
		return
	}
	log.Debug("job done")
}

// Enqueue adds a job without blocking. A full queue is reported to the
// caller rather than waited out; the retry sweep will pick dropped
// transcription work up again.
func (d *Dispatcher) Enqueue(job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops intake and waits for queued jobs to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	d.wg.Wait()
}
