package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/spec-kit/lead-router/internal/domain"
)

// JobClaimer is the part of the dispatch repository the relay needs.
type JobClaimer interface {
	ClaimDue(ctx context.Context, now time.Time, lockTimeout time.Duration, limit int) ([]domain.DispatchJob, error)
	MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error
}

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// DispatchRelay periodically claims due outbox jobs and hands them to asynq.
type DispatchRelay struct {
	jobs        JobClaimer
	client      TaskEnqueuer
	queue       string
	interval    time.Duration
	lockTimeout time.Duration
	batchSize   int
	logger      *zap.Logger
	now         func() time.Time
}

// RelayConfig tunes the relay loop.
type RelayConfig struct {
	Queue       string
	Interval    time.Duration
	LockTimeout time.Duration
	BatchSize   int
}

func NewDispatchRelay(jobs JobClaimer, client TaskEnqueuer, cfg RelayConfig, logger *zap.Logger) *DispatchRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Queue == "" {
		cfg.Queue = "default"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &DispatchRelay{
		jobs:        jobs,
		client:      client,
		queue:       cfg.Queue,
		interval:    cfg.Interval,
		lockTimeout: cfg.LockTimeout,
		batchSize:   cfg.BatchSize,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run polls until ctx is cancelled.
func (r *DispatchRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if _, err := r.RelayOnce(ctx); err != nil {
			r.logger.Warn("dispatch relay pass failed", zap.Error(err))
		}
	}
}

// RelayOnce claims one batch and enqueues a task per job. Jobs that cannot be enqueued go back to pending.
func (r *DispatchRelay) RelayOnce(ctx context.Context) (int, error) {
	jobs, err := r.jobs.ClaimDue(ctx, r.now(), r.lockTimeout, r.batchSize)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, job := range jobs {
		task, err := NewDispatchTask(DispatchPayload{OutboxID: job.ID.String()})
		if err != nil {
			r.release(ctx, job, err)
			continue
		}

		_, err = r.client.EnqueueContext(ctx, task,
			asynq.Queue(r.queue),
			asynq.TaskID(dispatchTaskID(job)),
			asynq.MaxRetry(0))
		if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
			r.release(ctx, job, err)
			continue
		}
		enqueued++
	}
	if enqueued > 0 {
		r.logger.Debug("dispatch jobs relayed", zap.Int("count", enqueued))
	}
	return enqueued, nil
}

func (r *DispatchRelay) release(ctx context.Context, job domain.DispatchJob, cause error) {
	msg := cause.Error()
	if err := r.jobs.MarkPending(ctx, job.ID, &msg); err != nil {
		r.logger.Error("dispatch job release failed", zap.String("job_id", job.ID.String()), zap.Error(err))
	}
}

// dispatchTaskID is unique per claim, so a reclaimed job never collides with the archived task of an
// earlier claim. Duplicate deliveries are absorbed by the processing claim in Deliver.
func dispatchTaskID(job domain.DispatchJob) string {
	return fmt.Sprintf("%s:%d", job.ID, job.UpdatedAt.UnixNano())
}
