package worker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/spec-kit/lead-router/internal/service"
)

// DispatchWorker runs an asynq server that delivers dispatch tasks.
type DispatchWorker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	deliverer service.Deliverer
	logger    *zap.Logger
}

// WorkerConfig sizes the asynq server.
type WorkerConfig struct {
	Queue       string
	Concurrency int
}

func NewDispatchWorker(redisOpt asynq.RedisConnOpt, cfg WorkerConfig, deliverer service.Deliverer, logger *zap.Logger) *DispatchWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Queue == "" {
		cfg.Queue = "default"
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			cfg.Queue: 1,
		},
		Logger:   zapAsynqLogger{logger.Sugar()},
		LogLevel: asynq.WarnLevel,
	})

	mux := asynq.NewServeMux()
	w := &DispatchWorker{
		server:    server,
		mux:       mux,
		deliverer: deliverer,
		logger:    logger,
	}
	mux.HandleFunc(TaskOrderDispatch, w.HandleDispatch)
	return w
}

// HandleDispatch delivers the referenced outbox job. ERP failures are recorded on the job by the
// delivery step, so only infrastructure errors reach asynq, and those are never retried there.
func (w *DispatchWorker) HandleDispatch(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseDispatchPayload(task)
	if err != nil {
		return fmt.Errorf("parse dispatch payload: %v: %w", err, asynq.SkipRetry)
	}
	jobID, err := uuid.Parse(payload.OutboxID)
	if err != nil {
		return fmt.Errorf("parse outbox id %q: %v: %w", payload.OutboxID, err, asynq.SkipRetry)
	}

	outcome, err := w.deliverer.Deliver(ctx, jobID)
	if err != nil {
		w.logger.Error("dispatch task failed", zap.String("job_id", jobID.String()), zap.Error(err))
		return fmt.Errorf("deliver %s: %v: %w", jobID, err, asynq.SkipRetry)
	}
	if outcome.Err != nil {
		w.logger.Info("dispatch attempt rejected", zap.String("job_id", jobID.String()), zap.Error(outcome.Err))
	}
	return nil
}

// Run serves tasks until ctx is cancelled.
func (w *DispatchWorker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		w.logger.Error("dispatch worker failed to start", zap.Error(err))
		return err
	}
	<-ctx.Done()
	w.server.Shutdown()
	w.logger.Info("dispatch worker stopped")
	return nil
}

// zapAsynqLogger adapts zap to asynq's logger interface.
type zapAsynqLogger struct {
	s *zap.SugaredLogger
}

func (l zapAsynqLogger) Debug(args ...interface{}) { l.s.Debug(args...) }
func (l zapAsynqLogger) Info(args ...interface{})  { l.s.Info(args...) }
func (l zapAsynqLogger) Warn(args ...interface{})  { l.s.Warn(args...) }
func (l zapAsynqLogger) Error(args ...interface{}) { l.s.Error(args...) }
func (l zapAsynqLogger) Fatal(args ...interface{}) { l.s.Fatal(args...) }
