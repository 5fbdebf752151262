package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/lead-router/internal/domain"
	"github.com/spec-kit/lead-router/internal/erp"
	"github.com/spec-kit/lead-router/internal/events"
	"github.com/spec-kit/lead-router/internal/observability"
	"github.com/spec-kit/lead-router/internal/repository"
	apperrors "github.com/spec-kit/lead-router/pkg/util/errorutil"
)

const defaultMaxBackoff = time.Hour

// DispatchClient is the part of the ERP client the dispatch step needs.
type DispatchClient interface {
	Dispatch(ctx context.Context, payload erp.OrderPayload) (string, error)
	OrderStatus(ctx context.Context, externalID string) (string, error)
}

// DispatchService delivers outbox jobs to the ERP.
type DispatchService struct {
	store       repository.TxStore
	client      DispatchClient
	maxAttempts int
	backoff     time.Duration
	maxBackoff  time.Duration
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
	now         Clock
}

// DispatchDependencies bundles collaborators for the dispatch service.
type DispatchDependencies struct {
	Store       repository.TxStore
	Client      DispatchClient
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Clock       Clock
}

// DispatchOutcome reports what one delivery did.
type DispatchOutcome struct {
	Job        *domain.DispatchJob
	Order      *domain.Order
	ExternalID string
	// Err is the ERP failure, if any. It is not returned as an error because the job stays in the outbox.
	Err     error
	Skipped bool
}

// NewDispatchService constructs the service.
func NewDispatchService(deps DispatchDependencies) *DispatchService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxAttempts := deps.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 8
	}
	backoff := deps.Backoff
	if backoff <= 0 {
		backoff = 30 * time.Second
	}
	maxBackoff := deps.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	return &DispatchService{
		store:       deps.Store,
		client:      deps.Client,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		maxBackoff:  maxBackoff,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      logger,
		now:         deps.Clock.orDefault(),
	}
}

// RetryDelay returns the wait after the given number of failed attempts: base doubled per attempt, capped at limit.
func RetryDelay(base, limit time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= limit {
			return limit
		}
	}
	if delay > limit {
		return limit
	}
	return delay
}

// Deliver claims the job and sends its order to the ERP.
func (s *DispatchService) Deliver(ctx context.Context, jobID uuid.UUID) (*DispatchOutcome, error) {
	job, err := s.store.Dispatches().MarkProcessing(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("claim dispatch job %s: %w", jobID, err)
	}
	if job == nil {
		s.logger.Debug("dispatch job not claimable", zap.String("job_id", jobID.String()))
		return &DispatchOutcome{Skipped: true}, nil
	}

	logger := s.logger.With(zap.String("job_id", job.ID.String()), zap.Int64("order_id", job.OrderID), zap.Int("attempt", job.Attempts))

	agg, err := loadAggregate(ctx, s.store, job.OrderID)
	if err != nil {
		if retryErr := s.scheduleRetry(ctx, job, err.Error()); retryErr != nil {
			logger.Error("dispatch retry scheduling failed", zap.Error(retryErr))
		}
		return nil, err
	}

	if agg.Order.Status != domain.OrderStatusApproved {
		reason := fmt.Sprintf("order is %s", agg.Order.Status)
		if err := s.store.Dispatches().MarkSkipped(ctx, job.ID, reason); err != nil {
			return nil, fmt.Errorf("skip dispatch job: %w", err)
		}
		s.metrics.RecordDispatch("skipped")
		logger.Info("dispatch skipped", zap.String("reason", reason))
		return &DispatchOutcome{Job: job, Order: &agg.Order, Skipped: true}, nil
	}

	payload, err := erp.BuildPayload(*agg)
	if err != nil {
		return nil, fmt.Errorf("build erp payload: %w", err)
	}

	externalID, dispatchErr := s.client.Dispatch(ctx, payload)
	if dispatchErr != nil {
		logger.Warn("erp dispatch failed", zap.Error(dispatchErr))
		if err := s.scheduleRetry(ctx, job, dispatchErr.Error()); err != nil {
			return nil, err
		}
		s.publish(ctx, events.EventOrderDispatchFailed, job, "", dispatchErr)
		return &DispatchOutcome{Job: job, Order: &agg.Order, Err: dispatchErr}, nil
	}

	var updated *domain.Order
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		moved, err := tx.Orders().TransitionStatus(ctx, job.OrderID, domain.OrderStatusApproved, domain.OrderStatusPending, &externalID)
		if err != nil {
			return fmt.Errorf("mark order pending: %w", err)
		}
		if !moved {
			logger.Warn("order left approved while dispatching", zap.String("erp_order_id", externalID))
		}
		if err := tx.Dispatches().MarkSucceeded(ctx, job.ID, externalID); err != nil {
			return fmt.Errorf("mark dispatch succeeded: %w", err)
		}
		updated, err = tx.Orders().GetByID(ctx, job.OrderID)
		return err
	})
	if err != nil {
		logger.Error("erp accepted order but local update failed", zap.String("erp_order_id", externalID), zap.Error(err))
		return nil, err
	}

	s.metrics.RecordDispatch("succeeded")
	logger.Info("order dispatched", zap.String("erp_order_id", externalID))
	s.publish(ctx, events.EventOrderDispatched, job, externalID, nil)
	if s.dispatcher != nil && updated.Status != agg.Order.Status {
		_ = s.dispatcher.Publish(ctx, events.NewEvent(events.EventOrderStatusChanged, updated.ID, events.Actor{},
			events.OrderStatusChangedPayload{OldStatus: agg.Order.Status, NewStatus: updated.Status}))
	}
	return &DispatchOutcome{Job: job, Order: updated, ExternalID: externalID}, nil
}

// Requeue schedules a new delivery for an approved order and runs it at once.
func (s *DispatchService) Requeue(ctx context.Context, orderID int64, actor Actor) (*DispatchOutcome, error) {
	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("order", map[string]any{"order_id": orderID})
		}
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order.Status != domain.OrderStatusApproved {
		return nil, apperrors.NewBusinessRule("only approved orders can be dispatched", map[string]any{
			"order_id": orderID,
			"status":   order.Status.String(),
		})
	}

	job, created, err := s.store.Dispatches().Enqueue(ctx, orderID, s.now())
	if err != nil {
		return nil, fmt.Errorf("enqueue dispatch: %w", err)
	}
	s.logger.Info("dispatch requeued",
		zap.Int64("order_id", orderID),
		zap.Int64("operator_id", actor.OperatorID),
		zap.String("job_id", job.ID.String()),
		zap.Bool("created", created))

	return s.Deliver(ctx, job.ID)
}

// RemoteStatus asks the ERP for the status of a dispatched order.
func (s *DispatchService) RemoteStatus(ctx context.Context, orderID int64) (string, error) {
	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.NewNotFound("order", map[string]any{"order_id": orderID})
		}
		return "", fmt.Errorf("load order: %w", err)
	}
	if order.ERPOrderID == nil {
		return "", apperrors.NewBusinessRule("order has not been dispatched", map[string]any{"order_id": orderID})
	}

	status, err := s.client.OrderStatus(ctx, *order.ERPOrderID)
	if err != nil {
		return "", apperrors.NewUpstreamError("erp status query failed", err)
	}
	return status, nil
}

func (s *DispatchService) scheduleRetry(ctx context.Context, job *domain.DispatchJob, lastError string) error {
	if job.Attempts >= s.maxAttempts {
		if err := s.store.Dispatches().MarkFailed(ctx, job.ID, lastError); err != nil {
			return fmt.Errorf("mark dispatch failed: %w", err)
		}
		s.metrics.RecordDispatch("failed")
		s.logger.Error("dispatch gave up", zap.String("job_id", job.ID.String()), zap.Int("attempts", job.Attempts))
		return nil
	}
	runAt := s.now().Add(RetryDelay(s.backoff, s.maxBackoff, job.Attempts))
	if err := s.store.Dispatches().MarkRetry(ctx, job.ID, runAt, lastError); err != nil {
		return fmt.Errorf("reschedule dispatch: %w", err)
	}
	s.metrics.RecordDispatch("retry")
	return nil
}

func (s *DispatchService) publish(ctx context.Context, eventType events.EventType, job *domain.DispatchJob, externalID string, dispatchErr error) {
	if s.dispatcher == nil {
		return
	}
	payload := events.OrderDispatchedPayload{JobID: job.ID.String(), ERPOrderID: externalID, Attempt: job.Attempts}
	if dispatchErr != nil {
		payload.Error = dispatchErr.Error()
	}
	_ = s.dispatcher.Publish(ctx, events.NewEvent(eventType, job.OrderID, events.Actor{}, payload))
}
