package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/lead-router/internal/domain"
	"github.com/spec-kit/lead-router/internal/repository"
	apperrors "github.com/spec-kit/lead-router/pkg/util/errorutil"
)

// QueueAssignmentService moves orders between queues and keeps the attempt ledger consistent.
// Every method works on the Store it is given, so callers decide the transaction.
type QueueAssignmentService struct {
	now    Clock
	logger *zap.Logger
}

// NewQueueAssignmentService constructs the service.
func NewQueueAssignmentService(clock Clock, logger *zap.Logger) *QueueAssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueAssignmentService{now: clock.orDefault(), logger: logger}
}

// LinkToQueue places the order in queueID if needed and records an attempt there.
func (s *QueueAssignmentService) LinkToQueue(ctx context.Context, store repository.Store, order *domain.Order, queueID int64, operatorID *int64) (*domain.Attempt, error) {
	if err := s.MoveToQueue(ctx, store, order, queueID); err != nil {
		return nil, err
	}

	live, err := s.LiveAttemptCount(ctx, store, order.ID, queueID)
	if err != nil {
		return nil, err
	}

	attempt := &domain.Attempt{
		OrderID:               order.ID,
		QueueID:               queueID,
		OperatorID:            operatorID,
		IsFirstAttemptInQueue: live == 0,
		State:                 domain.AttemptStateLive,
	}
	if err := store.Attempts().Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("record attempt: %w", err)
	}
	return attempt, nil
}

// MoveToQueue changes the order's current queue. Live attempts of the queue it leaves are invalidated.
func (s *QueueAssignmentService) MoveToQueue(ctx context.Context, store repository.Store, order *domain.Order, queueID int64) error {
	if order.InQueue(queueID) {
		return nil
	}
	if _, err := store.Queues().GetByID(ctx, queueID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewBusinessRule("target queue does not exist", map[string]any{"queue_id": queueID})
		}
		return fmt.Errorf("load queue %d: %w", queueID, err)
	}

	if err := s.invalidateCurrent(ctx, store, order); err != nil {
		return err
	}

	target := queueID
	if err := store.Orders().UpdateQueue(ctx, order.ID, &target); err != nil {
		return fmt.Errorf("move order %d to queue %d: %w", order.ID, queueID, err)
	}
	order.CurrentQueueID = &target
	return nil
}

// UnlinkFromQueue removes the order from its queue, invalidating the live attempts there.
func (s *QueueAssignmentService) UnlinkFromQueue(ctx context.Context, store repository.Store, order *domain.Order) error {
	if order.CurrentQueueID == nil {
		return nil
	}
	if err := s.invalidateCurrent(ctx, store, order); err != nil {
		return err
	}
	if err := store.Orders().UpdateQueue(ctx, order.ID, nil); err != nil {
		return fmt.Errorf("unlink order %d: %w", order.ID, err)
	}
	order.CurrentQueueID = nil
	return nil
}

// LiveAttemptCount returns the number of attempts counting toward queueID's cap.
func (s *QueueAssignmentService) LiveAttemptCount(ctx context.Context, store repository.Store, orderID, queueID int64) (int, error) {
	count, err := store.Attempts().CountLive(ctx, orderID, queueID)
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return count, nil
}

func (s *QueueAssignmentService) invalidateCurrent(ctx context.Context, store repository.Store, order *domain.Order) error {
	if order.CurrentQueueID == nil {
		return nil
	}
	invalidated, err := store.Attempts().InvalidateLive(ctx, order.ID, *order.CurrentQueueID, s.now())
	if err != nil {
		return fmt.Errorf("invalidate attempts: %w", err)
	}
	if invalidated > 0 {
		s.logger.Debug("attempts invalidated",
			zap.Int64("order_id", order.ID),
			zap.Int64("queue_id", *order.CurrentQueueID),
			zap.Int64("count", invalidated))
	}
	return nil
}
