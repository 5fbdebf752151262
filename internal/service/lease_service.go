package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/lead-router/internal/domain"
	"github.com/spec-kit/lead-router/internal/events"
	"github.com/spec-kit/lead-router/internal/observability"
	"github.com/spec-kit/lead-router/internal/repository"
	apperrors "github.com/spec-kit/lead-router/pkg/util/errorutil"
)

// LeaseService hands the next order to an operator.
type LeaseService struct {
	store      repository.TxStore
	duration   time.Duration
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        Clock
}

// LeaseDependencies bundles collaborators for the lease service.
type LeaseDependencies struct {
	Store         repository.TxStore
	LeaseDuration time.Duration
	Dispatcher    events.Dispatcher
	Metrics       *observability.Metrics
	Logger        *zap.Logger
	Clock         Clock
}

// NewLeaseService constructs the service.
func NewLeaseService(deps LeaseDependencies) *LeaseService {
	duration := deps.LeaseDuration
	if duration <= 0 {
		duration = domain.DefaultLeaseDuration
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeaseService{
		store:      deps.Store,
		duration:   duration,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        deps.Clock.orDefault(),
	}
}

// NextAvailable leases the best eligible order to the operator. A nil order means nothing is eligible now.
// An operator already holding a lease gets that order back with the lease extended.
func (s *LeaseService) NextAvailable(ctx context.Context, operatorID int64) (*domain.Order, error) {
	operator, err := s.store.Operators().GetByID(ctx, operatorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("operator", map[string]any{"operator_id": operatorID})
		}
		return nil, fmt.Errorf("load operator: %w", err)
	}
	if !operator.IsActive() {
		return nil, apperrors.NewForbidden("operator is not active")
	}

	now := s.now()
	until := now.Add(s.duration)
	order, err := s.store.Orders().ClaimNext(ctx, operator, now, until)
	if err != nil {
		return nil, fmt.Errorf("claim next order: %w", err)
	}
	if order == nil {
		s.metrics.RecordLease("empty")
		return nil, nil
	}

	s.metrics.RecordLease("granted")
	s.logger.Info("order leased",
		zap.Int64("order_id", order.ID),
		zap.Int64("operator_id", operator.ID),
		zap.Time("blocked_until", until))

	if s.dispatcher != nil {
		actor := Actor{OperatorID: operator.ID, Role: operator.Role}
		_ = s.dispatcher.Publish(ctx, events.NewEvent(events.EventOrderLeased, order.ID, actor.eventActor(),
			events.OrderLeasedPayload{BlockedUntil: until}))
	}
	return order, nil
}
