package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/lead-router/internal/domain"
	"github.com/spec-kit/lead-router/internal/repository"
	apperrors "github.com/spec-kit/lead-router/pkg/util/errorutil"
)

// OrderQueryService serves read-only order views.
type OrderQueryService struct {
	store repository.Store
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// NewOrderQueryService constructs the service.
func NewOrderQueryService(store repository.Store) *OrderQueryService {
	return &OrderQueryService{store: store}
}

// Get returns the order with its customer, detail and line items.
func (s *OrderQueryService) Get(ctx context.Context, id int64) (*domain.OrderAggregate, error) {
	return loadAggregate(ctx, s.store, id)
}

// List returns orders matching the filter, newest first.
func (s *OrderQueryService) List(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, error) {
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultListLimit
	case filter.Limit > maxListLimit:
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	orders, err := s.store.Orders().ListWithFilter(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func loadAggregate(ctx context.Context, store repository.Store, id int64) (*domain.OrderAggregate, error) {
	order, err := store.Orders().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("order", map[string]any{"order_id": id})
		}
		return nil, fmt.Errorf("load order %d: %w", id, err)
	}

	agg := &domain.OrderAggregate{Order: *order}

	customer, err := store.Customers().GetByOrderID(ctx, id)
	switch {
	case err == nil:
		agg.Customer = customer
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("load customer: %w", err)
	}

	detail, err := store.Details().GetByOrderID(ctx, id)
	switch {
	case err == nil:
		agg.Detail = detail
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("load order detail: %w", err)
	}

	items, err := store.LineItems().ListByOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load line items: %w", err)
	}
	agg.Items = items
	return agg, nil
}
