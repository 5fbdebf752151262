package handlers

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/lead-router/internal/api/dto"
	"github.com/spec-kit/lead-router/internal/domain"
	"github.com/spec-kit/lead-router/internal/repository"
	"github.com/spec-kit/lead-router/internal/service"
)

// OrderCommitter runs the commit pipeline.
type OrderCommitter interface {
	Commit(ctx context.Context, input service.CommitInput, actor service.Actor) (*service.CommitResult, error)
}

// OrderReader serves order views.
type OrderReader interface {
	Get(ctx context.Context, id int64) (*domain.OrderAggregate, error)
	List(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, error)
}

// OrderDispatcher resubmits orders to the ERP and queries it.
type OrderDispatcher interface {
	Requeue(ctx context.Context, orderID int64, actor service.Actor) (*service.DispatchOutcome, error)
	RemoteStatus(ctx context.Context, orderID int64) (string, error)
}

// OrdersHandler manages supervisor order endpoints.
type OrdersHandler struct {
	commits    OrderCommitter
	orders     OrderReader
	dispatches OrderDispatcher
}

// NewOrdersHandler constructs handler.
func NewOrdersHandler(commits OrderCommitter, orders OrderReader, dispatches OrderDispatcher) *OrdersHandler {
	return &OrdersHandler{commits: commits, orders: orders, dispatches: dispatches}
}

// Create POST /api/v1/orders.
func (h *OrdersHandler) Create(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	input, err := parseOrderRequest(c)
	if err != nil {
		return err
	}

	result, err := h.commits.Commit(c.UserContext(), input, actor)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": commitResponse(result)})
}

// Update PUT /api/v1/orders/:id.
func (h *OrdersHandler) Update(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := orderIDParam(c)
	if err != nil {
		return err
	}
	input, err := parseOrderRequest(c)
	if err != nil {
		return err
	}
	input.OrderID = &id

	result, err := h.commits.Commit(c.UserContext(), input, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": commitResponse(result)})
}

// Get GET /api/v1/orders/:id.
func (h *OrdersHandler) Get(c *fiber.Ctx) error {
	id, err := orderIDParam(c)
	if err != nil {
		return err
	}
	agg, err := h.orders.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": orderDetail(agg)})
}

// List GET /api/v1/orders.
func (h *OrdersHandler) List(c *fiber.Ctx) error {
	filter, err := parseOrderQuery(c)
	if err != nil {
		return err
	}
	orders, err := h.orders.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.OrderSummary, 0, len(orders))
	for i := range orders {
		items = append(items, orderSummary(&orders[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Dispatch POST /api/v1/orders/:id/dispatch.
func (h *OrdersHandler) Dispatch(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := orderIDParam(c)
	if err != nil {
		return err
	}

	outcome, err := h.dispatches.Requeue(c.UserContext(), id, actor)
	if err != nil {
		return err
	}
	resp := dto.DispatchResponse{
		Dispatched: outcome.Err == nil && !outcome.Skipped,
		ERPOrderID: outcome.ExternalID,
	}
	if outcome.Order != nil {
		summary := orderSummary(outcome.Order)
		resp.Order = &summary
	}
	if outcome.Err != nil {
		resp.Error = outcome.Err.Error()
	}
	return c.JSON(fiber.Map{"data": resp})
}

// ERPStatus GET /api/v1/orders/:id/erp-status.
func (h *OrdersHandler) ERPStatus(c *fiber.Ctx) error {
	id, err := orderIDParam(c)
	if err != nil {
		return err
	}
	status, err := h.dispatches.RemoteStatus(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ERPStatusResponse{OrderID: id, Status: status}})
}
