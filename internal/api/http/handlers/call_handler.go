package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/lead-router/internal/domain"
)

// LeaseProvider hands out the next order to call.
type LeaseProvider interface {
	NextAvailable(ctx context.Context, operatorID int64) (*domain.Order, error)
}

// CallHandler serves the operator call screen.
type CallHandler struct {
	leases  LeaseProvider
	commits OrderCommitter
	orders  OrderReader
}

// NewCallHandler constructs handler.
func NewCallHandler(leases LeaseProvider, commits OrderCommitter, orders OrderReader) *CallHandler {
	return &CallHandler{leases: leases, commits: commits, orders: orders}
}

// Next GET /api/v1/call/next. Responds 204 when nothing is eligible.
func (h *CallHandler) Next(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	order, err := h.leases.NextAvailable(c.UserContext(), actor.OperatorID)
	if err != nil {
		return err
	}
	if order == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}

	agg, err := h.orders.Get(c.UserContext(), order.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": orderDetail(agg)})
}

// Submit POST /api/v1/call/:id.
func (h *CallHandler) Submit(c *fiber.Ctx) error {
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
	input.FromCallForm = true

	result, err := h.commits.Commit(c.UserContext(), input, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": commitResponse(result)})
}
