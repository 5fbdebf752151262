package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/lead-router/internal/api/dto"
	"github.com/spec-kit/lead-router/internal/auth"
	"github.com/spec-kit/lead-router/internal/domain"
	"github.com/spec-kit/lead-router/internal/repository"
	"github.com/spec-kit/lead-router/internal/service"
	apperrors "github.com/spec-kit/lead-router/pkg/util/errorutil"
)

func actorFrom(c *fiber.Ctx) (service.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Operator == nil {
		return service.Actor{}, apperrors.NewUnauthorized("operator required")
	}
	return service.Actor{OperatorID: principal.OperatorID(), Role: principal.Role}, nil
}

func orderIDParam(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid order id", map[string]any{"id": c.Params("id")})
	}
	return id, nil
}

func parseOrderRequest(c *fiber.Ctx) (service.CommitInput, error) {
	var req dto.OrderRequest
	if err := c.BodyParser(&req); err != nil {
		return service.CommitInput{}, apperrors.NewValidationError("invalid payload", nil)
	}
	return commitInput(req), nil
}

func commitInput(req dto.OrderRequest) service.CommitInput {
	input := service.CommitInput{
		Status:        domain.OrderStatus(req.Status),
		LeadWebID:     req.LeadWebID,
		LeadSite:      req.LeadSite,
		CampaignID:    req.CampaignID,
		LeadPartnerID: req.LeadPartnerID,
		ForeignID:     req.ForeignID,
		LeadProductID: req.LeadProductID,
		TotalPrice:    req.TotalPrice,
		LeadPrice:     req.LeadPrice,
		LeadRevenue:   req.LeadRevenue,
		Customer: service.CustomerInput{
			Name:        req.Customer.Name,
			Phone:       req.Customer.Phone,
			Email:       req.Customer.Email,
			ExtraPhones: req.Customer.ExtraPhones,
		},
		Detail: service.DetailInput{
			AddressByClient: req.Detail.AddressByClient,
			AddressInfo:     req.Detail.AddressInfo,
			Comment:         req.Detail.Comment,
		},
		Items: make([]service.LineItemInput, 0, len(req.Items)),
	}
	if req.RejectReason != nil {
		reason := domain.RejectReason(*req.RejectReason)
		input.RejectReason = &reason
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, service.LineItemInput{
			ProductID:   item.ProductID,
			ProductType: domain.ProductType(item.ProductType),
			Quantity:    item.Quantity,
			PriceForOne: item.PriceForOne,
			TotalPrice:  item.TotalPrice,
		})
	}
	return input
}

func parseOrderQuery(c *fiber.Ctx) (repository.OrderFilter, error) {
	filter := repository.OrderFilter{
		Limit:  parseInt(c.Query("limit"), 50),
		Offset: parseInt(c.Query("offset"), 0),
	}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			code, err := strconv.ParseInt(strings.TrimSpace(part), 10, 16)
			if err != nil || !domain.OrderStatus(code).IsValid() {
				return filter, apperrors.NewValidationError("invalid status filter", map[string]any{"status": part})
			}
			filter.Statuses = append(filter.Statuses, domain.OrderStatus(code))
		}
	}
	if queueID := parseInt64(c.Query("queue_id")); queueID != nil {
		filter.QueueID = queueID
	}
	if operatorID := parseInt64(c.Query("operator_id")); operatorID != nil {
		filter.OperatorID = operatorID
	}
	if webID := strings.TrimSpace(c.Query("lead_web_id")); webID != "" {
		filter.LeadWebID = &webID
	}
	filter.CreatedFrom = parseTime(c.Query("created_from"))
	filter.CreatedTo = parseTime(c.Query("created_to"))
	return filter, nil
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

func parseInt64(val string) *int64 {
	if val == "" {
		return nil
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil || parsed <= 0 {
		return nil
	}
	return &parsed
}

func orderSummary(order *domain.Order) dto.OrderSummary {
	summary := dto.OrderSummary{
		ID:                order.ID,
		Status:            int16(order.Status),
		StatusLabel:       order.Status.String(),
		CurrentQueueID:    order.CurrentQueueID,
		CurrentOperatorID: order.CurrentOperatorID,
		BlockedUntil:      order.BlockedUntil,
		LeadWebID:         order.LeadWebID,
		LeadSite:          order.LeadSite,
		CampaignID:        order.CampaignID,
		LeadPartnerID:     order.LeadPartnerID,
		ForeignID:         order.ForeignID,
		LeadProductID:     order.LeadProductID,
		TotalPrice:        order.TotalPrice,
		LeadPrice:         order.LeadPrice,
		LeadRevenue:       order.LeadRevenue,
		ERPOrderID:        order.ERPOrderID,
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
	}
	if order.RejectReason != nil {
		reason := int16(*order.RejectReason)
		summary.RejectReason = &reason
	}
	return summary
}

func orderDetail(agg *domain.OrderAggregate) dto.OrderDetailResponse {
	resp := dto.OrderDetailResponse{
		OrderSummary: orderSummary(&agg.Order),
		Items:        make([]dto.LineItemResponse, 0, len(agg.Items)),
	}
	if agg.Customer != nil {
		resp.Customer = &dto.CustomerResponse{
			Name:        agg.Customer.Name,
			Phone:       agg.Customer.Phone,
			Email:       agg.Customer.Email,
			ExtraPhones: agg.Customer.ExtraPhones,
		}
	}
	if agg.Detail != nil {
		resp.Detail = &dto.DetailResponse{
			AddressByClient: agg.Detail.AddressByClient,
			AddressInfo:     agg.Detail.AddressInfo,
			Comment:         agg.Detail.Comment,
		}
	}
	for _, item := range agg.Items {
		resp.Items = append(resp.Items, dto.LineItemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductType: int16(item.ProductType),
			Quantity:    item.Quantity,
			PriceForOne: item.PriceForOne,
			TotalPrice:  item.TotalPrice,
		})
	}
	return resp
}

func commitResponse(result *service.CommitResult) dto.CommitResponse {
	resp := dto.CommitResponse{
		Order:    orderSummary(result.Order),
		Created:  result.Created,
		Routing:  make([]dto.RoutingActionResponse, 0, len(result.Actions)),
		Warnings: result.Warnings,
	}
	if result.JobID != nil {
		jobID := result.JobID.String()
		resp.DispatchJobID = &jobID
	}
	for _, action := range result.Actions {
		entry := dto.RoutingActionResponse{Kind: string(action.Kind)}
		switch action.Kind {
		case domain.RoutingMoveToQueue:
			queueID := action.QueueID
			entry.QueueID = &queueID
		case domain.RoutingSetStatus:
			status := int16(action.Status)
			entry.Status = &status
		}
		if action.TriggerID != 0 {
			triggerID := action.TriggerID
			entry.TriggerID = &triggerID
		}
		resp.Routing = append(resp.Routing, entry)
	}
	return resp
}
