package dto

import (
	"time"

	"github.com/spec-kit/lead-router/internal/domain"
)

// OrderRequest is the submitted lead form, shared by the supervisor and call forms.
type OrderRequest struct {
	Status        int16             `json:"status"`
	RejectReason  *int16            `json:"reject_reason"`
	LeadWebID     string            `json:"lead_web_id"`
	LeadSite      string            `json:"lead_site"`
	CampaignID    string            `json:"campaign_id"`
	LeadPartnerID string            `json:"lead_partner_id"`
	ForeignID     *int64            `json:"foreign_id"`
	LeadProductID *int64            `json:"lead_product_id"`
	TotalPrice    float64           `json:"total_price"`
	LeadPrice     float64           `json:"lead_price"`
	LeadRevenue   float64           `json:"lead_revenue"`
	Customer      CustomerRequest   `json:"customer"`
	Detail        DetailRequest     `json:"detail"`
	Items         []LineItemRequest `json:"items"`
}

// CustomerRequest payload.
type CustomerRequest struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	ExtraPhones string `json:"extra_phones"`
}

// DetailRequest payload.
type DetailRequest struct {
	AddressByClient string             `json:"address_by_client"`
	AddressInfo     domain.AddressInfo `json:"address_info"`
	Comment         string             `json:"comment"`
}

// LineItemRequest payload.
type LineItemRequest struct {
	ProductID   int64   `json:"product_id"`
	ProductType int16   `json:"product_type"`
	Quantity    int     `json:"quantity"`
	PriceForOne float64 `json:"price_for_one"`
	TotalPrice  float64 `json:"total_price"`
}

// OrderSummary response.
type OrderSummary struct {
	ID                int64      `json:"id"`
	Status            int16      `json:"status"`
	StatusLabel       string     `json:"status_label"`
	RejectReason      *int16     `json:"reject_reason"`
	CurrentQueueID    *int64     `json:"current_queue_id"`
	CurrentOperatorID *int64     `json:"current_operator_id"`
	BlockedUntil      *time.Time `json:"blocked_until"`
	LeadWebID         string     `json:"lead_web_id"`
	LeadSite          string     `json:"lead_site"`
	CampaignID        string     `json:"campaign_id"`
	LeadPartnerID     string     `json:"lead_partner_id"`
	ForeignID         *int64     `json:"foreign_id"`
	LeadProductID     *int64     `json:"lead_product_id"`
	TotalPrice        float64    `json:"total_price"`
	LeadPrice         float64    `json:"lead_price"`
	LeadRevenue       float64    `json:"lead_revenue"`
	ERPOrderID        *string    `json:"erp_order_id"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// OrderDetailResponse is an order with its sub-records.
type OrderDetailResponse struct {
	OrderSummary
	Customer *CustomerResponse  `json:"customer"`
	Detail   *DetailResponse    `json:"detail"`
	Items    []LineItemResponse `json:"items"`
}

// CustomerResponse payload.
type CustomerResponse struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	ExtraPhones string `json:"extra_phones"`
}

// DetailResponse payload.
type DetailResponse struct {
	AddressByClient string             `json:"address_by_client"`
	AddressInfo     domain.AddressInfo `json:"address_info"`
	Comment         string             `json:"comment"`
}

// LineItemResponse payload.
type LineItemResponse struct {
	ID          int64   `json:"id"`
	ProductID   int64   `json:"product_id"`
	ProductType int16   `json:"product_type"`
	Quantity    int     `json:"quantity"`
	PriceForOne float64 `json:"price_for_one"`
	TotalPrice  float64 `json:"total_price"`
}

// RoutingActionResponse describes one applied routing step.
type RoutingActionResponse struct {
	Kind      string `json:"kind"`
	QueueID   *int64 `json:"queue_id,omitempty"`
	Status    *int16 `json:"status,omitempty"`
	TriggerID *int64 `json:"trigger_id,omitempty"`
}

// CommitResponse is returned by every order submission.
type CommitResponse struct {
	Order         OrderSummary            `json:"order"`
	Created       bool                    `json:"created"`
	DispatchJobID *string                 `json:"dispatch_job_id,omitempty"`
	Routing       []RoutingActionResponse `json:"routing"`
	Warnings      []string                `json:"warnings,omitempty"`
}

// DispatchResponse reports a manual ERP resubmission.
type DispatchResponse struct {
	Order      *OrderSummary `json:"order,omitempty"`
	Dispatched bool          `json:"dispatched"`
	ERPOrderID string        `json:"erp_order_id,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// ERPStatusResponse carries the ERP's view of an order.
type ERPStatusResponse struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}
