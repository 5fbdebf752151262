package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/lead-router/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventOrderCreated        EventType = "order.created"
	EventOrderStatusChanged  EventType = "order.status_changed"
	EventOrderQueueChanged   EventType = "order.queue_changed"
	EventOrderLeased         EventType = "order.leased"
	EventOrderDispatched     EventType = "order.dispatched"
	EventOrderDispatchFailed EventType = "order.dispatch_failed"
)

// AllEventTypes lists every event the service emits.
func AllEventTypes() []EventType {
	return []EventType{
		EventOrderCreated,
		EventOrderStatusChanged,
		EventOrderQueueChanged,
		EventOrderLeased,
		EventOrderDispatched,
		EventOrderDispatchFailed,
	}
}

// Actor identifies who caused an event. A nil OperatorID means the system did.
type Actor struct {
	OperatorID *int64      `json:"operator_id,omitempty"`
	Role       domain.Role `json:"role,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	OrderID   int64       `json:"order_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(eventType EventType, orderID int64, actor Actor, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		OrderID:   orderID,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// OrderCreatedPayload payload.
type OrderCreatedPayload struct {
	Status    domain.OrderStatus `json:"status"`
	LeadWebID string             `json:"lead_web_id,omitempty"`
	QueueID   *int64             `json:"queue_id,omitempty"`
}

// OrderStatusChangedPayload payload.
type OrderStatusChangedPayload struct {
	OldStatus domain.OrderStatus `json:"old_status"`
	NewStatus domain.OrderStatus `json:"new_status"`
}

// OrderQueueChangedPayload payload.
type OrderQueueChangedPayload struct {
	OldQueueID *int64 `json:"old_queue_id,omitempty"`
	NewQueueID *int64 `json:"new_queue_id,omitempty"`
}

// OrderLeasedPayload payload.
type OrderLeasedPayload struct {
	BlockedUntil time.Time `json:"blocked_until"`
}

// OrderDispatchedPayload payload.
type OrderDispatchedPayload struct {
	JobID      string `json:"job_id"`
	ERPOrderID string `json:"erp_order_id,omitempty"`
	Attempt    int    `json:"attempt"`
	Error      string `json:"error,omitempty"`
}
