package domain

import "time"

// OrderStatus is the lifecycle stage of a lead. Codes are stable and stored as-is.
type OrderStatus int16

const (
	OrderStatusNew                  OrderStatus = 1
	OrderStatusApproved             OrderStatus = 2
	OrderStatusReject               OrderStatus = 3
	OrderStatusRecall               OrderStatus = 4
	OrderStatusNoAnswer             OrderStatus = 5
	OrderStatusTrash                OrderStatus = 6
	OrderStatusPending              OrderStatus = 7
	OrderStatusInProcess            OrderStatus = 8
	OrderStatusUndelivered          OrderStatus = 9
	OrderStatusDelivered            OrderStatus = 10
	OrderStatusReturned             OrderStatus = 11
	OrderStatusFinanceMoneyReceived OrderStatus = 12
)

var orderStatusLabels = map[OrderStatus]string{
	OrderStatusNew:                  "New",
	OrderStatusApproved:             "Approved",
	OrderStatusReject:               "Reject",
	OrderStatusRecall:               "Recall",
	OrderStatusNoAnswer:             "No answer",
	OrderStatusTrash:                "Trash",
	OrderStatusPending:              "Pending",
	OrderStatusInProcess:            "In process",
	OrderStatusUndelivered:          "Undelivered",
	OrderStatusDelivered:            "Delivered",
	OrderStatusReturned:             "Returned",
	OrderStatusFinanceMoneyReceived: "Finance money received",
}

// AllOrderStatuses lists every status in code order.
func AllOrderStatuses() []OrderStatus {
	out := make([]OrderStatus, 0, len(orderStatusLabels))
	for s := OrderStatusNew; s <= OrderStatusFinanceMoneyReceived; s++ {
		out = append(out, s)
	}
	return out
}

// IsValid reports whether the status is a known code.
func (s OrderStatus) IsValid() bool {
	_, ok := orderStatusLabels[s]
	return ok
}

func (s OrderStatus) String() string {
	if label, ok := orderStatusLabels[s]; ok {
		return label
	}
	return "Unknown"
}

// IsTerminal reports whether no further transition leaves this status.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusReject, OrderStatusTrash, OrderStatusReturned, OrderStatusFinanceMoneyReceived:
		return true
	}
	return false
}

// LeavesQueue reports whether entering the status ends the call-center flow for the order.
// These are the final call-center statuses plus every delivery status.
func (s OrderStatus) LeavesQueue() bool {
	switch s {
	case OrderStatusApproved, OrderStatusReject, OrderStatusTrash,
		OrderStatusPending, OrderStatusInProcess, OrderStatusUndelivered,
		OrderStatusDelivered, OrderStatusReturned, OrderStatusFinanceMoneyReceived:
		return true
	}
	return false
}

// IsCallable reports whether an order in this status may be leased to a free operator.
func (s OrderStatus) IsCallable() bool {
	return s == OrderStatusNew || s == OrderStatusNoAnswer || s == OrderStatusRecall
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusNew:       {OrderStatusApproved, OrderStatusRecall, OrderStatusReject, OrderStatusTrash, OrderStatusNoAnswer, OrderStatusPending},
	OrderStatusRecall:    {OrderStatusNew, OrderStatusApproved, OrderStatusRecall, OrderStatusReject, OrderStatusTrash, OrderStatusNoAnswer, OrderStatusPending},
	OrderStatusNoAnswer:  {OrderStatusNew, OrderStatusApproved, OrderStatusRecall, OrderStatusReject, OrderStatusTrash, OrderStatusNoAnswer, OrderStatusPending},
	OrderStatusApproved:  {OrderStatusPending},
	OrderStatusPending:   {OrderStatusInProcess, OrderStatusUndelivered, OrderStatusDelivered, OrderStatusReturned},
	OrderStatusInProcess: {OrderStatusUndelivered, OrderStatusDelivered, OrderStatusReturned},
	OrderStatusDelivered: {OrderStatusFinanceMoneyReceived},
}

// CanTransitionTo reports whether moving from s to next follows the order state machine.
// Staying in the same status is always allowed.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SetByDispatch reports whether moving from s to next is reserved for a successful ERP dispatch.
func (s OrderStatus) SetByDispatch(next OrderStatus) bool {
	return s == OrderStatusApproved && next == OrderStatusPending
}

// RejectReason refines a Reject status.
type RejectReason int16

const (
	RejectReasonTooExpensive          RejectReason = 1
	RejectReasonChangedMind           RejectReason = 2
	RejectReasonMedicalContraindicate RejectReason = 3
	RejectReasonNoComments            RejectReason = 4
	RejectReasonProductUnknown        RejectReason = 5
	RejectReasonBoughtElsewhere       RejectReason = 6
	RejectReasonNegativeFeedback      RejectReason = 7
	RejectReasonPersonalReason        RejectReason = 8
	RejectReasonCannotAfford          RejectReason = 9
	RejectReasonDelivered             RejectReason = 10
	RejectReasonReject                RejectReason = 11
	RejectReasonInquiry               RejectReason = 12
	RejectReasonOutOfDeliveryZone     RejectReason = 13
	RejectReasonDeliveryDates         RejectReason = 14
	RejectReasonAutoReject            RejectReason = 15
	RejectReasonLostConnection        RejectReason = 16
)

// IsValid reports whether the reason is a known code.
func (r RejectReason) IsValid() bool {
	return r >= RejectReasonTooExpensive && r <= RejectReasonLostConnection
}

// Order models a lead moving through the call center and fulfilment.
type Order struct {
	ID                int64
	Status            OrderStatus
	RejectReason      *RejectReason
	CurrentQueueID    *int64
	CurrentOperatorID *int64
	BlockedUntil      *time.Time
	LeadWebID         string
	LeadSite          string
	CampaignID        string
	LeadPartnerID     string
	ForeignID         *int64
	LeadProductID     *int64
	TotalPrice        float64
	LeadPrice         float64
	LeadRevenue       float64
	ERPOrderID        *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// InQueue reports whether the order is linked to the given queue.
func (o *Order) InQueue(queueID int64) bool {
	return o.CurrentQueueID != nil && *o.CurrentQueueID == queueID
}

// LeaseHeldBy reports whether operatorID is the recorded lease holder.
func (o *Order) LeaseHeldBy(operatorID int64) bool {
	return o.CurrentOperatorID != nil && *o.CurrentOperatorID == operatorID
}

// LeaseFree reports whether no live lease blocks a new operator at now.
func (o *Order) LeaseFree(now time.Time) bool {
	if o.BlockedUntil != nil && o.BlockedUntil.After(now) {
		return false
	}
	return true
}

// Customer holds the buyer contact data attached 1:1 to an order.
type Customer struct {
	OrderID     int64
	Name        string
	Phone       string
	Email       string
	ExtraPhones string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AddressInfo is the structured delivery address.
type AddressInfo struct {
	Country   string `json:"country,omitempty"`
	Region    string `json:"region,omitempty"`
	City      string `json:"city,omitempty"`
	Street    string `json:"street,omitempty"`
	House     string `json:"house,omitempty"`
	Apartment string `json:"apartment,omitempty"`
	Postcode  string `json:"postcode,omitempty"`
}

// OrderDetail holds delivery information attached 1:1 to an order.
type OrderDetail struct {
	OrderID         int64
	AddressByClient string
	AddressInfo     AddressInfo
	Comment         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderAggregate bundles an order with its sub-records.
type OrderAggregate struct {
	Order    Order
	Customer *Customer
	Detail   *OrderDetail
	Items    []LineItem
}
