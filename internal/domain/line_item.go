package domain

import "time"

// ProductType classifies how a line item is billed.
type ProductType int16

const (
	ProductTypePaid     ProductType = 1
	ProductTypeFree     ProductType = 2
	ProductTypeDiscount ProductType = 3
	ProductTypeGift     ProductType = 4
)

// IsValid reports whether the type is a known code.
func (t ProductType) IsValid() bool {
	return t >= ProductTypePaid && t <= ProductTypeGift
}

// LineItem is one product row of an order.
type LineItem struct {
	ID          int64
	OrderID     int64
	ProductID   int64
	ProductType ProductType
	Quantity    int
	PriceForOne float64
	TotalPrice  float64
	CreatedAt   time.Time
}

// IsPaid reports whether the item carries a positive total.
func (li LineItem) IsPaid() bool {
	return li.TotalPrice > 0
}

// HasPaidItems reports whether at least one item is paid.
func HasPaidItems(items []LineItem) bool {
	for _, item := range items {
		if item.IsPaid() {
			return true
		}
	}
	return false
}
