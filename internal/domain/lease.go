package domain

import "time"

// DefaultLeaseDuration is how long an operator holds a presented order.
const DefaultLeaseDuration = 30 * time.Minute

// LeaseCandidate is an order considered for leasing together with the data its
// eligibility depends on.
type LeaseCandidate struct {
	Order         Order
	QueuePriority int16
	ProductIDs    []int64
}

// EligibleFor reports whether op may be presented the candidate at now.
func (c LeaseCandidate) EligibleFor(op *Operator, now time.Time) bool {
	o := c.Order
	if o.CurrentQueueID == nil || !op.WorksQueue(*o.CurrentQueueID) {
		return false
	}
	if !op.HandlesWebID(o.LeadWebID) {
		return false
	}
	sells := false
	for _, productID := range c.ProductIDs {
		if op.SellsProduct(productID) {
			sells = true
			break
		}
	}
	if !sells {
		return false
	}
	if o.LeaseHeldBy(op.ID) {
		return true
	}
	return o.Status.IsCallable() && o.LeaseFree(now)
}

// LeaseOrderLess orders candidates by queue priority descending, then oldest first.
func LeaseOrderLess(a, b LeaseCandidate) bool {
	if a.QueuePriority != b.QueuePriority {
		return a.QueuePriority > b.QueuePriority
	}
	if !a.Order.CreatedAt.Equal(b.Order.CreatedAt) {
		return a.Order.CreatedAt.Before(b.Order.CreatedAt)
	}
	return a.Order.ID < b.Order.ID
}
