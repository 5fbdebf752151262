package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		allowed  bool
	}{
		{OrderStatusNew, OrderStatusApproved, true},
		{OrderStatusNew, OrderStatusNew, true},
		{OrderStatusNew, OrderStatusDelivered, false},
		{OrderStatusRecall, OrderStatusNew, true},
		{OrderStatusNoAnswer, OrderStatusRecall, true},
		{OrderStatusApproved, OrderStatusPending, true},
		{OrderStatusApproved, OrderStatusNew, false},
		{OrderStatusPending, OrderStatusDelivered, true},
		{OrderStatusDelivered, OrderStatusFinanceMoneyReceived, true},
		{OrderStatusTrash, OrderStatusNew, false},
		{OrderStatusReject, OrderStatusApproved, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}

	assert.True(t, OrderStatusApproved.SetByDispatch(OrderStatusPending))
	assert.False(t, OrderStatusNew.SetByDispatch(OrderStatusPending))
	assert.False(t, OrderStatusApproved.SetByDispatch(OrderStatusApproved))
}

func TestOrderStatusClassification(t *testing.T) {
	for _, s := range AllOrderStatuses() {
		assert.True(t, s.IsValid(), s.String())
		if s.IsCallable() {
			assert.False(t, s.LeavesQueue(), "%s is callable but leaves the queue", s)
		}
	}
	assert.Len(t, AllOrderStatuses(), 12)
	assert.False(t, OrderStatus(0).IsValid())
	assert.Equal(t, "Unknown", OrderStatus(42).String())

	assert.True(t, OrderStatusApproved.LeavesQueue())
	assert.True(t, OrderStatusPending.LeavesQueue())
	assert.False(t, OrderStatusRecall.LeavesQueue())
	assert.False(t, OrderStatusNoAnswer.LeavesQueue())
	assert.True(t, OrderStatusTrash.IsTerminal())
	assert.False(t, OrderStatusApproved.IsTerminal())
}

func TestLeaseFree(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	assert.True(t, (&Order{}).LeaseFree(now))
	assert.True(t, (&Order{BlockedUntil: &past}).LeaseFree(now))
	assert.True(t, (&Order{BlockedUntil: &now}).LeaseFree(now))
	assert.False(t, (&Order{BlockedUntil: &future}).LeaseFree(now))
}

func TestRejectReasonAndProductType(t *testing.T) {
	assert.True(t, RejectReasonTooExpensive.IsValid())
	assert.True(t, RejectReasonLostConnection.IsValid())
	assert.False(t, RejectReason(17).IsValid())
	assert.False(t, ProductType(0).IsValid())
	assert.True(t, ProductTypeGift.IsValid())
}

func TestHasPaidItems(t *testing.T) {
	assert.False(t, HasPaidItems(nil))
	assert.False(t, HasPaidItems([]LineItem{{ProductType: ProductTypeGift}}))
	assert.True(t, HasPaidItems([]LineItem{{ProductType: ProductTypeGift}, {ProductType: ProductTypePaid, TotalPrice: 10}}))
}

func TestQueueRetryAndExhaustion(t *testing.T) {
	q := Queue{MaxAttempts: 3, RetryIntervalMinutes: 45}
	assert.Equal(t, 45*time.Minute, q.RetryInterval())
	assert.False(t, q.Exhausted(2))
	assert.True(t, q.Exhausted(3))

	unlimited := Queue{}
	assert.Zero(t, unlimited.RetryInterval())
	assert.False(t, unlimited.Exhausted(100))
}
