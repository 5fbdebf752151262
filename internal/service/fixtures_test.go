package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/lead-router/internal/domain"
	"github.com/spec-kit/lead-router/internal/erp"
	"github.com/spec-kit/lead-router/internal/events"
	apperrors "github.com/spec-kit/lead-router/pkg/util/errorutil"
)

var errInsertFailed = errors.New("insert failed")

var fixedNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func int64Ptr(v int64) *int64 { return &v }

func statusPtr(s domain.OrderStatus) *domain.OrderStatus { return &s }

func timePtr(t time.Time) *time.Time { return &t }

// fakeERP records payloads and answers from a queue of scripted results.
type fakeERP struct {
	mu       sync.Mutex
	payloads []erp.OrderPayload
	results  []error
	nextID   string
	status   string
}

func (f *fakeERP) Dispatch(_ context.Context, payload erp.OrderPayload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	if len(f.results) > 0 {
		err := f.results[0]
		f.results = f.results[1:]
		if err != nil {
			return "", err
		}
	}
	if f.nextID == "" {
		return "ERP-1", nil
	}
	return f.nextID, nil
}

func (f *fakeERP) OrderStatus(_ context.Context, externalID string) (string, error) {
	if f.status == "" {
		return "", errors.New("erp unreachable")
	}
	return f.status, nil
}

func (f *fakeERP) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

// recordingDispatcher captures published events by type.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) types() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]events.EventType, 0, len(d.events))
	for _, e := range d.events {
		out = append(out, e.Type)
	}
	return out
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	domainErr := apperrors.ToDomainError(err)
	require.Equal(t, code, domainErr.Code, "unexpected error: %v", err)
}

// callCenter seeds two queues, an operator entitled to both, and routing triggers:
// New orders land in queue 1, Recall moves to queue 2, queue 1 exhausts to Trash.
type callCenter struct {
	store    *memStore
	operator domain.Operator
	inbound  domain.Queue
	recall   domain.Queue
}

func newCallCenter() *callCenter {
	store := newMemStore(fixedClock)
	cc := &callCenter{
		store:   store,
		inbound: domain.Queue{ID: 1, Name: "inbound", Priority: 5, MaxAttempts: 3, RetryIntervalMinutes: 45},
		recall:  domain.Queue{ID: 2, Name: "recall", Priority: 1, RetryIntervalMinutes: 120},
		operator: domain.Operator{
			ID:               7,
			Name:             "Ana",
			Email:            "ana@example.com",
			Role:             domain.RoleOperator,
			State:            domain.OperatorStateActive,
			AssignedQueues:   []int64{1, 2},
			EntitledProducts: []int64{100},
			EntitledWebIDs:   []string{"web-1"},
		},
	}
	store.addQueue(cc.inbound)
	store.addQueue(cc.recall)
	store.addOperator(cc.operator)
	store.addTrigger(domain.Trigger{
		ID: 1, Kind: domain.TriggerOnLeadStatus, MatchStatus: statusPtr(domain.OrderStatusNew),
		Action: domain.TriggerActionMoveToQueue, TargetQueueID: int64Ptr(1),
	})
	store.addTrigger(domain.Trigger{
		ID: 2, Kind: domain.TriggerOnLeadStatus, MatchStatus: statusPtr(domain.OrderStatusRecall),
		Action: domain.TriggerActionMoveToQueue, TargetQueueID: int64Ptr(2),
	})
	store.addTrigger(domain.Trigger{
		ID: 3, Kind: domain.TriggerOnQueueExhausted, SourceQueueID: int64Ptr(1),
		Action: domain.TriggerActionSetStatus, TargetStatus: statusPtr(domain.OrderStatusTrash),
	})
	return cc
}

// leasedOrder seeds an order in the inbound queue leased to the operator.
func (cc *callCenter) leasedOrder(status domain.OrderStatus) int64 {
	return cc.store.addOrder(domain.Order{
		Status:            status,
		CurrentQueueID:    int64Ptr(cc.inbound.ID),
		CurrentOperatorID: int64Ptr(cc.operator.ID),
		BlockedUntil:      timePtr(fixedNow.Add(30 * time.Minute)),
		LeadWebID:         "web-1",
	}, domain.LineItem{ProductID: 100, ProductType: domain.ProductTypePaid, Quantity: 1, PriceForOne: 49, TotalPrice: 49})
}

func (cc *callCenter) actor() Actor {
	return Actor{OperatorID: cc.operator.ID, Role: cc.operator.Role}
}

func validInput(status domain.OrderStatus) CommitInput {
	return CommitInput{
		Status:     status,
		LeadWebID:  "web-1",
		TotalPrice: 49,
		Customer:   CustomerInput{Name: " Maria Lopez ", Phone: "+34 612 345 678", Email: "maria@example.com"},
		Detail: DetailInput{
			AddressByClient: "Calle Mayor 1, Madrid",
			AddressInfo:     domain.AddressInfo{Country: "ES", City: "Madrid", Street: "Calle Mayor", House: "1"},
		},
		Items: []LineItemInput{
			{ProductID: 100, ProductType: domain.ProductTypePaid, Quantity: 1, PriceForOne: 49, TotalPrice: 49},
			{ProductID: 101, ProductType: domain.ProductTypeGift, Quantity: 1},
		},
	}
}
