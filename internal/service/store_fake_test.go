package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/lead-router/internal/domain"
	"github.com/spec-kit/lead-router/internal/repository"
)

// memData is the whole fake database. clone gives WithinTx its rollback snapshot.
type memData struct {
	nextOrderID   int64
	nextAttemptID int64
	nextItemID    int64
	orders        map[int64]domain.Order
	customers     map[int64]domain.Customer
	details       map[int64]domain.OrderDetail
	items         map[int64][]domain.LineItem
	queues        map[int64]domain.Queue
	triggers      []domain.Trigger
	attempts      []domain.Attempt
	operators     map[int64]domain.Operator
	jobs          map[uuid.UUID]domain.DispatchJob
}

func newMemData() *memData {
	return &memData{
		orders:    map[int64]domain.Order{},
		customers: map[int64]domain.Customer{},
		details:   map[int64]domain.OrderDetail{},
		items:     map[int64][]domain.LineItem{},
		queues:    map[int64]domain.Queue{},
		operators: map[int64]domain.Operator{},
		jobs:      map[uuid.UUID]domain.DispatchJob{},
	}
}

func (d *memData) clone() *memData {
	out := newMemData()
	out.nextOrderID = d.nextOrderID
	out.nextAttemptID = d.nextAttemptID
	out.nextItemID = d.nextItemID
	for k, v := range d.orders {
		out.orders[k] = v
	}
	for k, v := range d.customers {
		out.customers[k] = v
	}
	for k, v := range d.details {
		out.details[k] = v
	}
	for k, v := range d.items {
		out.items[k] = append([]domain.LineItem(nil), v...)
	}
	for k, v := range d.queues {
		out.queues[k] = v
	}
	out.triggers = append([]domain.Trigger(nil), d.triggers...)
	out.attempts = append([]domain.Attempt(nil), d.attempts...)
	for k, v := range d.operators {
		out.operators[k] = v
	}
	for k, v := range d.jobs {
		out.jobs[k] = v
	}
	return out
}

// memStore implements repository.TxStore over memData.
type memStore struct {
	mu   sync.Mutex
	data *memData
	now  func() time.Time

	// failInsertAfter makes the n-th line item insert (1-based) fail when positive.
	failInsertAfter int
	insertCalls     int
	// dropInserts silently discards line item inserts, producing a count mismatch.
	dropInserts bool
}

var _ repository.TxStore = (*memStore)(nil)

func newMemStore(now func() time.Time) *memStore {
	return &memStore{data: newMemData(), now: now}
}

func (s *memStore) WithinTx(_ context.Context, fn func(repository.Store) error) error {
	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) Orders() repository.OrderRepository { return memOrders{s} }
func (s *memStore) Customers() repository.CustomerRepository { return memCustomers{s} }
func (s *memStore) Details() repository.OrderDetailRepository { return memDetails{s} }
func (s *memStore) LineItems() repository.LineItemRepository { return memLineItems{s} }
func (s *memStore) Queues() repository.QueueRepository { return memQueues{s} }
func (s *memStore) Triggers() repository.TriggerRepository { return memTriggers{s} }
func (s *memStore) Attempts() repository.AttemptRepository { return memAttempts{s} }
func (s *memStore) Operators() repository.OperatorRepository { return memOperators{s} }
func (s *memStore) Dispatches() repository.DispatchRepository { return memDispatches{s} }

// seed helpers

func (s *memStore) addQueue(q domain.Queue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.queues[q.ID] = q
}

func (s *memStore) addTrigger(t domain.Trigger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.triggers = append(s.data.triggers, t)
}

func (s *memStore) addOperator(op domain.Operator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.operators[op.ID] = op
}

func (s *memStore) addOrder(o domain.Order, items ...domain.LineItem) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == 0 {
		s.data.nextOrderID++
		o.ID = s.data.nextOrderID
	} else if o.ID > s.data.nextOrderID {
		s.data.nextOrderID = o.ID
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now()
	}
	o.UpdatedAt = o.CreatedAt
	s.data.orders[o.ID] = o
	for _, item := range items {
		s.data.nextItemID++
		item.ID = s.data.nextItemID
		item.OrderID = o.ID
		s.data.items[o.ID] = append(s.data.items[o.ID], item)
	}
	return o.ID
}

func (s *memStore) addAttempt(a domain.Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.nextAttemptID++
	a.ID = s.data.nextAttemptID
	if a.State == "" {
		a.State = domain.AttemptStateLive
	}
	s.data.attempts = append(s.data.attempts, a)
}

func (s *memStore) order(id int64) domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.orders[id]
}

func (s *memStore) liveAttempts(orderID, queueID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.countLive(orderID, queueID)
}

func (s *memStore) jobsFor(orderID int64) []domain.DispatchJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DispatchJob
	for _, job := range s.data.jobs {
		if job.OrderID == orderID {
			out = append(out, job)
		}
	}
	return out
}

func (d *memData) countLive(orderID, queueID int64) int {
	n := 0
	for _, a := range d.attempts {
		if a.OrderID == orderID && a.QueueID == queueID && a.IsLive() {
			n++
		}
	}
	return n
}

// orders

type memOrders struct{ s *memStore }

func (r memOrders) Create(_ context.Context, order *domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.nextOrderID++
	order.ID = r.s.data.nextOrderID
	order.CreatedAt = r.s.now()
	order.UpdatedAt = order.CreatedAt
	r.s.data.orders[order.ID] = *order
	return nil
}

func (r memOrders) Update(_ context.Context, order *domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.data.orders[order.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	order.CreatedAt = existing.CreatedAt
	order.ERPOrderID = existing.ERPOrderID
	order.UpdatedAt = r.s.now()
	r.s.data.orders[order.ID] = *order
	return nil
}

func (r memOrders) GetByID(_ context.Context, id int64) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.data.orders[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &order, nil
}

func (r memOrders) GetForUpdate(ctx context.Context, id int64) (*domain.Order, error) {
	return r.GetByID(ctx, id)
}

func (r memOrders) ListWithFilter(_ context.Context, filter repository.OrderFilter) ([]domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Order
	for _, o := range r.s.data.orders {
		if len(filter.Statuses) > 0 {
			match := false
			for _, st := range filter.Statuses {
				if o.Status == st {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		if filter.QueueID != nil && !o.InQueue(*filter.QueueID) {
			continue
		}
		if filter.LeadWebID != nil && o.LeadWebID != strings.TrimSpace(*filter.LeadWebID) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r memOrders) mutate(id int64, fn func(*domain.Order)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.data.orders[id]
	if !ok {
		return pgx.ErrNoRows
	}
	fn(&order)
	order.UpdatedAt = r.s.now()
	r.s.data.orders[id] = order
	return nil
}

func (r memOrders) UpdateQueue(_ context.Context, id int64, queueID *int64) error {
	return r.mutate(id, func(o *domain.Order) { o.CurrentQueueID = copyInt64(queueID) })
}

func (r memOrders) UpdateStatus(_ context.Context, id int64, status domain.OrderStatus) error {
	return r.mutate(id, func(o *domain.Order) { o.Status = status })
}

func (r memOrders) UpdateLease(_ context.Context, id int64, operatorID *int64, blockedUntil *time.Time) error {
	return r.mutate(id, func(o *domain.Order) {
		o.CurrentOperatorID = copyInt64(operatorID)
		if blockedUntil == nil {
			o.BlockedUntil = nil
		} else {
			until := *blockedUntil
			o.BlockedUntil = &until
		}
	})
}

func (r memOrders) TransitionStatus(_ context.Context, id int64, from, to domain.OrderStatus, erpOrderID *string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.data.orders[id]
	if !ok || order.Status != from {
		return false, nil
	}
	order.Status = to
	if erpOrderID != nil {
		ext := *erpOrderID
		order.ERPOrderID = &ext
	}
	order.UpdatedAt = r.s.now()
	r.s.data.orders[id] = order
	return true, nil
}

// ClaimNext applies the domain eligibility rules under the store lock, which makes it atomic like the SQL claim.
func (r memOrders) ClaimNext(_ context.Context, op *domain.Operator, now, until time.Time) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var candidates []domain.LeaseCandidate
	for _, o := range r.s.data.orders {
		if o.CurrentQueueID == nil {
			continue
		}
		queue := r.s.data.queues[*o.CurrentQueueID]
		var products []int64
		for _, item := range r.s.data.items[o.ID] {
			products = append(products, item.ProductID)
		}
		c := domain.LeaseCandidate{Order: o, QueuePriority: queue.Priority, ProductIDs: products}
		if c.EligibleFor(op, now) {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return domain.LeaseOrderLess(candidates[i], candidates[j]) })

	chosen := candidates[0].Order
	opID := op.ID
	chosen.CurrentOperatorID = &opID
	leaseUntil := until
	chosen.BlockedUntil = &leaseUntil
	chosen.UpdatedAt = now
	r.s.data.orders[chosen.ID] = chosen
	return &chosen, nil
}

// customers and details

type memCustomers struct{ s *memStore }

func (r memCustomers) Upsert(_ context.Context, customer *domain.Customer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing, ok := r.s.data.customers[customer.OrderID]; ok {
		customer.CreatedAt = existing.CreatedAt
	} else {
		customer.CreatedAt = r.s.now()
	}
	customer.UpdatedAt = r.s.now()
	r.s.data.customers[customer.OrderID] = *customer
	return nil
}

func (r memCustomers) GetByOrderID(_ context.Context, orderID int64) (*domain.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	customer, ok := r.s.data.customers[orderID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &customer, nil
}

type memDetails struct{ s *memStore }

func (r memDetails) Upsert(_ context.Context, detail *domain.OrderDetail) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	detail.UpdatedAt = r.s.now()
	r.s.data.details[detail.OrderID] = *detail
	return nil
}

func (r memDetails) GetByOrderID(_ context.Context, orderID int64) (*domain.OrderDetail, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	detail, ok := r.s.data.details[orderID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &detail, nil
}

// line items

type memLineItems struct{ s *memStore }

func (r memLineItems) DeleteByOrder(_ context.Context, orderID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.data.items, orderID)
	return nil
}

func (r memLineItems) Insert(_ context.Context, item *domain.LineItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.insertCalls++
	if r.s.failInsertAfter > 0 && r.s.insertCalls >= r.s.failInsertAfter {
		return errInsertFailed
	}
	if r.s.dropInserts {
		return nil
	}
	r.s.data.nextItemID++
	item.ID = r.s.data.nextItemID
	item.CreatedAt = r.s.now()
	r.s.data.items[item.OrderID] = append(r.s.data.items[item.OrderID], *item)
	return nil
}

func (r memLineItems) CountByOrder(_ context.Context, orderID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.data.items[orderID]), nil
}

func (r memLineItems) ListByOrder(_ context.Context, orderID int64) ([]domain.LineItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]domain.LineItem(nil), r.s.data.items[orderID]...), nil
}

// queues and triggers

type memQueues struct{ s *memStore }

func (r memQueues) GetByID(_ context.Context, id int64) (*domain.Queue, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	queue, ok := r.s.data.queues[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &queue, nil
}

type memTriggers struct{ s *memStore }

func (r memTriggers) ListForStatus(_ context.Context, status domain.OrderStatus) ([]domain.Trigger, error) {
	return r.filter(func(t domain.Trigger) bool {
		return t.Kind.IsStatusKind() && t.MatchStatus != nil && *t.MatchStatus == status
	}), nil
}

func (r memTriggers) ListForExhaustedQueue(_ context.Context, queueID int64) ([]domain.Trigger, error) {
	return r.filter(func(t domain.Trigger) bool {
		return t.Kind == domain.TriggerOnQueueExhausted && t.SourceQueueID != nil && *t.SourceQueueID == queueID
	}), nil
}

func (r memTriggers) filter(keep func(domain.Trigger) bool) []domain.Trigger {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Trigger
	for _, t := range r.s.data.triggers {
		if keep(t) {
			out = append(out, t)
		}
	}
	domain.SortTriggers(out)
	return out
}

// attempts

type memAttempts struct{ s *memStore }

func (r memAttempts) Create(_ context.Context, attempt *domain.Attempt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.nextAttemptID++
	attempt.ID = r.s.data.nextAttemptID
	if attempt.State == "" {
		attempt.State = domain.AttemptStateLive
	}
	attempt.CreatedAt = r.s.now()
	r.s.data.attempts = append(r.s.data.attempts, *attempt)
	return nil
}

func (r memAttempts) CountLive(_ context.Context, orderID, queueID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.data.countLive(orderID, queueID), nil
}

func (r memAttempts) InvalidateLive(_ context.Context, orderID, queueID int64, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for i, a := range r.s.data.attempts {
		if a.OrderID == orderID && a.QueueID == queueID && a.IsLive() {
			stamp := at
			r.s.data.attempts[i].State = domain.AttemptStateInvalidated
			r.s.data.attempts[i].InvalidatedAt = &stamp
			n++
		}
	}
	return n, nil
}

func (r memAttempts) ListByOrder(_ context.Context, orderID int64) ([]domain.Attempt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Attempt
	for _, a := range r.s.data.attempts {
		if a.OrderID == orderID {
			out = append(out, a)
		}
	}
	return out, nil
}

// operators

type memOperators struct{ s *memStore }

func (r memOperators) GetByID(_ context.Context, id int64) (*domain.Operator, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	op, ok := r.s.data.operators[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &op, nil
}

func (r memOperators) GetByEmail(_ context.Context, email string) (*domain.Operator, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, op := range r.s.data.operators {
		if strings.EqualFold(op.Email, email) {
			found := op
			return &found, nil
		}
	}
	return nil, pgx.ErrNoRows
}

// dispatch outbox

type memDispatches struct{ s *memStore }

func (r memDispatches) Enqueue(_ context.Context, orderID int64, runAt time.Time) (*domain.DispatchJob, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, job := range r.s.data.jobs {
		if job.OrderID == orderID && job.Status.IsOpen() {
			existing := job
			return &existing, false, nil
		}
	}
	now := r.s.now()
	job := domain.DispatchJob{
		ID:        uuid.New(),
		OrderID:   orderID,
		Status:    domain.DispatchStatusPending,
		RunAt:     runAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.s.data.jobs[job.ID] = job
	return &job, true, nil
}

func (r memDispatches) GetByID(_ context.Context, id uuid.UUID) (*domain.DispatchJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.data.jobs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &job, nil
}

func (r memDispatches) ClaimDue(_ context.Context, now time.Time, lockTimeout time.Duration, limit int) ([]domain.DispatchJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.DispatchJob
	for id, job := range r.s.data.jobs {
		due := job.Status == domain.DispatchStatusPending && !job.RunAt.After(now)
		stale := (job.Status == domain.DispatchStatusEnqueued || job.Status == domain.DispatchStatusProcessing) &&
			!job.UpdatedAt.After(now.Add(-lockTimeout))
		if !due && !stale {
			continue
		}
		job.Status = domain.DispatchStatusEnqueued
		job.UpdatedAt = now
		r.s.data.jobs[id] = job
		out = append(out, job)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r memDispatches) MarkProcessing(_ context.Context, id uuid.UUID) (*domain.DispatchJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.data.jobs[id]
	if !ok || (job.Status != domain.DispatchStatusPending && job.Status != domain.DispatchStatusEnqueued) {
		return nil, nil
	}
	job.Status = domain.DispatchStatusProcessing
	job.Attempts++
	job.UpdatedAt = r.s.now()
	r.s.data.jobs[id] = job
	return &job, nil
}

func (r memDispatches) update(id uuid.UUID, fn func(*domain.DispatchJob)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.data.jobs[id]
	if !ok {
		return pgx.ErrNoRows
	}
	fn(&job)
	job.UpdatedAt = r.s.now()
	r.s.data.jobs[id] = job
	return nil
}

func (r memDispatches) MarkSucceeded(_ context.Context, id uuid.UUID, externalID string) error {
	return r.update(id, func(j *domain.DispatchJob) {
		j.Status = domain.DispatchStatusSucceeded
		j.ExternalID = &externalID
		j.LastError = nil
	})
}

func (r memDispatches) MarkRetry(_ context.Context, id uuid.UUID, runAt time.Time, lastError string) error {
	return r.update(id, func(j *domain.DispatchJob) {
		j.Status = domain.DispatchStatusPending
		j.RunAt = runAt
		j.LastError = &lastError
	})
}

func (r memDispatches) MarkFailed(_ context.Context, id uuid.UUID, lastError string) error {
	return r.update(id, func(j *domain.DispatchJob) {
		j.Status = domain.DispatchStatusFailed
		j.LastError = &lastError
	})
}

func (r memDispatches) MarkSkipped(_ context.Context, id uuid.UUID, reason string) error {
	return r.update(id, func(j *domain.DispatchJob) {
		j.Status = domain.DispatchStatusSkipped
		j.LastError = &reason
	})
}

func (r memDispatches) MarkPending(_ context.Context, id uuid.UUID, lastError *string) error {
	return r.update(id, func(j *domain.DispatchJob) {
		j.Status = domain.DispatchStatusPending
		j.LastError = lastError
	})
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
