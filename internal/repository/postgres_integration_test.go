package repository

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/lead-router/internal/domain"
	"github.com/spec-kit/lead-router/internal/persistence"
)

// openTestPool connects to TEST_POSTGRES_DSN, migrates and empties the schema. Tests skip without it.
func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, persistence.RunMigrations(ctx, pool, zap.NewNop()))
	_, err = pool.Exec(ctx, `TRUNCATE dispatch_outbox, attempts, triggers, order_items, order_details, customers,
        orders, operator_web_ids, operator_products, operator_queues, operators, products, queues RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return pool
}

type seeded struct {
	queueID   int64
	productID int64
	operators []int64
}

func seedCallCenter(t *testing.T, pool *pgxpool.Pool, operators int) seeded {
	t.Helper()
	ctx := context.Background()
	var s seeded
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO queues (name, priority, max_attempts, retry_interval_minutes) VALUES ('inbound', 5, 3, 45) RETURNING id`).Scan(&s.queueID))
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO products (name) VALUES ('serum') RETURNING id`).Scan(&s.productID))

	for i := 0; i < operators; i++ {
		var id int64
		require.NoError(t, pool.QueryRow(ctx,
			`INSERT INTO operators (name, email, role, state) VALUES ($1, $2, 'operator', 'active') RETURNING id`,
			fmt.Sprintf("operator %d", i), fmt.Sprintf("op%d@example.com", i)).Scan(&id))
		_, err := pool.Exec(ctx, `INSERT INTO operator_queues (operator_id, queue_id) VALUES ($1, $2)`, id, s.queueID)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, `INSERT INTO operator_products (operator_id, product_id) VALUES ($1, $2)`, id, s.productID)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, `INSERT INTO operator_web_ids (operator_id, web_id) VALUES ($1, 'web-1')`, id)
		require.NoError(t, err)
		s.operators = append(s.operators, id)
	}
	return s
}

func createQueuedOrder(t *testing.T, store Store, s seeded) int64 {
	t.Helper()
	ctx := context.Background()
	queueID := s.queueID
	order := &domain.Order{Status: domain.OrderStatusNew, CurrentQueueID: &queueID, LeadWebID: "web-1"}
	require.NoError(t, store.Orders().Create(ctx, order))
	require.NoError(t, store.LineItems().Insert(ctx, &domain.LineItem{
		OrderID: order.ID, ProductID: s.productID, ProductType: domain.ProductTypePaid,
		Quantity: 1, PriceForOne: 49, TotalPrice: 49,
	}))
	return order.ID
}

func TestClaimNextGrantsEachOrderOnce(t *testing.T) {
	pool := openTestPool(t)
	store := NewPostgresStore(pool)
	s := seedCallCenter(t, pool, 6)
	for i := 0; i < 3; i++ {
		createQueuedOrder(t, store, s)
	}

	ctx := context.Background()
	now := time.Now().UTC()
	var (
		mu      sync.Mutex
		granted = map[int64]int64{}
		wg      sync.WaitGroup
	)
	for _, operatorID := range s.operators {
		wg.Add(1)
		go func(operatorID int64) {
			defer wg.Done()
			op, err := store.Operators().GetByID(ctx, operatorID)
			if !assert.NoError(t, err) {
				return
			}
			order, err := store.Orders().ClaimNext(ctx, op, now, now.Add(30*time.Minute))
			if !assert.NoError(t, err) || order == nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			_, dup := granted[order.ID]
			assert.False(t, dup, "order %d leased twice", order.ID)
			granted[order.ID] = operatorID
		}(operatorID)
	}
	wg.Wait()

	assert.Len(t, granted, 3)
	for orderID, operatorID := range granted {
		order, err := store.Orders().GetByID(ctx, orderID)
		require.NoError(t, err)
		assert.True(t, order.LeaseHeldBy(operatorID))
		require.NotNil(t, order.BlockedUntil)
	}
}

func TestDispatchOutboxLifecycle(t *testing.T) {
	pool := openTestPool(t)
	store := NewPostgresStore(pool)
	s := seedCallCenter(t, pool, 1)
	orderID := createQueuedOrder(t, store, s)
	ctx := context.Background()
	now := time.Now().UTC()

	job, created, err := store.Dispatches().Enqueue(ctx, orderID, now.Add(-time.Second))
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := store.Dispatches().Enqueue(ctx, orderID, now)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, job.ID, again.ID)

	claimed, err := store.Dispatches().ClaimDue(ctx, now, time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, domain.DispatchStatusEnqueued, claimed[0].Status)

	claimed, err = store.Dispatches().ClaimDue(ctx, now, time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	// an enqueued job whose task never ran is claimed again once the lock times out
	reclaimed, err := store.Dispatches().ClaimDue(ctx, now.Add(2*time.Minute), time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, job.ID, reclaimed[0].ID)

	processing, err := store.Dispatches().MarkProcessing(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, processing)
	assert.Equal(t, 1, processing.Attempts)

	require.NoError(t, store.Dispatches().MarkSucceeded(ctx, job.ID, "ERP-9"))
	done, err := store.Dispatches().GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DispatchStatusSucceeded, done.Status)
	require.NotNil(t, done.ExternalID)
	assert.Equal(t, "ERP-9", *done.ExternalID)

	_, created, err = store.Dispatches().Enqueue(ctx, orderID, now)
	require.NoError(t, err)
	assert.True(t, created, "a closed job does not block a new one")
}

func TestWithinTxRollsBack(t *testing.T) {
	pool := openTestPool(t)
	store := NewPostgresStore(pool)
	s := seedCallCenter(t, pool, 1)
	ctx := context.Background()

	var orderID int64
	err := store.WithinTx(ctx, func(tx Store) error {
		orderID = createQueuedOrder(t, tx, s)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = store.Orders().GetByID(ctx, orderID)
	assert.Error(t, err)
}
