package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Agbobli5373/grocery-shop/internal/testutil"
)

func TestOutboxRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, context.Background(), pool)
	repo := NewOutboxRepository(pool)

	ctx := context.Background()
	testutil.TruncateAll(t, ctx, pool)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	records := []OutboxRecord{
		{EventID: "e1", Topic: "order.events", PartitionKey: "100", EventType: "OrderCreated", Payload: []byte(`{"order_id":100}`), CreatedAt: base},
		{EventID: "e2", Topic: "inventory.events", PartitionKey: "1", EventType: "StockUpdated", Payload: []byte(`{"product_id":1}`), CreatedAt: base.Add(time.Second)},
	}
	if err := repo.Append(ctx, records); err != nil {
		t.Fatalf("append: %v", err)
	}
	// Re-appending the same event ids is a no-op.
	if err := repo.Append(ctx, records[:1]); err != nil {
		t.Fatalf("re-append: %v", err)
	}

	var pending []OutboxRecord
	err := repo.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		pending, err = repo.FetchPending(txCtx, 10)
		if err != nil {
			return err
		}
		if err := repo.MarkFailed(txCtx, []string{"e2"}, errors.New("broker down")); err != nil {
			return err
		}
		return repo.MarkPublished(txCtx, []string{"e1"}, base.Add(time.Minute))
	})
	if err != nil {
		t.Fatalf("relay tx: %v", err)
	}
	if len(pending) != 2 || pending[0].EventID != "e1" {
		t.Fatalf("unexpected pending %+v", pending)
	}

	err = repo.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		pending, err = repo.FetchPending(txCtx, 10)
		return err
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(pending) != 1 || pending[0].EventID != "e2" || pending[0].Attempts != 1 {
		t.Fatalf("expected only e2 pending after one attempt, got %+v", pending)
	}
}
