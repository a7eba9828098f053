package postgres

import (
	"context"
	"testing"

	"github.com/Agbobli5373/grocery-shop/internal/domain"
	"github.com/Agbobli5373/grocery-shop/internal/testutil"
	"github.com/shopspring/decimal"
)

func TestCartRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, context.Background(), pool)
	carts := NewCartRepository(pool)

	t.Run("Snapshot captures lines with current prices", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		testutil.InsertProduct(t, ctx, pool, 2, "Bread", "5.00", 10)
		testutil.InsertProduct(t, ctx, pool, 1, "Apples", "3.00", 10)
		cartID := testutil.InsertCartItem(t, ctx, pool, 7, 2, 1)
		testutil.InsertCartItem(t, ctx, pool, 7, 1, 2)

		snap, err := carts.Snapshot(ctx, 7)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if snap.CartID != cartID || len(snap.Lines) != 2 {
			t.Fatalf("unexpected snapshot %+v", snap)
		}
		if snap.Lines[0].ProductID != 1 || !snap.Lines[0].UnitPrice.Equal(decimal.RequireFromString("3.00")) {
			t.Fatalf("unexpected first line %+v", snap.Lines[0])
		}
		if snap.TakenAt.IsZero() {
			t.Fatalf("expected snapshot time")
		}
	})

	t.Run("missing or emptied cart is ErrEmptyCart", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		testutil.InsertProduct(t, ctx, pool, 1, "Apples", "3.00", 10)

		if _, err := carts.Snapshot(ctx, 99); err != domain.ErrEmptyCart {
			t.Fatalf("expected ErrEmptyCart, got %v", err)
		}

		if err := carts.SetItem(ctx, 8, 1, 2); err != nil {
			t.Fatalf("set item: %v", err)
		}
		if err := carts.SetItem(ctx, 8, 1, 0); err != nil {
			t.Fatalf("remove item: %v", err)
		}
		if _, err := carts.Snapshot(ctx, 8); err != domain.ErrEmptyCart {
			t.Fatalf("expected ErrEmptyCart, got %v", err)
		}
	})

	t.Run("SetItem rejects unknown product", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		if err := carts.SetItem(ctx, 8, 404, 1); err != domain.ErrProductNotFound {
			t.Fatalf("expected ErrProductNotFound, got %v", err)
		}
	})
}
