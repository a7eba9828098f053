package testutil

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Agbobli5373/grocery-shop/internal/domain"
	"github.com/Agbobli5373/grocery-shop/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testDBLockID int64 = 801234568

var (
	containerOnce sync.Once
	containerDSN  string
	containerErr  error
)

// NewTestPool connects to TEST_DATABASE_URL, or to a throwaway Postgres
// container when the variable is unset. The test is skipped when neither is
// reachable.
func NewTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Postgres integration tests in short mode")
	}

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		dsn = containerURL(t)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}
	cfg.MaxConns = 8

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("skipping Postgres integration tests: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
	})

	lockTestDB(t, pool)

	return pool
}

// containerURL starts one Postgres container per test binary. It is removed
// by the testcontainers reaper when the binary exits.
func containerURL(t *testing.T) string {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	containerOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		container, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("grocery_test"),
			postgres.WithUsername("grocery"),
			postgres.WithPassword("grocery"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			containerErr = err
			return
		}
		containerDSN, containerErr = container.ConnectionString(ctx, "sslmode=disable")
	})
	if containerErr != nil {
		t.Skipf("skipping Postgres integration tests: start container: %v", containerErr)
	}
	return containerDSN
}

func ApplyMigrations(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	if err := migrations.Apply(ctx, pool); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}
}

func TruncateAll(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(ctx, `TRUNCATE stock_reservations, event_outbox, order_items, orders, cart_items, carts, product_stock, products RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

// InsertProduct stores a product with an opening stock quantity.
func InsertProduct(t *testing.T, ctx context.Context, pool *pgxpool.Pool, id int64, name, price string, stock int) domain.Product {
	t.Helper()
	p := domain.Product{ID: id, Name: name, Price: decimal.RequireFromString(price), Stock: stock}
	if _, err := pool.Exec(ctx, `INSERT INTO products (id, name, price) VALUES ($1, $2, $3::numeric)`, id, name, price); err != nil {
		t.Fatalf("insert product: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO product_stock (product_id, quantity) VALUES ($1, $2)`, id, stock); err != nil {
		t.Fatalf("insert stock: %v", err)
	}
	return p
}

// InsertCartItem adds a line to the customer's cart and returns the cart id.
func InsertCartItem(t *testing.T, ctx context.Context, pool *pgxpool.Pool, customerID, productID int64, qty int) int64 {
	t.Helper()
	var cartID int64
	err := pool.QueryRow(ctx, `
INSERT INTO carts (customer_id) VALUES ($1)
ON CONFLICT (customer_id) DO UPDATE SET updated_at = NOW()
RETURNING id`, customerID).Scan(&cartID)
	if err != nil {
		t.Fatalf("insert cart: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO cart_items (cart_id, product_id, quantity) VALUES ($1, $2, $3)`, cartID, productID, qty); err != nil {
		t.Fatalf("insert cart item: %v", err)
	}
	return cartID
}

// StockOf reads the ledger quantity directly.
func StockOf(t *testing.T, ctx context.Context, pool *pgxpool.Pool, productID int64) int {
	t.Helper()
	var qty int
	if err := pool.QueryRow(ctx, `SELECT quantity FROM product_stock WHERE product_id = $1`, productID).Scan(&qty); err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return qty
}

func lockTestDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire lock conn: %v", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, testDBLockID); err != nil {
		conn.Release()
		t.Fatalf("acquire test lock: %v", err)
	}

	t.Cleanup(func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, testDBLockID)
		conn.Release()
	})
}
