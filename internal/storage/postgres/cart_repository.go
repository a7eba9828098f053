package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Agbobli5373/grocery-shop/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type CartRepository struct {
	pool *pgxpool.Pool
}

func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Snapshot reads the cart and its prices in one repeatable-read, read-only
// transaction so concurrent cart edits are either fully visible or not at all.
func (r *CartRepository) Snapshot(ctx context.Context, customerID int64) (domain.CartSnapshot, error) {
	snap := domain.CartSnapshot{CustomerID: customerID}

	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err := withTxOptions(ctx, r.pool, opts, func(txCtx context.Context) error {
		q := conn(txCtx, r.pool)

		const cartQuery = `SELECT id, version, NOW() FROM carts WHERE customer_id = $1`
		var takenAt time.Time
		if err := q.QueryRow(txCtx, cartQuery, customerID).Scan(&snap.CartID, &snap.CartVersion, &takenAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrEmptyCart
			}
			return classify("read cart", err)
		}
		snap.TakenAt = takenAt.UTC()

		const linesQuery = `
SELECT ci.product_id, p.name, ci.quantity, p.price::text
FROM cart_items ci
JOIN products p ON p.id = ci.product_id
WHERE ci.cart_id = $1
ORDER BY ci.product_id ASC`
		rows, err := q.Query(txCtx, linesQuery, snap.CartID)
		if err != nil {
			return classify("read cart lines", err)
		}
		defer rows.Close()

		for rows.Next() {
			var line domain.CartLine
			var price string
			if err := rows.Scan(&line.ProductID, &line.ProductName, &line.Quantity, &price); err != nil {
				return fmt.Errorf("scan cart line: %w", err)
			}
			if line.UnitPrice, err = decimal.NewFromString(price); err != nil {
				return fmt.Errorf("parse price for product %d: %w", line.ProductID, err)
			}
			snap.Lines = append(snap.Lines, line)
		}
		if rows.Err() != nil {
			return classify("iterate cart lines", rows.Err())
		}
		return nil
	})
	if err != nil {
		return domain.CartSnapshot{}, err
	}
	if snap.Empty() {
		return domain.CartSnapshot{}, domain.ErrEmptyCart
	}
	return snap, nil
}

// SetItem upserts a cart line, creating the cart on first use. A quantity of
// zero removes the line.
func (r *CartRepository) SetItem(ctx context.Context, customerID, productID int64, qty int) error {
	if qty < 0 {
		return domain.ErrInvalidQuantity
	}
	return withTx(ctx, r.pool, func(txCtx context.Context) error {
		q := conn(txCtx, r.pool)

		const upsertCart = `
INSERT INTO carts (customer_id) VALUES ($1)
ON CONFLICT (customer_id) DO UPDATE SET version = carts.version + 1, updated_at = NOW()
RETURNING id`
		var cartID int64
		if err := q.QueryRow(txCtx, upsertCart, customerID).Scan(&cartID); err != nil {
			return classify("upsert cart", err)
		}

		if qty == 0 {
			if _, err := q.Exec(txCtx, `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`, cartID, productID); err != nil {
				return classify("remove cart item", err)
			}
			return nil
		}

		const upsertItem = `
INSERT INTO cart_items (cart_id, product_id, quantity) VALUES ($1, $2, $3)
ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`
		if _, err := q.Exec(txCtx, upsertItem, cartID, productID, qty); err != nil {
			if isForeignKeyViolation(err) {
				return domain.ErrProductNotFound
			}
			return classify("upsert cart item", err)
		}
		return nil
	})
}
