package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Agbobli5373/grocery-shop/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StockLedger is the authoritative per-product stock counter. Every mutation
// is a single conditional statement, so concurrent callers never observe or
// produce a negative quantity.
type StockLedger struct {
	pool *pgxpool.Pool
}

func NewStockLedger(pool *pgxpool.Pool) *StockLedger {
	return &StockLedger{pool: pool}
}

func (l *StockLedger) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, l.pool, fn)
}

// TryDecrement subtracts qty only when at least qty units remain and journals
// the reservation under attemptID in the same statement, so a decrement whose
// result never reached the caller can still be found and released.
func (l *StockLedger) TryDecrement(ctx context.Context, attemptID string, productID int64, qty int) (domain.StockChange, error) {
	if qty <= 0 {
		return domain.StockChange{}, domain.ErrInvalidQuantity
	}

	const stmt = `
WITH d AS (
	UPDATE product_stock
	SET quantity = quantity - $3, version = version + 1, updated_at = NOW()
	WHERE product_id = $2 AND quantity >= $3
	RETURNING product_id, quantity + $3 AS previous, quantity AS current
), j AS (
	INSERT INTO stock_reservations (attempt_id, product_id, quantity)
	SELECT $1, product_id, $3 FROM d
)
SELECT previous, current FROM d`

	change := domain.StockChange{ProductID: productID}
	err := conn(ctx, l.pool).QueryRow(ctx, stmt, attemptID, productID, qty).Scan(&change.Previous, &change.Current)
	if err == nil {
		return change, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.StockChange{}, classify("decrement stock", err)
	}

	available, err := l.Read(ctx, productID)
	if err != nil {
		return domain.StockChange{}, err
	}
	return domain.StockChange{}, &domain.InsufficientStockError{
		ProductID: productID,
		Requested: qty,
		Available: available,
	}
}

// Release returns the quantity journaled for attemptID and productID to the
// ledger and drops the journal row. It reports false when no reservation
// exists, either because the decrement never applied or it was already
// released or settled.
func (l *StockLedger) Release(ctx context.Context, attemptID string, productID int64) (domain.StockChange, bool, error) {
	const stmt = `
WITH r AS (
	DELETE FROM stock_reservations
	WHERE attempt_id = $1 AND product_id = $2
	RETURNING product_id, quantity
)
UPDATE product_stock s
SET quantity = s.quantity + r.quantity, version = s.version + 1, updated_at = NOW()
FROM r
WHERE s.product_id = r.product_id
RETURNING s.quantity - r.quantity, s.quantity`

	change := domain.StockChange{ProductID: productID}
	err := conn(ctx, l.pool).QueryRow(ctx, stmt, attemptID, productID).Scan(&change.Previous, &change.Current)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StockChange{}, false, nil
	}
	if err != nil {
		return domain.StockChange{}, false, classify("release reservation", err)
	}
	return change, true, nil
}

// Settle drops the journal rows of a committed attempt. It must run in the
// order transaction; fewer rows than lines means a reservation was already
// released and the order must not commit.
func (l *StockLedger) Settle(ctx context.Context, attemptID string, lines int) error {
	tag, err := conn(ctx, l.pool).Exec(ctx, `DELETE FROM stock_reservations WHERE attempt_id = $1`, attemptID)
	if err != nil {
		return classify("settle reservations", err)
	}
	if tag.RowsAffected() != int64(lines) {
		return fmt.Errorf("settle attempt %s: %d of %d lines held: %w", attemptID, tag.RowsAffected(), lines, domain.ErrReservationLost)
	}
	return nil
}

// ReleaseStale returns stock for reservations journaled before cutoff. Those
// belong to attempts that neither committed nor compensated, such as a crash
// between decrement and order insert.
func (l *StockLedger) ReleaseStale(ctx context.Context, cutoff time.Time) ([]domain.StockChange, error) {
	const stmt = `
WITH r AS (
	DELETE FROM stock_reservations
	WHERE reserved_at < $1
	RETURNING product_id, quantity
), agg AS (
	SELECT product_id, SUM(quantity)::int AS quantity
	FROM r
	GROUP BY product_id
)
UPDATE product_stock s
SET quantity = s.quantity + agg.quantity, version = s.version + 1, updated_at = NOW()
FROM agg
WHERE s.product_id = agg.product_id
RETURNING s.product_id, s.quantity - agg.quantity, s.quantity`

	rows, err := conn(ctx, l.pool).Query(ctx, stmt, cutoff)
	if err != nil {
		return nil, classify("release stale reservations", err)
	}
	defer rows.Close()

	var changes []domain.StockChange
	for rows.Next() {
		var c domain.StockChange
		if err := rows.Scan(&c.ProductID, &c.Previous, &c.Current); err != nil {
			return nil, fmt.Errorf("scan released stock: %w", err)
		}
		changes = append(changes, c)
	}
	if rows.Err() != nil {
		return nil, classify("release stale reservations", rows.Err())
	}
	return changes, nil
}

func (l *StockLedger) Increment(ctx context.Context, productID int64, qty int) (domain.StockChange, error) {
	if qty <= 0 {
		return domain.StockChange{}, domain.ErrInvalidQuantity
	}

	const stmt = `
UPDATE product_stock
SET quantity = quantity + $2, version = version + 1, updated_at = NOW()
WHERE product_id = $1
RETURNING quantity - $2, quantity`

	change := domain.StockChange{ProductID: productID}
	err := conn(ctx, l.pool).QueryRow(ctx, stmt, productID, qty).Scan(&change.Previous, &change.Current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StockChange{}, domain.ErrProductNotFound
		}
		return domain.StockChange{}, classify("increment stock", err)
	}
	return change, nil
}

func (l *StockLedger) Read(ctx context.Context, productID int64) (int, error) {
	const query = `SELECT quantity FROM product_stock WHERE product_id = $1`

	var qty int
	if err := conn(ctx, l.pool).QueryRow(ctx, query, productID).Scan(&qty); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrProductNotFound
		}
		return 0, classify("read stock", err)
	}
	return qty, nil
}

func (l *StockLedger) GetStock(ctx context.Context, productID int64) (domain.StockLevel, error) {
	const query = `
SELECT s.product_id, p.name, s.quantity, s.version
FROM product_stock s
JOIN products p ON p.id = s.product_id
WHERE s.product_id = $1`

	var level domain.StockLevel
	err := conn(ctx, l.pool).QueryRow(ctx, query, productID).
		Scan(&level.ProductID, &level.ProductName, &level.Quantity, &level.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StockLevel{}, domain.ErrProductNotFound
		}
		return domain.StockLevel{}, classify("get stock", err)
	}
	return level, nil
}

// ListLowStock returns products at or below threshold, lowest first.
func (l *StockLedger) ListLowStock(ctx context.Context, threshold int) ([]domain.StockLevel, error) {
	const query = `
SELECT s.product_id, p.name, s.quantity, s.version
FROM product_stock s
JOIN products p ON p.id = s.product_id
WHERE s.quantity <= $1
ORDER BY s.quantity ASC, s.product_id ASC`

	rows, err := conn(ctx, l.pool).Query(ctx, query, threshold)
	if err != nil {
		return nil, classify("list low stock", err)
	}
	defer rows.Close()

	var levels []domain.StockLevel
	for rows.Next() {
		var level domain.StockLevel
		if err := rows.Scan(&level.ProductID, &level.ProductName, &level.Quantity, &level.Version); err != nil {
			return nil, fmt.Errorf("scan stock level: %w", err)
		}
		levels = append(levels, level)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate stock levels: %w", rows.Err())
	}
	return levels, nil
}
