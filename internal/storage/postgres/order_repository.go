package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Agbobli5373/grocery-shop/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// CreateOrder inserts the order and its items. A second insert for the same
// attempt id returns domain.ErrAttemptConflict.
func (r *OrderRepository) CreateOrder(ctx context.Context, order domain.Order) error {
	q := conn(ctx, r.pool)

	const orderStmt = `
INSERT INTO orders (id, attempt_id, customer_id, status, total_amount, delivery_address, order_date, updated_at)
VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)`
	_, err := q.Exec(ctx, orderStmt,
		order.ID,
		order.AttemptID,
		order.CustomerID,
		string(order.Status),
		order.TotalAmount.StringFixed(2),
		order.DeliveryAddress,
		order.OrderDate,
		order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAttemptConflict
		}
		return classify("create order", err)
	}

	const itemStmt = `
INSERT INTO order_items (id, order_id, product_id, quantity, unit_price, total_price)
VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric)`
	batch := &pgx.Batch{}
	for _, item := range order.Items {
		batch.Queue(itemStmt,
			item.ID,
			order.ID,
			item.ProductID,
			item.Quantity,
			item.UnitPrice.StringFixed(2),
			item.TotalPrice.StringFixed(2),
		)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := sendBatch(ctx, r.pool, batch); err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrProductNotFound
		}
		return classify("create order items", err)
	}
	return nil
}

// ClearCart removes the purchased lines and bumps the cart version. Lines
// added after the snapshot are kept.
func (r *OrderRepository) ClearCart(ctx context.Context, cartID int64, productIDs []int64) error {
	q := conn(ctx, r.pool)
	if _, err := q.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = ANY($2)`, cartID, productIDs); err != nil {
		return classify("clear cart", err)
	}
	if _, err := q.Exec(ctx, `UPDATE carts SET version = version + 1, updated_at = NOW() WHERE id = $1`, cartID); err != nil {
		return classify("bump cart version", err)
	}
	return nil
}

const orderColumns = `id, attempt_id, customer_id, status, total_amount::text, delivery_address, order_date, updated_at`

func (r *OrderRepository) GetOrderByAttemptID(ctx context.Context, attemptID string) (*domain.Order, error) {
	order, err := r.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE attempt_id = $1`, attemptID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, orderID int64) (domain.Order, error) {
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
}

// GetOrderForUpdate locks the order row for the enclosing transaction.
func (r *OrderRepository) GetOrderForUpdate(ctx context.Context, orderID int64) (domain.Order, error) {
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID)
}

// ListOrdersByCustomer returns the customer's orders, newest first.
func (r *OrderRepository) ListOrdersByCustomer(ctx context.Context, customerID int64) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE customer_id = $1 ORDER BY order_date DESC, id DESC`
	rows, err := conn(ctx, r.pool).Query(ctx, query, customerID)
	if err != nil {
		return nil, classify("list orders", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate orders: %w", rows.Err())
	}

	for i := range orders {
		if orders[i].Items, err = r.listItems(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, orderID int64, status domain.OrderStatus) error {
	const stmt = `UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`

	tag, err := conn(ctx, r.pool).Exec(ctx, stmt, orderID, string(status))
	if err != nil {
		return classify("update order status", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) getOrder(ctx context.Context, query string, arg any) (domain.Order, error) {
	order, err := scanOrder(conn(ctx, r.pool).QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, classify("get order", err)
	}
	if order.Items, err = r.listItems(ctx, order.ID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *OrderRepository) listItems(ctx context.Context, orderID int64) ([]domain.OrderItem, error) {
	const query = `
SELECT id, order_id, product_id, quantity, unit_price::text, total_price::text
FROM order_items
WHERE order_id = $1
ORDER BY product_id ASC`

	rows, err := conn(ctx, r.pool).Query(ctx, query, orderID)
	if err != nil {
		return nil, classify("list order items", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		var unit, total string
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &unit, &total); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if item.UnitPrice, err = decimal.NewFromString(unit); err != nil {
			return nil, fmt.Errorf("parse unit price: %w", err)
		}
		if item.TotalPrice, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("parse total price: %w", err)
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate order items: %w", rows.Err())
	}
	return items, nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var status, total string
	if err := row.Scan(&o.ID, &o.AttemptID, &o.CustomerID, &status, &total, &o.DeliveryAddress, &o.OrderDate, &o.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	amount, err := decimal.NewFromString(total)
	if err != nil {
		return domain.Order{}, fmt.Errorf("parse total amount: %w", err)
	}
	o.TotalAmount = amount
	o.OrderDate = o.OrderDate.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

func sendBatch(ctx context.Context, pool *pgxpool.Pool, batch *pgx.Batch) error {
	var results pgx.BatchResults
	if tx := txFromContext(ctx); tx != nil {
		results = tx.SendBatch(ctx, batch)
	} else {
		results = pool.SendBatch(ctx, batch)
	}
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	return results.Close()
}
