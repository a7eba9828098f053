package postgres

import (
	"context"
	"fmt"

	"github.com/Agbobli5373/grocery-shop/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type CatalogRepository struct {
	pool *pgxpool.Pool
}

func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// CreateProduct stores the product and opens its stock row.
func (r *CatalogRepository) CreateProduct(ctx context.Context, p domain.Product) error {
	return withTx(ctx, r.pool, func(txCtx context.Context) error {
		q := conn(txCtx, r.pool)

		const productStmt = `INSERT INTO products (id, name, price) VALUES ($1, $2, $3::numeric)`
		if _, err := q.Exec(txCtx, productStmt, p.ID, p.Name, p.Price.StringFixed(2)); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrProductExists
			}
			if isCheckViolation(err) {
				return domain.ErrInvalidProduct
			}
			return classify("create product", err)
		}

		const stockStmt = `INSERT INTO product_stock (product_id, quantity) VALUES ($1, $2)`
		if _, err := q.Exec(txCtx, stockStmt, p.ID, p.Stock); err != nil {
			if isCheckViolation(err) {
				return domain.ErrInvalidProduct
			}
			return classify("create product stock", err)
		}
		return nil
	})
}

func (r *CatalogRepository) ListProducts(ctx context.Context) ([]domain.Product, error) {
	const query = `
SELECT p.id, p.name, p.price::text, COALESCE(s.quantity, 0), p.created_at
FROM products p
LEFT JOIN product_stock s ON s.product_id = p.id
ORDER BY p.id ASC`
	rows, err := conn(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, classify("list products", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		var price string
		if err := rows.Scan(&p.ID, &p.Name, &price, &p.Stock, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		products = append(products, p)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate products: %w", rows.Err())
	}
	return products, nil
}
