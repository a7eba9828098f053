package app

import (
	"context"
	"errors"

	"github.com/Agbobli5373/grocery-shop/internal/domain"
)

type CartStore interface {
	CartReader
	SetItem(ctx context.Context, customerID, productID int64, qty int) error
}

type CartService struct {
	carts CartStore
}

func NewCartService(carts CartStore) *CartService {
	return &CartService{carts: carts}
}

type SetCartItemInput struct {
	CustomerID int64
	ProductID  int64
	Quantity   int
}

// SetItem replaces the quantity of one cart line. Zero removes the line.
func (s *CartService) SetItem(ctx context.Context, in SetCartItemInput) error {
	if in.CustomerID <= 0 {
		return domain.ErrCustomerRequired
	}
	if in.ProductID <= 0 {
		return domain.ErrInvalidID
	}
	if in.Quantity < 0 {
		return domain.ErrInvalidQuantity
	}
	return s.carts.SetItem(ctx, in.CustomerID, in.ProductID, in.Quantity)
}

// Cart returns the customer's cart priced at current catalog prices. A
// customer with no cart gets an empty one.
func (s *CartService) Cart(ctx context.Context, customerID int64) (domain.CartSnapshot, error) {
	if customerID <= 0 {
		return domain.CartSnapshot{}, domain.ErrCustomerRequired
	}
	snap, err := s.carts.Snapshot(ctx, customerID)
	if errors.Is(err, domain.ErrEmptyCart) {
		return domain.CartSnapshot{CustomerID: customerID}, nil
	}
	return snap, err
}
