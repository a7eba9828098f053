package http

import (
	"context"
	"sync"
	"time"

	"github.com/Agbobli5373/grocery-shop/internal/app"
	"github.com/Agbobli5373/grocery-shop/internal/domain"
	"github.com/shopspring/decimal"
)

type stubCheckout struct {
	mu    sync.Mutex
	order domain.Order
	err   error
	got   []app.CheckoutInput
}

func (s *stubCheckout) Checkout(_ context.Context, in app.CheckoutInput) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, in)
	return s.order, s.err
}

type stubOrders struct {
	orders map[int64]domain.Order
	err    error

	updated []app.UpdateStatusInput
}

func (s *stubOrders) GetOrder(_ context.Context, orderID int64) (domain.Order, error) {
	if s.err != nil {
		return domain.Order{}, s.err
	}
	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *stubOrders) ListCustomerOrders(_ context.Context, customerID int64) ([]domain.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.Order
	for _, o := range s.orders {
		if o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *stubOrders) UpdateStatus(ctx context.Context, in app.UpdateStatusInput) (app.UpdateStatusResult, error) {
	s.updated = append(s.updated, in)
	order, err := s.GetOrder(ctx, in.OrderID)
	if err != nil {
		return app.UpdateStatusResult{}, err
	}
	if _, err := domain.ParseOrderStatus(string(in.Status)); err != nil {
		return app.UpdateStatusResult{}, err
	}
	if !order.Status.CanTransitionTo(in.Status) {
		return app.UpdateStatusResult{}, domain.ErrInvalidTransition
	}
	old := order.Status
	order.Status = in.Status
	return app.UpdateStatusResult{Order: order, OldStatus: old}, nil
}

func (s *stubOrders) Cancel(ctx context.Context, orderID int64) (app.UpdateStatusResult, error) {
	return s.UpdateStatus(ctx, app.UpdateStatusInput{OrderID: orderID, Status: domain.OrderStatusCancelled})
}

type stubInventory struct {
	levels    []domain.StockLevel
	threshold int
	change    domain.StockChange
	err       error
}

func (s *stubInventory) StockLevel(_ context.Context, productID int64) (domain.StockLevel, error) {
	if s.err != nil {
		return domain.StockLevel{}, s.err
	}
	for _, l := range s.levels {
		if l.ProductID == productID {
			return l, nil
		}
	}
	return domain.StockLevel{}, domain.ErrProductNotFound
}

func (s *stubInventory) LowStock(context.Context) ([]domain.StockLevel, error) {
	return s.levels, s.err
}

func (s *stubInventory) Restock(_ context.Context, productID int64, qty int) (domain.StockChange, error) {
	if s.err != nil {
		return domain.StockChange{}, s.err
	}
	if qty <= 0 {
		return domain.StockChange{}, domain.ErrInvalidQuantity
	}
	return domain.StockChange{ProductID: productID, Previous: s.change.Previous, Current: s.change.Previous + qty}, nil
}

func (s *stubInventory) Threshold() int { return s.threshold }

type stubCarts struct {
	cart domain.CartSnapshot
	got  []app.SetCartItemInput
	err  error
}

func (s *stubCarts) Cart(_ context.Context, customerID int64) (domain.CartSnapshot, error) {
	if s.err != nil {
		return domain.CartSnapshot{}, s.err
	}
	snap := s.cart
	snap.CustomerID = customerID
	return snap, nil
}

func (s *stubCarts) SetItem(_ context.Context, in app.SetCartItemInput) error {
	s.got = append(s.got, in)
	return s.err
}

func sampleOrder(id, customerID int64, status domain.OrderStatus) domain.Order {
	at := time.Date(2025, 2, 3, 12, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:              id,
		AttemptID:       "attempt-1",
		CustomerID:      customerID,
		Status:          status,
		TotalAmount:     decimal.RequireFromString("11.00"),
		DeliveryAddress: "1 Market St",
		OrderDate:       at,
		UpdatedAt:       at,
		Items: []domain.OrderItem{
			{ID: 1, OrderID: id, ProductID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("3.00"), TotalPrice: decimal.RequireFromString("6.00")},
			{ID: 2, OrderID: id, ProductID: 2, Quantity: 1, UnitPrice: decimal.RequireFromString("5.00"), TotalPrice: decimal.RequireFromString("5.00")},
		},
	}
}
