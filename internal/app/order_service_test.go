package app

import (
	"context"
	"testing"
	"time"

	"github.com/Agbobli5373/grocery-shop/internal/clock"
	"github.com/Agbobli5373/grocery-shop/internal/domain"
	"github.com/shopspring/decimal"
)

func TestOrderService_UpdateStatus(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)

	newService := func(orders ...domain.Order) (*OrderService, *fakeOrderRepo, *fakeLedger, *recordingPublisher) {
		repo := newFakeOrderRepo(orders...)
		ledger := newFakeLedger(map[int64]int{1: 5, 2: 0})
		pub := &recordingPublisher{}
		svc := NewOrderService(repo, ledger, pub, &seqIDs{}, clock.NewFixed(now), nil, nil)
		return svc, repo, ledger, pub
	}

	t.Run("moves order forward and emits status change", func(t *testing.T) {
		svc, repo, _, pub := newService(pendingOrder(100, 7))

		res, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{OrderID: 100, Status: domain.OrderStatusConfirmed})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.OldStatus != domain.OrderStatusPending || res.Order.Status != domain.OrderStatusConfirmed {
			t.Fatalf("unexpected transition %s -> %s", res.OldStatus, res.Order.Status)
		}
		if repo.orders[100].Status != domain.OrderStatusConfirmed {
			t.Fatalf("expected stored status CONFIRMED, got %s", repo.orders[100].Status)
		}

		changed := pub.ofType(domain.EventOrderStatusChanged)
		if len(changed) != 1 {
			t.Fatalf("expected 1 status event, got %d", len(changed))
		}
		var p domain.OrderStatusChangedPayload
		if err := changed[0].Decode(&p); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if p.CustomerID != 7 || p.NewStatus != domain.OrderStatusConfirmed || p.OldStatus != domain.OrderStatusPending {
			t.Fatalf("unexpected payload %+v", p)
		}
		if n := len(pub.ofType(domain.EventStockUpdated)); n != 0 {
			t.Fatalf("expected no stock events, got %d", n)
		}
	})

	t.Run("backward transition rejected", func(t *testing.T) {
		order := pendingOrder(101, 7)
		order.Status = domain.OrderStatusShipped
		svc, repo, _, pub := newService(order)

		_, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{OrderID: 101, Status: domain.OrderStatusConfirmed})
		if err != domain.ErrInvalidTransition {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
		if repo.orders[101].Status != domain.OrderStatusShipped {
			t.Fatalf("expected status unchanged")
		}
		if len(pub.events) != 0 {
			t.Fatalf("expected no events")
		}
	})

	t.Run("cancel restocks every line", func(t *testing.T) {
		svc, repo, ledger, pub := newService(pendingOrder(102, 7))

		res, err := svc.Cancel(context.Background(), 102)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Order.Status != domain.OrderStatusCancelled {
			t.Fatalf("expected CANCELLED, got %s", res.Order.Status)
		}
		if repo.orders[102].Status != domain.OrderStatusCancelled {
			t.Fatalf("expected stored status CANCELLED")
		}
		if ledger.quantity(1) != 7 || ledger.quantity(2) != 1 {
			t.Fatalf("expected restock, got p1=%d p2=%d", ledger.quantity(1), ledger.quantity(2))
		}
		if n := len(pub.ofType(domain.EventStockUpdated)); n != 2 {
			t.Fatalf("expected 2 stock events, got %d", n)
		}
	})

	t.Run("cancelled order cannot be cancelled again", func(t *testing.T) {
		order := pendingOrder(103, 7)
		order.Status = domain.OrderStatusCancelled
		svc, _, ledger, _ := newService(order)

		if _, err := svc.Cancel(context.Background(), 103); err != domain.ErrInvalidTransition {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
		if ledger.mutations != 0 {
			t.Fatalf("expected no restock, got %d mutations", ledger.mutations)
		}
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		svc, _, _, _ := newService(pendingOrder(104, 7))
		if _, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{OrderID: 104, Status: "LOST"}); err != domain.ErrInvalidStatus {
			t.Fatalf("expected ErrInvalidStatus, got %v", err)
		}
	})

	t.Run("missing order", func(t *testing.T) {
		svc, _, _, _ := newService()
		if _, err := svc.Cancel(context.Background(), 999); err != domain.ErrOrderNotFound {
			t.Fatalf("expected ErrOrderNotFound, got %v", err)
		}
	})
}

func TestOrderService_Reads(t *testing.T) {
	t.Parallel()

	repo := newFakeOrderRepo(pendingOrder(1, 7), pendingOrder(2, 7), pendingOrder(3, 8))
	svc := NewOrderService(repo, newFakeLedger(nil), &recordingPublisher{}, &seqIDs{}, clock.NewSystem(), nil, nil)

	orders, err := svc.ListCustomerOrders(context.Background(), 7)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}

	if _, err := svc.GetOrder(context.Background(), 0); err != domain.ErrInvalidID {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if _, err := svc.ListCustomerOrders(context.Background(), 0); err != domain.ErrCustomerRequired {
		t.Fatalf("expected ErrCustomerRequired, got %v", err)
	}
	got, err := svc.GetOrder(context.Background(), 3)
	if err != nil || got.CustomerID != 8 {
		t.Fatalf("expected order 3 for customer 8, got %+v (%v)", got, err)
	}
}

func pendingOrder(id, customerID int64) domain.Order {
	return domain.Order{
		ID:          id,
		AttemptID:   "attempt",
		CustomerID:  customerID,
		Status:      domain.OrderStatusPending,
		TotalAmount: decimal.RequireFromString("8.00"),
		Items: []domain.OrderItem{
			{ID: id*10 + 1, OrderID: id, ProductID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("3.00"), TotalPrice: decimal.RequireFromString("6.00")},
			{ID: id*10 + 2, OrderID: id, ProductID: 2, Quantity: 1, UnitPrice: decimal.RequireFromString("2.00"), TotalPrice: decimal.RequireFromString("2.00")},
		},
	}
}

type fakeOrderRepo struct {
	orders map[int64]domain.Order
}

func newFakeOrderRepo(orders ...domain.Order) *fakeOrderRepo {
	repo := &fakeOrderRepo{orders: make(map[int64]domain.Order)}
	for _, o := range orders {
		repo.orders[o.ID] = o
	}
	return repo
}

func (f *fakeOrderRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeOrderRepo) GetOrder(_ context.Context, orderID int64) (domain.Order, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (f *fakeOrderRepo) GetOrderForUpdate(ctx context.Context, orderID int64) (domain.Order, error) {
	return f.GetOrder(ctx, orderID)
}

func (f *fakeOrderRepo) ListOrdersByCustomer(_ context.Context, customerID int64) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range f.orders {
		if o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrderRepo) UpdateOrderStatus(_ context.Context, orderID int64, status domain.OrderStatus) error {
	order, ok := f.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	order.Status = status
	f.orders[orderID] = order
	return nil
}
