package app

import (
	"context"
	"fmt"

	"github.com/Agbobli5373/grocery-shop/internal/clock"
	"github.com/Agbobli5373/grocery-shop/internal/domain"
	"go.uber.org/zap"
)

type OrderRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetOrder(ctx context.Context, orderID int64) (domain.Order, error)
	GetOrderForUpdate(ctx context.Context, orderID int64) (domain.Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID int64) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status domain.OrderStatus) error
}

// OrderService owns order reads and lifecycle transitions after checkout.
type OrderService struct {
	repo      OrderRepository
	ledger    StockLedger
	publisher EventPublisher
	ids       IDGenerator
	clock     clock.Clock
	log       *zap.Logger
	metrics   CheckoutMetrics
}

func NewOrderService(
	repo OrderRepository,
	ledger StockLedger,
	publisher EventPublisher,
	ids IDGenerator,
	clk clock.Clock,
	log *zap.Logger,
	metrics CheckoutMetrics,
) *OrderService {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &OrderService{
		repo:      repo,
		ledger:    ledger,
		publisher: publisher,
		ids:       ids,
		clock:     clk,
		log:       log.Named("orders"),
		metrics:   metrics,
	}
}

func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (domain.Order, error) {
	if orderID <= 0 {
		return domain.Order{}, domain.ErrInvalidID
	}
	return s.repo.GetOrder(ctx, orderID)
}

func (s *OrderService) ListCustomerOrders(ctx context.Context, customerID int64) ([]domain.Order, error) {
	if customerID <= 0 {
		return nil, domain.ErrCustomerRequired
	}
	return s.repo.ListOrdersByCustomer(ctx, customerID)
}

type UpdateStatusInput struct {
	OrderID int64
	Status  domain.OrderStatus
}

type UpdateStatusResult struct {
	Order     domain.Order
	OldStatus domain.OrderStatus
}

// UpdateStatus moves an order forward, or cancels it. Cancelling restocks
// every line in the same transaction as the status change.
func (s *OrderService) UpdateStatus(ctx context.Context, in UpdateStatusInput) (UpdateStatusResult, error) {
	if in.OrderID <= 0 {
		return UpdateStatusResult{}, domain.ErrInvalidID
	}
	if _, err := domain.ParseOrderStatus(string(in.Status)); err != nil {
		return UpdateStatusResult{}, err
	}

	var (
		result   UpdateStatusResult
		restocks []domain.StockChange
	)
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		order, err := s.repo.GetOrderForUpdate(txCtx, in.OrderID)
		if err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(in.Status) {
			return domain.ErrInvalidTransition
		}
		if err := s.repo.UpdateOrderStatus(txCtx, order.ID, in.Status); err != nil {
			return err
		}

		if in.Status == domain.OrderStatusCancelled {
			for _, item := range order.Items {
				change, err := s.ledger.Increment(txCtx, item.ProductID, item.Quantity)
				if err != nil {
					return fmt.Errorf("restock product %d: %w", item.ProductID, err)
				}
				restocks = append(restocks, change)
			}
		}

		result.OldStatus = order.Status
		order.Status = in.Status
		order.UpdatedAt = s.clock.Now()
		result.Order = order
		return nil
	})
	if err != nil {
		return UpdateStatusResult{}, err
	}

	s.log.Info("order status updated",
		zap.Int64("order_id", result.Order.ID),
		zap.String("from", string(result.OldStatus)),
		zap.String("to", string(result.Order.Status)),
	)
	s.emit(ctx, result, restocks)
	return result, nil
}

// Cancel is UpdateStatus to CANCELLED.
func (s *OrderService) Cancel(ctx context.Context, orderID int64) (UpdateStatusResult, error) {
	return s.UpdateStatus(ctx, UpdateStatusInput{OrderID: orderID, Status: domain.OrderStatusCancelled})
}

func (s *OrderService) emit(ctx context.Context, res UpdateStatusResult, restocks []domain.StockChange) {
	now := s.clock.Now()
	order := res.Order

	events := make([]domain.Event, 0, 1+len(restocks))
	changed, err := domain.NewEvent(s.ids.NewUUID(), domain.EventOrderStatusChanged, order.ID, domain.OrderStatusChangedPayload{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		OldStatus:  res.OldStatus,
		NewStatus:  order.Status,
		UpdatedAt:  order.UpdatedAt,
	}, now)
	if err != nil {
		s.log.Error("build status event", zap.Int64("order_id", order.ID), zap.Error(err))
		return
	}
	events = append(events, changed)

	for _, change := range restocks {
		ev, err := domain.NewEvent(s.ids.NewUUID(), domain.EventStockUpdated, order.ID, domain.StockUpdatedPayload{
			ProductID: change.ProductID,
			Delta:     change.Delta(),
			OldStock:  change.Previous,
			NewStock:  change.Current,
			OrderID:   order.ID,
		}, now)
		if err != nil {
			s.log.Error("build restock event", zap.Int64("order_id", order.ID), zap.Error(err))
			continue
		}
		events = append(events, ev)
	}

	if err := s.publisher.Publish(context.WithoutCancel(ctx), events); err != nil {
		s.metrics.ObserveDispatchFailure("order_status")
		s.log.Warn("publish status events", zap.Int64("order_id", order.ID), zap.Error(err))
	}
}
