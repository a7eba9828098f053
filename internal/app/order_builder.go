package app

import (
	"time"

	"github.com/Agbobli5373/grocery-shop/internal/domain"
	"github.com/shopspring/decimal"
)

// OrderBuilder constructs orders from cart snapshots. It never touches stock.
type OrderBuilder struct {
	ids IDGenerator
}

func NewOrderBuilder(ids IDGenerator) *OrderBuilder {
	return &OrderBuilder{ids: ids}
}

type BuildInput struct {
	AttemptID       string
	CustomerID      int64
	DeliveryAddress string
	Snapshot        domain.CartSnapshot
	Now             time.Time
}

// Build assigns identity and computes totals with decimal arithmetic, so the
// order total always equals the sum of its line totals.
func (b *OrderBuilder) Build(in BuildInput) domain.Order {
	order := domain.Order{
		ID:              b.ids.NextID(),
		AttemptID:       in.AttemptID,
		CustomerID:      in.CustomerID,
		Status:          domain.OrderStatusPending,
		DeliveryAddress: in.DeliveryAddress,
		OrderDate:       in.Now,
		UpdatedAt:       in.Now,
		Items:           make([]domain.OrderItem, 0, len(in.Snapshot.Lines)),
	}

	total := decimal.Zero
	for _, line := range in.Snapshot.Lines {
		lineTotal := line.Subtotal()
		order.Items = append(order.Items, domain.OrderItem{
			ID:         b.ids.NextID(),
			OrderID:    order.ID,
			ProductID:  line.ProductID,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			TotalPrice: lineTotal,
		})
		total = total.Add(lineTotal)
	}
	order.TotalAmount = total
	return order
}
