package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventOrderCreated       EventType = "OrderCreated"
	EventStockUpdated       EventType = "StockUpdated"
	EventLowStockAlert      EventType = "LowStockAlert"
	EventOrderStatusChanged EventType = "OrderStatusChanged"
)

// Event is an immutable record of a committed state change. OrderID is zero
// when the change has no causal order.
type Event struct {
	ID        string          `json:"event_id"`
	Type      EventType       `json:"type"`
	OrderID   int64           `json:"order_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	EmittedAt time.Time       `json:"emitted_at"`
}

// NewEvent encodes payload once; the result is never mutated afterwards.
func NewEvent(id string, typ EventType, orderID int64, payload any, at time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return Event{
		ID:        id,
		Type:      typ,
		OrderID:   orderID,
		Payload:   data,
		EmittedAt: at.UTC(),
	}, nil
}

// Decode unmarshals the payload into dst.
func (e Event) Decode(dst any) error {
	return json.Unmarshal(e.Payload, dst)
}

type OrderCreatedPayload struct {
	OrderID         int64           `json:"order_id"`
	CustomerID      int64           `json:"customer_id"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	DeliveryAddress string          `json:"delivery_address"`
	OrderDate       time.Time       `json:"order_date"`
	ItemCount       int             `json:"item_count"`
}

type StockUpdatedPayload struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	Delta       int    `json:"delta"`
	OldStock    int    `json:"old_stock"`
	NewStock    int    `json:"new_stock"`
	OrderID     int64  `json:"order_id,omitempty"`
}

type LowStockAlertPayload struct {
	ProductID    int64  `json:"product_id"`
	ProductName  string `json:"product_name,omitempty"`
	CurrentStock int    `json:"current_stock"`
	Threshold    int    `json:"threshold"`
}

type OrderStatusChangedPayload struct {
	OrderID    int64       `json:"order_id"`
	CustomerID int64       `json:"customer_id"`
	OldStatus  OrderStatus `json:"old_status"`
	NewStatus  OrderStatus `json:"new_status"`
	UpdatedAt  time.Time   `json:"updated_at"`
}
