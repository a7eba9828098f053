package events

import (
	"strconv"

	"github.com/Agbobli5373/grocery-shop/internal/domain"
)

const (
	TopicOrders    = "order.events"
	TopicInventory = "inventory.events"
)

// AllTopics lists every broker topic the service writes.
var AllTopics = []string{TopicOrders, TopicInventory}

var topicByType = map[domain.EventType]string{
	domain.EventOrderCreated:       TopicOrders,
	domain.EventOrderStatusChanged: TopicOrders,
	domain.EventStockUpdated:       TopicInventory,
	domain.EventLowStockAlert:      TopicInventory,
}

// TopicFor returns the broker topic for an event type, or "" if unmapped.
func TopicFor(t domain.EventType) string {
	return topicByType[t]
}

// PartitionKey keeps per-order events ordered on the order topic and
// per-product events ordered on the inventory topic.
func PartitionKey(ev domain.Event) string {
	if TopicFor(ev.Type) == TopicInventory {
		var p struct {
			ProductID int64 `json:"product_id"`
		}
		if err := ev.Decode(&p); err == nil && p.ProductID != 0 {
			return strconv.FormatInt(p.ProductID, 10)
		}
	}
	if ev.OrderID != 0 {
		return strconv.FormatInt(ev.OrderID, 10)
	}
	return ev.ID
}
