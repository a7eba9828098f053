package live

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Agbobli5373/grocery-shop/internal/domain"
	"go.uber.org/zap"
)

// Topic taxonomy for live channels.
const (
	AdminInventoryTopic = "admin:inventory"
	userTopicPrefix     = "user:"
	orderTopicPrefix    = "order:"
)

// Frame event names written to subscribers.
const (
	FrameOrderStatus       = "order-status-update"
	FrameOrderNotification = "order-notification"
	FrameStockUpdated      = "stock-updated"
	FrameLowStockAlert     = "low-stock-alert"
	FrameConnected         = "connection-established"
	FrameInitialStatus     = "order-status"
	FrameInventoryStatus   = "inventory-status"
)

func UserTopic(customerID int64) string {
	return userTopicPrefix + strconv.FormatInt(customerID, 10)
}

func OrderTopic(orderID int64) string {
	return orderTopicPrefix + strconv.FormatInt(orderID, 10)
}

// Pusher is the part of Registry the router needs.
type Pusher interface {
	Push(topic string, msg Message) int
}

// Router turns domain events into live pushes.
type Router struct {
	pusher Pusher
	log    *zap.Logger
}

func NewRouter(pusher Pusher, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{pusher: pusher, log: log.Named("live_router")}
}

func (r *Router) Name() string { return "live" }

// Deliver pushes every event in order. Events that cannot be routed are
// logged and skipped; live delivery never fails the caller.
func (r *Router) Deliver(_ context.Context, _ string, events []domain.Event) error {
	for _, ev := range events {
		r.Route(ev)
	}
	return nil
}

// Route pushes one event to its live topics and returns the number of
// channels that accepted it.
func (r *Router) Route(ev domain.Event) int {
	targets, err := Targets(ev)
	if err != nil {
		r.log.Warn("unroutable event", zap.String("event_id", ev.ID), zap.String("type", string(ev.Type)), zap.Error(err))
		return 0
	}
	data, err := json.Marshal(ev)
	if err != nil {
		r.log.Error("encode live frame", zap.String("event_id", ev.ID), zap.Error(err))
		return 0
	}

	delivered := 0
	for _, t := range targets {
		delivered += r.pusher.Push(t.Topic, Message{ID: ev.ID, Event: t.Frame, Data: data})
	}
	return delivered
}

// Target is one live topic an event is pushed to, with its frame name.
type Target struct {
	Topic string
	Frame string
}

// Targets maps an event to its live topics.
func Targets(ev domain.Event) ([]Target, error) {
	switch ev.Type {
	case domain.EventOrderCreated:
		var p domain.OrderCreatedPayload
		if err := ev.Decode(&p); err != nil {
			return nil, err
		}
		return []Target{
			{Topic: UserTopic(p.CustomerID), Frame: FrameOrderNotification},
			{Topic: OrderTopic(p.OrderID), Frame: FrameOrderStatus},
		}, nil
	case domain.EventOrderStatusChanged:
		var p domain.OrderStatusChangedPayload
		if err := ev.Decode(&p); err != nil {
			return nil, err
		}
		return []Target{
			{Topic: OrderTopic(p.OrderID), Frame: FrameOrderStatus},
			{Topic: UserTopic(p.CustomerID), Frame: FrameOrderNotification},
		}, nil
	case domain.EventStockUpdated:
		return []Target{{Topic: AdminInventoryTopic, Frame: FrameStockUpdated}}, nil
	case domain.EventLowStockAlert:
		return []Target{{Topic: AdminInventoryTopic, Frame: FrameLowStockAlert}}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}
}
