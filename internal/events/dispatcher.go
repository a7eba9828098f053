package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Agbobli5373/grocery-shop/internal/domain"
	"go.uber.org/zap"
)

// Sink receives the events routed to one topic, in emission order.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, topic string, events []domain.Event) error
}

// Dispatcher fans committed events out to the sinks subscribed to each
// event's topic. Subscriptions are registered explicitly at startup.
type Dispatcher struct {
	mu    sync.RWMutex
	sinks map[string][]Sink
	log   *zap.Logger
}

func NewDispatcher(log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{sinks: make(map[string][]Sink), log: log.Named("dispatcher")}
}

// Subscribe registers sink for topic.
func (d *Dispatcher) Subscribe(topic string, sink Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks[topic] = append(d.sinks[topic], sink)
}

// SubscribeAll registers sink for every known topic.
func (d *Dispatcher) SubscribeAll(sink Sink) {
	for _, topic := range AllTopics {
		d.Subscribe(topic, sink)
	}
}

// Publish groups events by topic, preserving order within each topic, and
// delivers every group to every sink. All sinks are attempted; failures are
// joined into the returned error.
func (d *Dispatcher) Publish(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	var (
		order  []string
		groups = make(map[string][]domain.Event)
		errs   []error
	)
	for _, ev := range events {
		topic := TopicFor(ev.Type)
		if topic == "" {
			errs = append(errs, fmt.Errorf("event %s: no topic for type %q", ev.ID, ev.Type))
			continue
		}
		if _, ok := groups[topic]; !ok {
			order = append(order, topic)
		}
		groups[topic] = append(groups[topic], ev)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, topic := range order {
		for _, sink := range d.sinks[topic] {
			if err := sink.Deliver(ctx, topic, groups[topic]); err != nil {
				d.log.Warn("sink delivery failed",
					zap.String("sink", sink.Name()),
					zap.String("topic", topic),
					zap.Int("events", len(groups[topic])),
					zap.Error(err),
				)
				errs = append(errs, fmt.Errorf("%s/%s: %w", sink.Name(), topic, err))
			}
		}
	}
	return errors.Join(errs...)
}
