package events

import (
	"context"
	"encoding/json"

	"github.com/Agbobli5373/grocery-shop/internal/domain"
	"github.com/Agbobli5373/grocery-shop/internal/storage/postgres"
)

type OutboxAppender interface {
	Append(ctx context.Context, records []postgres.OutboxRecord) error
}

// OutboxSink stores events durably for the relay to forward to the broker.
type OutboxSink struct {
	store OutboxAppender
}

func NewOutboxSink(store OutboxAppender) *OutboxSink {
	return &OutboxSink{store: store}
}

func (s *OutboxSink) Name() string { return "outbox" }

func (s *OutboxSink) Deliver(ctx context.Context, topic string, events []domain.Event) error {
	records := make([]postgres.OutboxRecord, 0, len(events))
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		records = append(records, postgres.OutboxRecord{
			EventID:      ev.ID,
			Topic:        topic,
			PartitionKey: PartitionKey(ev),
			EventType:    string(ev.Type),
			Payload:      data,
			CreatedAt:    ev.EmittedAt,
		})
	}
	return s.store.Append(ctx, records)
}
