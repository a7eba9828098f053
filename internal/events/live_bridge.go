package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Agbobli5373/grocery-shop/internal/dedupe"
	"github.com/Agbobli5373/grocery-shop/internal/domain"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// LiveBridge consumes broker topics and hands each event to a sink once,
// dropping redeliveries by event id.
type LiveBridge struct {
	reader  MessageReader
	seen    dedupe.Store
	sink    Sink
	log     *zap.Logger
	backoff time.Duration
}

func NewLiveBridge(reader MessageReader, seen dedupe.Store, sink Sink, log *zap.Logger) *LiveBridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &LiveBridge{
		reader:  reader,
		seen:    seen,
		sink:    sink,
		log:     log.Named("live_bridge"),
		backoff: time.Second,
	}
}

// Run consumes until ctx is done.
func (b *LiveBridge) Run(ctx context.Context) {
	for {
		msg, err := b.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			b.log.Warn("fetch message failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.backoff):
			}
			continue
		}

		b.Handle(ctx, msg)
		if err := b.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			b.log.Warn("commit message failed",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}
}

// Handle decodes and delivers one message. It reports whether the event was
// delivered.
func (b *LiveBridge) Handle(ctx context.Context, msg kafka.Message) bool {
	var ev domain.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil || ev.ID == "" {
		b.log.Error("dropping undecodable message",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.String("event_id", header(msg, "event_id")),
			zap.Error(err),
		)
		return false
	}

	first, err := b.seen.MarkSeen(ctx, ev.ID)
	if err != nil {
		// Prefer a duplicate push over a lost one.
		b.log.Warn("dedupe unavailable", zap.String("event_id", ev.ID), zap.Error(err))
		first = true
	}
	if !first {
		b.log.Debug("duplicate event skipped", zap.String("event_id", ev.ID))
		return false
	}

	if err := b.sink.Deliver(ctx, msg.Topic, []domain.Event{ev}); err != nil {
		b.log.Warn("deliver event failed", zap.String("event_id", ev.ID), zap.Error(err))
		if err := b.seen.Forget(context.WithoutCancel(ctx), ev.ID); err != nil {
			b.log.Warn("forget event failed", zap.String("event_id", ev.ID), zap.Error(err))
		}
		return false
	}
	return true
}
