package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Agbobli5373/grocery-shop/internal/clock"
	"github.com/Agbobli5373/grocery-shop/internal/storage/postgres"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type OutboxStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	FetchPending(ctx context.Context, limit int) ([]postgres.OutboxRecord, error)
	MarkPublished(ctx context.Context, eventIDs []string, at time.Time) error
	MarkFailed(ctx context.Context, eventIDs []string, cause error) error
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type RelayMetrics interface {
	ObserveRelayed(topic string, n int)
	ObserveRelayFailure(topic string)
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	WriteTimeout time.Duration
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return c
}

// Relay forwards outbox rows to the broker, at least once. Rows of one topic
// are written in outbox order; topics are written concurrently.
type Relay struct {
	store   OutboxStore
	writer  MessageWriter
	clock   clock.Clock
	log     *zap.Logger
	metrics RelayMetrics
	cfg     RelayConfig
}

func NewRelay(store OutboxStore, writer MessageWriter, clk clock.Clock, log *zap.Logger, metrics RelayMetrics, cfg RelayConfig) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopRelayMetrics{}
	}
	return &Relay{
		store:   store,
		writer:  writer,
		clock:   clk,
		log:     log.Named("outbox_relay"),
		metrics: metrics,
		cfg:     cfg.withDefaults(),
	}
}

// Run polls until ctx is done. A full batch is followed immediately by the
// next poll.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		for {
			n, err := r.RelayOnce(ctx)
			if err != nil && ctx.Err() == nil {
				r.log.Warn("relay batch failed", zap.Error(err))
			}
			if err != nil || n < r.cfg.BatchSize {
				break
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RelayOnce forwards one batch and returns how many rows were published.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	var (
		published int
		writeErrs []error
	)
	err := r.store.WithTx(ctx, func(txCtx context.Context) error {
		records, err := r.store.FetchPending(txCtx, r.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		var topics []string
		byTopic := make(map[string][]postgres.OutboxRecord)
		for _, rec := range records {
			if _, ok := byTopic[rec.Topic]; !ok {
				topics = append(topics, rec.Topic)
			}
			byTopic[rec.Topic] = append(byTopic[rec.Topic], rec)
		}

		var (
			mu     sync.Mutex
			failed = make(map[string]error)
			g      errgroup.Group
		)
		writeCtx, cancel := context.WithTimeout(txCtx, r.cfg.WriteTimeout)
		defer cancel()
		for _, topic := range topics {
			g.Go(func() error {
				if err := r.writer.WriteMessages(writeCtx, toMessages(byTopic[topic])...); err != nil {
					mu.Lock()
					failed[topic] = err
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()

		now := r.clock.Now()
		for _, topic := range topics {
			ids := eventIDs(byTopic[topic])
			if cause, ok := failed[topic]; ok {
				r.metrics.ObserveRelayFailure(topic)
				writeErrs = append(writeErrs, fmt.Errorf("write %s: %w", topic, cause))
				if err := r.store.MarkFailed(txCtx, ids, cause); err != nil {
					return err
				}
				continue
			}
			if err := r.store.MarkPublished(txCtx, ids, now); err != nil {
				return err
			}
			r.metrics.ObserveRelayed(topic, len(ids))
			published += len(ids)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, errors.Join(writeErrs...)
}

func toMessages(records []postgres.OutboxRecord) []kafka.Message {
	msgs := make([]kafka.Message, 0, len(records))
	for _, rec := range records {
		msgs = append(msgs, kafka.Message{
			Topic: rec.Topic,
			Key:   []byte(rec.PartitionKey),
			Value: rec.Payload,
			Time:  rec.CreatedAt,
			Headers: []kafka.Header{
				{Key: "event_id", Value: []byte(rec.EventID)},
				{Key: "event_type", Value: []byte(rec.EventType)},
			},
		})
	}
	return msgs
}

func eventIDs(records []postgres.OutboxRecord) []string {
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.EventID)
	}
	return ids
}

type nopRelayMetrics struct{}

func (nopRelayMetrics) ObserveRelayed(string, int) {}
func (nopRelayMetrics) ObserveRelayFailure(string) {}
