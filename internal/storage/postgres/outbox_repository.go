package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxRecord is one event waiting to be relayed to the broker. Seq is
// assigned on insert and orders the backlog.
type OutboxRecord struct {
	Seq          int64
	EventID      string
	Topic        string
	PartitionKey string
	EventType    string
	Payload      []byte
	CreatedAt    time.Time
	Attempts     int
}

type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// Append stores records; an already stored event id is ignored.
func (r *OutboxRepository) Append(ctx context.Context, records []OutboxRecord) error {
	if len(records) == 0 {
		return nil
	}
	const stmt = `
INSERT INTO event_outbox (event_id, topic, partition_key, event_type, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (event_id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, rec := range records {
		created := rec.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		batch.Queue(stmt, rec.EventID, rec.Topic, rec.PartitionKey, rec.EventType, rec.Payload, created)
	}
	if err := sendBatch(ctx, r.pool, batch); err != nil {
		return classify("append outbox", err)
	}
	return nil
}

// FetchPending returns up to limit unpublished records in insertion order. Rows are
// locked with SKIP LOCKED so concurrent relays split the backlog; callers must
// run it inside WithTx.
func (r *OutboxRepository) FetchPending(ctx context.Context, limit int) ([]OutboxRecord, error) {
	const query = `
SELECT seq, event_id, topic, partition_key, event_type, payload, created_at, attempts
FROM event_outbox
WHERE published_at IS NULL
ORDER BY seq ASC
LIMIT $1
FOR UPDATE SKIP LOCKED`

	rows, err := conn(ctx, r.pool).Query(ctx, query, limit)
	if err != nil {
		return nil, classify("fetch outbox", err)
	}
	defer rows.Close()

	var records []OutboxRecord
	for rows.Next() {
		var rec OutboxRecord
		if err := rows.Scan(&rec.Seq, &rec.EventID, &rec.Topic, &rec.PartitionKey, &rec.EventType, &rec.Payload, &rec.CreatedAt, &rec.Attempts); err != nil {
			return nil, fmt.Errorf("scan outbox record: %w", err)
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate outbox: %w", rows.Err())
	}
	return records, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, eventIDs []string, at time.Time) error {
	if len(eventIDs) == 0 {
		return nil
	}
	const stmt = `UPDATE event_outbox SET published_at = $2, attempts = attempts + 1 WHERE event_id = ANY($1)`
	if _, err := conn(ctx, r.pool).Exec(ctx, stmt, eventIDs, at); err != nil {
		return classify("mark outbox published", err)
	}
	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, eventIDs []string, cause error) error {
	if len(eventIDs) == 0 {
		return nil
	}
	const stmt = `UPDATE event_outbox SET attempts = attempts + 1, last_error = $2 WHERE event_id = ANY($1)`
	if _, err := conn(ctx, r.pool).Exec(ctx, stmt, eventIDs, cause.Error()); err != nil {
		return classify("mark outbox failed", err)
	}
	return nil
}

func (r *OutboxRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}
