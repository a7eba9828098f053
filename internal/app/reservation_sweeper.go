package app

import (
	"context"
	"time"

	"github.com/Agbobli5373/grocery-shop/internal/clock"
	"github.com/Agbobli5373/grocery-shop/internal/domain"
	"go.uber.org/zap"
)

const (
	// DefaultReservationMaxAge must exceed the attempt timeout plus the
	// compensation budget, or live checkouts lose their reservations.
	DefaultReservationMaxAge = 5 * time.Minute
	defaultSweepInterval     = time.Minute
)

type StaleReservations interface {
	ReleaseStale(ctx context.Context, cutoff time.Time) ([]domain.StockChange, error)
}

// ReservationSweeper restores stock held by checkout attempts that neither
// committed nor released, such as after a crash or a failed compensation.
type ReservationSweeper struct {
	ledger    StaleReservations
	publisher EventPublisher
	ids       IDGenerator
	clock     clock.Clock
	log       *zap.Logger
	maxAge    time.Duration
}

func NewReservationSweeper(
	ledger StaleReservations,
	publisher EventPublisher,
	ids IDGenerator,
	clk clock.Clock,
	log *zap.Logger,
	maxAge time.Duration,
) *ReservationSweeper {
	if log == nil {
		log = zap.NewNop()
	}
	if maxAge <= 0 {
		maxAge = DefaultReservationMaxAge
	}
	return &ReservationSweeper{
		ledger:    ledger,
		publisher: publisher,
		ids:       ids,
		clock:     clk,
		log:       log.Named("sweeper"),
		maxAge:    maxAge,
	}
}

// Sweep releases reservations older than the max age and returns the number
// of products restocked.
func (s *ReservationSweeper) Sweep(ctx context.Context) (int, error) {
	now := s.clock.Now()
	changes, err := s.ledger.ReleaseStale(ctx, now.Add(-s.maxAge))
	if err != nil {
		return 0, err
	}
	if len(changes) == 0 {
		return 0, nil
	}

	evs := make([]domain.Event, 0, len(changes))
	for _, c := range changes {
		s.log.Warn("released orphaned reservation",
			zap.Int64("product_id", c.ProductID),
			zap.Int("old_stock", c.Previous),
			zap.Int("new_stock", c.Current),
		)
		ev, err := domain.NewEvent(s.ids.NewUUID(), domain.EventStockUpdated, 0, domain.StockUpdatedPayload{
			ProductID: c.ProductID,
			Delta:     c.Delta(),
			OldStock:  c.Previous,
			NewStock:  c.Current,
		}, now)
		if err != nil {
			s.log.Error("build sweep event", zap.Error(err))
			continue
		}
		evs = append(evs, ev)
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), evs); err != nil {
		s.log.Warn("publish sweep events", zap.Error(err))
	}
	return len(changes), nil
}

// Run calls Sweep every interval until ctx is done.
func (s *ReservationSweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("sweep reservations", zap.Error(err))
			}
		}
	}
}
