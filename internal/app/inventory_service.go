package app

import (
	"context"
	"slices"

	"github.com/Agbobli5373/grocery-shop/internal/clock"
	"github.com/Agbobli5373/grocery-shop/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type InventoryRepository interface {
	GetStock(ctx context.Context, productID int64) (domain.StockLevel, error)
	ListLowStock(ctx context.Context, threshold int) ([]domain.StockLevel, error)
}

// InventoryService exposes stock reads and manual restocks. All mutation goes
// through the ledger.
type InventoryService struct {
	repo      InventoryRepository
	ledger    StockLedger
	publisher EventPublisher
	ids       IDGenerator
	clock     clock.Clock
	log       *zap.Logger
	threshold int

	lowStock singleflight.Group
}

func NewInventoryService(
	repo InventoryRepository,
	ledger StockLedger,
	publisher EventPublisher,
	ids IDGenerator,
	clk clock.Clock,
	log *zap.Logger,
	threshold int,
) *InventoryService {
	if log == nil {
		log = zap.NewNop()
	}
	if threshold < 0 {
		threshold = defaultLowStockThreshold
	}
	return &InventoryService{
		repo:      repo,
		ledger:    ledger,
		publisher: publisher,
		ids:       ids,
		clock:     clk,
		log:       log.Named("inventory"),
		threshold: threshold,
	}
}

func (s *InventoryService) Threshold() int {
	return s.threshold
}

func (s *InventoryService) StockLevel(ctx context.Context, productID int64) (domain.StockLevel, error) {
	if productID <= 0 {
		return domain.StockLevel{}, domain.ErrInvalidID
	}
	return s.repo.GetStock(ctx, productID)
}

// LowStock lists products at or below the configured threshold. Concurrent
// callers share one scan; every admin stream opens with this snapshot.
func (s *InventoryService) LowStock(ctx context.Context) ([]domain.StockLevel, error) {
	ch := s.lowStock.DoChan("low-stock", func() (any, error) {
		return s.repo.ListLowStock(context.WithoutCancel(ctx), s.threshold)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]domain.StockLevel)), nil
	}
}

func (s *InventoryService) Restock(ctx context.Context, productID int64, qty int) (domain.StockChange, error) {
	if productID <= 0 {
		return domain.StockChange{}, domain.ErrInvalidID
	}
	if qty <= 0 {
		return domain.StockChange{}, domain.ErrInvalidQuantity
	}

	change, err := s.ledger.Increment(ctx, productID, qty)
	if err != nil {
		return domain.StockChange{}, err
	}
	s.log.Info("restocked product",
		zap.Int64("product_id", productID),
		zap.Int("old_stock", change.Previous),
		zap.Int("new_stock", change.Current),
	)

	ev, err := domain.NewEvent(s.ids.NewUUID(), domain.EventStockUpdated, 0, domain.StockUpdatedPayload{
		ProductID: productID,
		Delta:     change.Delta(),
		OldStock:  change.Previous,
		NewStock:  change.Current,
	}, s.clock.Now())
	if err != nil {
		s.log.Error("build restock event", zap.Error(err))
		return change, nil
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), []domain.Event{ev}); err != nil {
		s.log.Warn("publish restock event", zap.Int64("product_id", productID), zap.Error(err))
	}
	return change, nil
}
