package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Agbobli5373/grocery-shop/internal/clock"
	"github.com/Agbobli5373/grocery-shop/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// StockLedger journals every decrement under the checkout attempt that made
// it. Release and Settle resolve the journal row either way.
type StockLedger interface {
	TryDecrement(ctx context.Context, attemptID string, productID int64, qty int) (domain.StockChange, error)
	Release(ctx context.Context, attemptID string, productID int64) (domain.StockChange, bool, error)
	Settle(ctx context.Context, attemptID string, lines int) error
	Increment(ctx context.Context, productID int64, qty int) (domain.StockChange, error)
	Read(ctx context.Context, productID int64) (int, error)
}

type CartReader interface {
	Snapshot(ctx context.Context, customerID int64) (domain.CartSnapshot, error)
}

type CheckoutStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateOrder(ctx context.Context, order domain.Order) error
	GetOrderByAttemptID(ctx context.Context, attemptID string) (*domain.Order, error)
	ClearCart(ctx context.Context, cartID int64, productIDs []int64) error
}

type EventPublisher interface {
	Publish(ctx context.Context, events []domain.Event) error
}

// CheckoutMetrics receives checkout outcomes. Implementations must be safe for
// concurrent use.
type CheckoutMetrics interface {
	ObserveCheckout(result string, elapsed time.Duration)
	ObserveCompensation(result string)
	ObserveDispatchFailure(source string)
}

const (
	defaultLowStockThreshold = 10
	defaultAttemptTimeout    = 5 * time.Second
	compensationTimeout      = 10 * time.Second
	compensationAttempts     = 3
	persistAttempts          = 2
)

type CheckoutService struct {
	ledger    StockLedger
	carts     CartReader
	store     CheckoutStore
	builder   *OrderBuilder
	publisher EventPublisher
	ids       IDGenerator
	clock     clock.Clock
	log       *zap.Logger
	metrics   CheckoutMetrics

	lowStockThreshold int
	attemptTimeout    time.Duration
}

type CheckoutServiceOption func(*CheckoutService)

// WithLowStockThreshold overrides the default low-stock threshold of 10.
func WithLowStockThreshold(n int) CheckoutServiceOption {
	return func(s *CheckoutService) {
		if n >= 0 {
			s.lowStockThreshold = n
		}
	}
}

// WithAttemptTimeout bounds a whole checkout attempt.
func WithAttemptTimeout(d time.Duration) CheckoutServiceOption {
	return func(s *CheckoutService) {
		if d > 0 {
			s.attemptTimeout = d
		}
	}
}

func WithCheckoutLogger(log *zap.Logger) CheckoutServiceOption {
	return func(s *CheckoutService) {
		if log != nil {
			s.log = log
		}
	}
}

func WithCheckoutMetrics(m CheckoutMetrics) CheckoutServiceOption {
	return func(s *CheckoutService) {
		if m != nil {
			s.metrics = m
		}
	}
}

func NewCheckoutService(
	ledger StockLedger,
	carts CartReader,
	store CheckoutStore,
	publisher EventPublisher,
	ids IDGenerator,
	clk clock.Clock,
	opts ...CheckoutServiceOption,
) *CheckoutService {
	svc := &CheckoutService{
		ledger:            ledger,
		carts:             carts,
		store:             store,
		builder:           NewOrderBuilder(ids),
		publisher:         publisher,
		ids:               ids,
		clock:             clk,
		log:               zap.NewNop(),
		metrics:           nopMetrics{},
		lowStockThreshold: defaultLowStockThreshold,
		attemptTimeout:    defaultAttemptTimeout,
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.log = svc.log.Named("checkout")
	return svc
}

type CheckoutInput struct {
	CustomerID      int64
	DeliveryAddress string
}

// Checkout converts the customer's cart into a PENDING order. Stock is
// reserved line by line in ascending product order; any failure before the
// order commits increments every reserved line back before returning.
func (s *CheckoutService) Checkout(ctx context.Context, in CheckoutInput) (result domain.Order, err error) {
	if in.CustomerID <= 0 {
		return domain.Order{}, domain.ErrCustomerRequired
	}
	address := strings.TrimSpace(in.DeliveryAddress)
	if address == "" {
		return domain.Order{}, domain.ErrDeliveryAddressMissing
	}

	started := time.Now()
	ctx, span := otel.Tracer("checkout").Start(ctx, "checkout.attempt")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
	defer cancel()

	att := newAttempt(s.ids.NewUUID(), in.CustomerID, s.log)
	span.SetAttributes(
		attribute.String("checkout.attempt_id", att.id),
		attribute.Int64("checkout.customer_id", in.CustomerID),
	)
	defer func() {
		s.metrics.ObserveCheckout(outcome(err), time.Since(started))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome(err))
		}
	}()

	snapshot, err := s.carts.Snapshot(ctx, in.CustomerID)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyCart) {
			return domain.Order{}, err
		}
		return domain.Order{}, unavailable("snapshot cart", err)
	}
	if snapshot.Empty() {
		return domain.Order{}, domain.ErrEmptyCart
	}
	att.advance(stateSnapshotTaken)

	lines := sortedLines(snapshot.Lines)
	for _, line := range lines {
		if line.Quantity <= 0 {
			return domain.Order{}, domain.ErrInvalidQuantity
		}
	}

	var held []reservation
	committed := false
	defer func() {
		if committed || len(held) == 0 {
			return
		}
		att.advance(stateCompensating)
		s.compensate(ctx, att, held)
		att.advance(stateFailed)
	}()

	att.advance(stateReserving)
	changes := make([]domain.StockChange, 0, len(lines))
	for _, line := range lines {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Order{}, unavailable("reserve stock", ctxErr)
		}
		// Ledger calls run detached from the attempt deadline so a decrement that
		// reaches storage is always observed and can be compensated.
		opCtx, opCancel := context.WithTimeout(context.WithoutCancel(ctx), s.attemptTimeout)
		change, decErr := s.ledger.TryDecrement(opCtx, att.id, line.ProductID, line.Quantity)
		opCancel()
		if decErr != nil {
			var stockErr *domain.InsufficientStockError
			if errors.As(decErr, &stockErr) || errors.Is(decErr, domain.ErrProductNotFound) {
				att.log.Info("reservation rejected",
					zap.Int64("product_id", line.ProductID),
					zap.Int("quantity", line.Quantity),
					zap.Error(decErr),
				)
				return domain.Order{}, decErr
			}
			// The decrement may have applied even though its result was lost.
			held = append(held, reservation{productID: line.ProductID, quantity: line.Quantity, attemptID: att.id, uncertain: true})
			return domain.Order{}, unavailable("reserve stock", decErr)
		}
		held = append(held, reservation{productID: line.ProductID, quantity: line.Quantity, attemptID: att.id})
		changes = append(changes, change)
	}
	att.advance(stateReserved)

	built := s.builder.Build(BuildInput{
		AttemptID:       att.id,
		CustomerID:      in.CustomerID,
		DeliveryAddress: address,
		Snapshot:        domain.CartSnapshot{Lines: lines},
		Now:             s.clock.Now(),
	})

	order, err := s.persist(ctx, att, built, snapshot.CartID)
	if err != nil {
		return domain.Order{}, err
	}
	committed = true
	att.advance(stateOrderPersisted)
	att.advance(stateCartCleared)
	span.SetAttributes(attribute.Int64("checkout.order_id", order.ID))

	s.emit(ctx, att, order, lines, changes)
	att.advance(stateEventsEmitted)
	return order, nil
}

// persist writes the order, clears the cart and settles the attempt's
// reservations in one transaction. A transient
// fault is retried once with the same attempt id; the unique attempt id makes
// a retry after an unseen commit resolve to the stored order.
func (s *CheckoutService) persist(ctx context.Context, att *attempt, order domain.Order, cartID int64) (domain.Order, error) {
	productIDs := make([]int64, 0, len(order.Items))
	for _, item := range order.Items {
		productIDs = append(productIDs, item.ProductID)
	}

	var err error
	for try := 1; try <= persistAttempts; try++ {
		err = s.store.WithTx(ctx, func(txCtx context.Context) error {
			if err := s.store.CreateOrder(txCtx, order); err != nil {
				return err
			}
			if err := s.store.ClearCart(txCtx, cartID, productIDs); err != nil {
				return err
			}
			return s.ledger.Settle(txCtx, att.id, len(order.Items))
		})
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, domain.ErrTransient) && !errors.Is(err, domain.ErrAttemptConflict) {
			break
		}
		if existing := s.lookupAttempt(ctx, att); existing != nil {
			return *existing, nil
		}
		if try < persistAttempts {
			att.log.Warn("retrying order persistence", zap.Int("try", try), zap.Error(err))
		}
	}

	// The transaction may have committed even though the caller saw an error.
	if existing := s.lookupAttempt(ctx, att); existing != nil {
		return *existing, nil
	}
	return domain.Order{}, unavailable("persist order", err)
}

func (s *CheckoutService) lookupAttempt(ctx context.Context, att *attempt) *domain.Order {
	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	existing, err := s.store.GetOrderByAttemptID(lookupCtx, att.id)
	if err != nil {
		att.log.Warn("lookup order by attempt failed", zap.Error(err))
		return nil
	}
	return existing
}

// compensate releases every journaled reservation of the attempt, including
// lines whose decrement outcome is unknown. It runs on a context detached
// from the attempt so a timed-out attempt still releases. Rows it cannot
// release are left to the reservation sweeper.
func (s *CheckoutService) compensate(ctx context.Context, att *attempt, held []reservation) {
	compCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	for i := len(held) - 1; i >= 0; i-- {
		r := held[i]
		var (
			released bool
			err      error
		)
		for try := 1; try <= compensationAttempts; try++ {
			if _, released, err = s.ledger.Release(compCtx, r.attemptID, r.productID); err == nil {
				break
			}
		}
		switch {
		case err != nil:
			s.metrics.ObserveCompensation("failed")
			att.log.Error("compensation failed, reservation left for the sweeper",
				zap.Int64("product_id", r.productID),
				zap.Int("quantity", r.quantity),
				zap.Error(err),
			)
		case !released:
			s.metrics.ObserveCompensation("noop")
			att.log.Info("nothing to release",
				zap.Int64("product_id", r.productID),
				zap.Bool("uncertain", r.uncertain),
			)
		default:
			s.metrics.ObserveCompensation("ok")
		}
	}
}

func (s *CheckoutService) emit(ctx context.Context, att *attempt, order domain.Order, lines []domain.CartLine, changes []domain.StockChange) {
	events, err := s.buildEvents(order, lines, changes)
	if err != nil {
		s.metrics.ObserveDispatchFailure("checkout")
		att.log.Error("build checkout events", zap.Int64("order_id", order.ID), zap.Error(err))
		return
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), events); err != nil {
		s.metrics.ObserveDispatchFailure("checkout")
		att.log.Warn("publish checkout events", zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

func (s *CheckoutService) buildEvents(order domain.Order, lines []domain.CartLine, changes []domain.StockChange) ([]domain.Event, error) {
	now := s.clock.Now()
	events := make([]domain.Event, 0, 1+2*len(changes))

	created, err := domain.NewEvent(s.ids.NewUUID(), domain.EventOrderCreated, order.ID, domain.OrderCreatedPayload{
		OrderID:         order.ID,
		CustomerID:      order.CustomerID,
		TotalAmount:     order.TotalAmount,
		DeliveryAddress: order.DeliveryAddress,
		OrderDate:       order.OrderDate,
		ItemCount:       len(order.Items),
	}, now)
	if err != nil {
		return nil, err
	}
	events = append(events, created)

	for i, change := range changes {
		name := lines[i].ProductName
		updated, err := domain.NewEvent(s.ids.NewUUID(), domain.EventStockUpdated, order.ID, domain.StockUpdatedPayload{
			ProductID:   change.ProductID,
			ProductName: name,
			Delta:       change.Delta(),
			OldStock:    change.Previous,
			NewStock:    change.Current,
			OrderID:     order.ID,
		}, now)
		if err != nil {
			return nil, err
		}
		events = append(events, updated)

		if !change.CrossedBelow(s.lowStockThreshold) {
			continue
		}
		alert, err := domain.NewEvent(s.ids.NewUUID(), domain.EventLowStockAlert, order.ID, domain.LowStockAlertPayload{
			ProductID:    change.ProductID,
			ProductName:  name,
			CurrentStock: change.Current,
			Threshold:    s.lowStockThreshold,
		}, now)
		if err != nil {
			return nil, err
		}
		events = append(events, alert)
	}
	return events, nil
}

type reservation struct {
	productID int64
	quantity  int
	attemptID string
	uncertain bool
}

// sortedLines orders lines by product id so concurrent multi-line checkouts
// touch rows in the same order.
func sortedLines(lines []domain.CartLine) []domain.CartLine {
	out := make([]domain.CartLine, len(lines))
	copy(out, lines)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ProductID < out[j].ProductID
	})
	return out
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrCheckoutUnavailable, op, err)
}

func outcome(err error) string {
	var stockErr *domain.InsufficientStockError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrEmptyCart):
		return "empty_cart"
	case errors.As(err, &stockErr):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrCheckoutUnavailable):
		return "unavailable"
	default:
		return "rejected"
	}
}

type nopMetrics struct{}

func (nopMetrics) ObserveCheckout(string, time.Duration) {}
func (nopMetrics) ObserveCompensation(string)            {}
func (nopMetrics) ObserveDispatchFailure(string)         {}
