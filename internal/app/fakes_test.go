package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Agbobli5373/grocery-shop/internal/domain"
)

type journalKey struct {
	attemptID string
	productID int64
}

type journalRow struct {
	quantity   int
	reservedAt time.Time
}

type fakeLedger struct {
	mu        sync.Mutex
	stock     map[int64]int
	journal   map[journalKey]journalRow
	mutations int
	now       func() time.Time
	// delay is applied to TryDecrement for the given product.
	delay map[int64]time.Duration
	// failOn makes TryDecrement return a storage error for the product.
	failOn map[int64]error
	// applyThenFail applies the decrement and then reports the error, as when
	// a commit succeeds but the reply is lost.
	applyThenFail map[int64]error
	// releaseErr makes Release fail for the product.
	releaseErr map[int64]error
}

func newFakeLedger(stock map[int64]int) *fakeLedger {
	return &fakeLedger{
		stock:         stock,
		journal:       map[journalKey]journalRow{},
		now:           time.Now,
		delay:         map[int64]time.Duration{},
		failOn:        map[int64]error{},
		applyThenFail: map[int64]error{},
		releaseErr:    map[int64]error{},
	}
}

func (l *fakeLedger) TryDecrement(_ context.Context, attemptID string, productID int64, qty int) (domain.StockChange, error) {
	l.mu.Lock()
	d := l.delay[productID]
	l.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.failOn[productID]; err != nil {
		return domain.StockChange{}, err
	}
	current, ok := l.stock[productID]
	if !ok {
		return domain.StockChange{}, domain.ErrProductNotFound
	}
	if current < qty {
		return domain.StockChange{}, &domain.InsufficientStockError{ProductID: productID, Requested: qty, Available: current}
	}
	l.stock[productID] = current - qty
	l.journal[journalKey{attemptID, productID}] = journalRow{quantity: qty, reservedAt: l.now()}
	l.mutations++
	if err := l.applyThenFail[productID]; err != nil {
		return domain.StockChange{}, err
	}
	return domain.StockChange{ProductID: productID, Previous: current, Current: current - qty}, nil
}

func (l *fakeLedger) Release(_ context.Context, attemptID string, productID int64) (domain.StockChange, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.releaseErr[productID]; err != nil {
		return domain.StockChange{}, false, err
	}
	key := journalKey{attemptID, productID}
	row, ok := l.journal[key]
	if !ok {
		return domain.StockChange{}, false, nil
	}
	delete(l.journal, key)
	current := l.stock[productID]
	l.stock[productID] = current + row.quantity
	l.mutations++
	return domain.StockChange{ProductID: productID, Previous: current, Current: current + row.quantity}, true, nil
}

func (l *fakeLedger) Settle(_ context.Context, attemptID string, lines int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var keys []journalKey
	for key := range l.journal {
		if key.attemptID == attemptID {
			keys = append(keys, key)
		}
	}
	if len(keys) != lines {
		return domain.ErrReservationLost
	}
	for _, key := range keys {
		delete(l.journal, key)
	}
	return nil
}

func (l *fakeLedger) ReleaseStale(_ context.Context, cutoff time.Time) ([]domain.StockChange, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	released := map[int64]int{}
	var order []int64
	for key, row := range l.journal {
		if !row.reservedAt.Before(cutoff) {
			continue
		}
		if _, seen := released[key.productID]; !seen {
			order = append(order, key.productID)
		}
		released[key.productID] += row.quantity
		delete(l.journal, key)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	changes := make([]domain.StockChange, 0, len(order))
	for _, id := range order {
		current := l.stock[id]
		l.stock[id] = current + released[id]
		changes = append(changes, domain.StockChange{ProductID: id, Previous: current, Current: current + released[id]})
	}
	return changes, nil
}

func (l *fakeLedger) journaled() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.journal)
}

func (l *fakeLedger) Increment(_ context.Context, productID int64, qty int) (domain.StockChange, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	current, ok := l.stock[productID]
	if !ok {
		return domain.StockChange{}, domain.ErrProductNotFound
	}
	l.stock[productID] = current + qty
	l.mutations++
	return domain.StockChange{ProductID: productID, Previous: current, Current: current + qty}, nil
}

func (l *fakeLedger) Read(_ context.Context, productID int64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	current, ok := l.stock[productID]
	if !ok {
		return 0, domain.ErrProductNotFound
	}
	return current, nil
}

func (l *fakeLedger) quantity(productID int64) int {
	q, _ := l.Read(context.Background(), productID)
	return q
}

type fakeCartReader struct {
	mu    sync.Mutex
	carts map[int64]domain.CartSnapshot
	err   error
}

func (r *fakeCartReader) Snapshot(_ context.Context, customerID int64) (domain.CartSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return domain.CartSnapshot{}, r.err
	}
	cart, ok := r.carts[customerID]
	if !ok || cart.Empty() {
		return domain.CartSnapshot{}, domain.ErrEmptyCart
	}
	return cart, nil
}

type fakeCheckoutStore struct {
	mu      sync.Mutex
	orders  map[string]domain.Order
	cleared map[int64][]int64

	// createErrs are returned by successive CreateOrder calls.
	createErrs []error
	// commitThenFail stores the order but reports a transient error.
	commitThenFail bool
	panicOnCreate  bool
	creates        int
}

func newFakeCheckoutStore() *fakeCheckoutStore {
	return &fakeCheckoutStore{
		orders:  make(map[string]domain.Order),
		cleared: make(map[int64][]int64),
	}
}

func (s *fakeCheckoutStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *fakeCheckoutStore) CreateOrder(_ context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.panicOnCreate {
		panic("storage driver bug")
	}
	if len(s.createErrs) > 0 {
		err := s.createErrs[0]
		s.createErrs = s.createErrs[1:]
		if err != nil {
			return err
		}
	}
	if _, exists := s.orders[order.AttemptID]; exists {
		return domain.ErrAttemptConflict
	}
	s.orders[order.AttemptID] = order
	if s.commitThenFail {
		s.commitThenFail = false
		return fmt.Errorf("commit: connection reset: %w", domain.ErrTransient)
	}
	return nil
}

func (s *fakeCheckoutStore) GetOrderByAttemptID(_ context.Context, attemptID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[attemptID]
	if !ok {
		return nil, nil
	}
	found := order
	return &found, nil
}

func (s *fakeCheckoutStore) ClearCart(_ context.Context, cartID int64, productIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared[cartID] = append(s.cleared[cartID], productIDs...)
	return nil
}

func (s *fakeCheckoutStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, events []domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return p.err
}

func (p *recordingPublisher) ofType(t domain.EventType) []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Event
	for _, ev := range p.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type seqIDs struct {
	next atomic.Int64
}

func (g *seqIDs) NextID() int64 {
	return g.next.Add(1)
}

func (g *seqIDs) NewUUID() string {
	return fmt.Sprintf("uuid-%d", g.next.Add(1))
}

var errDiskFull = errors.New("could not extend file: disk full")
