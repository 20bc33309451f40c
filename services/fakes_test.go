package services

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"order-service/inventory"
	"order-service/models"
	"order-service/shipping"
)

// memLedger honors the ledger contract (all-or-nothing, linearizable per
// call) against an in-memory stock table.
type memLedger struct {
	mu          sync.Mutex
	stock       map[int64]int
	unavailable map[int64]bool
	releases    [][]inventory.ItemQuantity
}

func newMemLedger(stock map[int64]int) *memLedger {
	return &memLedger{stock: stock, unavailable: map[int64]bool{}}
}

func (l *memLedger) Reserve(ctx context.Context, items []inventory.ItemQuantity) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, it := range items {
		available, ok := l.stock[it.ProductID]
		if !ok {
			return &inventory.NotFoundError{ProductID: it.ProductID}
		}
		if l.unavailable[it.ProductID] {
			return &inventory.UnavailableError{ProductID: it.ProductID}
		}
		if available < it.Quantity {
			return &inventory.InsufficientStockError{ProductID: it.ProductID, Requested: it.Quantity, Available: available}
		}
	}
	for _, it := range items {
		l.stock[it.ProductID] -= it.Quantity
	}
	return nil
}

func (l *memLedger) Release(ctx context.Context, items []inventory.ItemQuantity) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, it := range items {
		l.stock[it.ProductID] += it.Quantity
	}
	l.releases = append(l.releases, items)
	return nil
}

func (l *memLedger) stockOf(id int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stock[id]
}

func (l *memLedger) releaseCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.releases)
}

type fakeCatalog struct {
	mu       sync.Mutex
	products map[int64]models.Product
}

func (c *fakeCatalog) ProductsByIDs(ctx context.Context, ids []int64) (map[int64]models.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int64]models.Product)
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (c *fakeCatalog) setPrice(id int64, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.products[id]
	p.Price = price
	c.products[id] = p
}

type fakeEstimator struct {
	mu    sync.Mutex
	quote shipping.FeeQuote
	err   error
	calls int
	last  shipping.FeeRequest
}

func (e *fakeEstimator) EstimateFee(ctx context.Context, req shipping.FeeRequest) (shipping.FeeQuote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.last = req
	if e.err != nil {
		return shipping.FeeQuote{}, e.err
	}
	return e.quote, nil
}

// fakeStore mimics the SQL store's conditional-update semantics, including
// the affected-row count that decides transition winners.
type fakeStore struct {
	mu        sync.Mutex
	nextID    int64
	orders    map[int64]*models.Order
	insertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: map[int64]*models.Order{}}
}

func (s *fakeStore) Insert(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.nextID++
	order.ID = s.nextID
	clone := *order
	clone.Items = append([]models.OrderItem(nil), order.Items...)
	s.orders[order.ID] = &clone
	return nil
}

func (s *fakeStore) GetByID(ctx context.Context, orderID, userID int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || (userID > 0 && o.UserID != userID) {
		return nil, sql.ErrNoRows
	}
	clone := *o
	return &clone, nil
}

func (s *fakeStore) ListByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *fakeStore) GetStatus(ctx context.Context, orderID, userID int64) (models.OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || (userID > 0 && o.UserID != userID) {
		return "", sql.ErrNoRows
	}
	return o.Status, nil
}

func (s *fakeStore) FindIDByTrackingCode(ctx context.Context, trackingCode string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, o := range s.orders {
		if o.TrackingCode == trackingCode {
			return id, nil
		}
	}
	return 0, sql.ErrNoRows
}

func (s *fakeStore) TransitionStatus(ctx context.Context, orderID int64, to models.OrderStatus, from []models.OrderStatus, trackingCode string, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return false, nil
	}
	if userID > 0 && o.UserID != userID {
		return false, nil
	}
	legal := false
	for _, f := range from {
		if o.Status == f {
			legal = true
			break
		}
	}
	if !legal {
		return false, nil
	}
	o.Status = to
	if trackingCode != "" {
		o.TrackingCode = trackingCode
	}
	return true, nil
}

func (s *fakeStore) ItemQuantities(ctx context.Context, orderID int64) ([]inventory.ItemQuantity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	var out []inventory.ItemQuantity
	for _, it := range o.Items {
		out = append(out, inventory.ItemQuantity{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out, nil
}

func (s *fakeStore) statusOf(orderID int64) models.OrderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[orderID].Status
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

type fakeEvents struct {
	mu      sync.Mutex
	events  []models.OrderEvent
	delayed []models.OrderEvent
}

func (e *fakeEvents) PublishOrderEvent(ev models.OrderEvent, priority uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *fakeEvents) PublishDelayedEvent(ev models.OrderEvent, delay time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delayed = append(e.delayed, ev)
	return nil
}
