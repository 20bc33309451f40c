package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"order-service/inventory"
	"order-service/models"
	"order-service/shipping"
)

const (
	ledgerTimeout = 3 * time.Second

	priorityDefault uint8 = 5
	priorityHigh    uint8 = 9
	priorityCancel  uint8 = 8

	highValueThreshold = 1000
)

type CatalogStore interface {
	ProductsByIDs(ctx context.Context, ids []int64) (map[int64]models.Product, error)
}

type FeeEstimator interface {
	EstimateFee(ctx context.Context, req shipping.FeeRequest) (shipping.FeeQuote, error)
}

type OrderStore interface {
	Insert(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, orderID, userID int64) (*models.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Order, error)
	// GetStatus reads the current status; userID > 0 scopes the lookup to
	// the owning user so one customer cannot observe another's order.
	GetStatus(ctx context.Context, orderID, userID int64) (models.OrderStatus, error)
	FindIDByTrackingCode(ctx context.Context, trackingCode string) (int64, error)
	// TransitionStatus performs the conditional update
	// "SET status=to WHERE id=? AND status IN (from...)" and reports
	// whether this caller won the edge. userID > 0 additionally scopes
	// the update to the owning user.
	TransitionStatus(ctx context.Context, orderID int64, to models.OrderStatus, from []models.OrderStatus, trackingCode string, userID int64) (bool, error)
	ItemQuantities(ctx context.Context, orderID int64) ([]inventory.ItemQuantity, error)
}

type EventPublisher interface {
	PublishOrderEvent(ev models.OrderEvent, priority uint8) error
	PublishDelayedEvent(ev models.OrderEvent, delay time.Duration) error
}

type OrderService struct {
	Catalog         CatalogStore
	Ledger          inventory.Ledger
	Estimator       FeeEstimator
	Store           OrderStore
	Events          EventPublisher
	PaymentDeadline time.Duration
}

// CreateOrder runs the order-creation saga: validate, snapshot the catalog,
// reserve stock, quote the shipping fee, persist. Every step after the
// reservation pushes a compensating action; any failure unwinds them in
// reverse so no stock stays reserved without a persisted order.
func (s *OrderService) CreateOrder(ctx context.Context, userID int64, req *models.CreateOrderRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: order must contain at least one item", ErrValidation)
	}

	addr, err := models.ParseShippingAddress(req.ShippingAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if req.ShippingFee == nil && (addr.DistrictID == 0 || addr.WardCode == "") {
		return nil, fmt.Errorf("%w: shipping address requires district_id and ward_code", ErrValidation)
	}

	items := cartToItems(req.Items)

	snapshots, err := s.snapshotItems(ctx, items)
	if err != nil {
		return nil, err
	}

	ledgerCtx, cancel := context.WithTimeout(ctx, ledgerTimeout)
	defer cancel()
	if err := s.Ledger.Reserve(ledgerCtx, items); err != nil {
		return nil, err
	}

	var compensations []func()
	defer func() {
		if err != nil {
			for i := len(compensations) - 1; i >= 0; i-- {
				compensations[i]()
			}
		}
	}()
	compensations = append(compensations, func() { s.releaseReservation(items) })

	fee, err := s.resolveFee(ctx, req, addr, snapshots)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		UserID:          userID,
		Status:          models.StatusPending,
		PaymentStatus:   models.DerivePaymentStatus(req.PaymentMethod),
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
		ShippingFee:     fee,
		Items:           snapshots,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	for _, it := range snapshots {
		order.Total += it.Subtotal()
	}
	order.Total += fee

	if err = s.Store.Insert(ctx, order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	s.publishCreated(order)
	return order, nil
}

// snapshotItems resolves the cart against the catalog and captures the
// per-item price/name/image/weight the order will keep forever.
func (s *OrderService) snapshotItems(ctx context.Context, items []inventory.ItemQuantity) ([]models.OrderItem, error) {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.Catalog.ProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.OrderItem, 0, len(items))
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			return nil, &inventory.NotFoundError{ProductID: it.ProductID}
		}
		if !p.IsAvailable {
			return nil, &inventory.UnavailableError{ProductID: it.ProductID}
		}
		out = append(out, models.OrderItem{
			ProductID:    p.ID,
			ProductName:  p.Name,
			ProductImage: p.Image,
			Quantity:     it.Quantity,
			Price:        p.Price,
			Weight:       p.Weight,
		})
	}
	return out, nil
}

// resolveFee uses the client-supplied quote when present, otherwise asks
// the carrier. Estimator failure surfaces as ErrShippingUnavailable and the
// saga unwinds the reservation.
func (s *OrderService) resolveFee(ctx context.Context, req *models.CreateOrderRequest, addr *models.ShippingAddress, items []models.OrderItem) (float64, error) {
	if req.ShippingFee != nil {
		return *req.ShippingFee, nil
	}

	parcel := make([]shipping.ParcelItem, 0, len(items))
	for _, it := range items {
		parcel = append(parcel, shipping.ParcelItem{Name: it.ProductName, Quantity: it.Quantity, Weight: it.Weight})
	}
	quote, err := s.Estimator.EstimateFee(ctx, shipping.FeeRequest{
		DistrictID: addr.DistrictID,
		WardCode:   addr.WardCode,
		Items:      parcel,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrShippingUnavailable, err)
	}
	return quote.Total, nil
}

// releaseReservation compensates a reservation on a detached context; the
// request context may already be the one that failed.
func (s *OrderService) releaseReservation(items []inventory.ItemQuantity) {
	ctx, cancel := context.WithTimeout(context.Background(), ledgerTimeout)
	defer cancel()
	if err := s.Ledger.Release(ctx, items); err != nil {
		log.Printf("Failed to release reservation: %v", err)
	}
}

func (s *OrderService) publishCreated(order *models.Order) {
	if s.Events == nil {
		return
	}
	priority := priorityDefault
	if order.Total > highValueThreshold {
		priority = priorityHigh
	}
	ev := newEvent(models.EventOrderCreated, order.ID, order.UserID, order.Status, order.Total)
	if err := s.Events.PublishOrderEvent(ev, priority); err != nil {
		log.Printf("Failed to publish order created event: %v", err)
	}

	deadline := s.PaymentDeadline
	if deadline <= 0 {
		deadline = 15 * time.Minute
	}
	check := newEvent(models.EventPaymentCheck, order.ID, order.UserID, order.Status, order.Total)
	if err := s.Events.PublishDelayedEvent(check, deadline); err != nil {
		log.Printf("Failed to publish delayed payment check event: %v", err)
	}
}

// cartToItems collapses duplicate cart lines onto their first occurrence,
// so stored order items keep the cart's line order. The ledger re-sorts its
// own copy for lock ordering.
func cartToItems(items []models.CartItem) []inventory.ItemQuantity {
	index := make(map[int64]int, len(items))
	out := make([]inventory.ItemQuantity, 0, len(items))
	for _, it := range items {
		if pos, seen := index[it.ProductID]; seen {
			out[pos].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(out)
		out = append(out, inventory.ItemQuantity{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}
