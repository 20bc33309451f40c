package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"order-service/inventory"
	"order-service/models"
	"order-service/shipping"
)

// LifecycleService owns every status change after an order exists. Admin
// commands and carrier updates both resolve to a conditional UPDATE over
// the legal-predecessor set, so exactly one caller wins any edge no matter
// how requests interleave.
type LifecycleService struct {
	Store  OrderStore
	Ledger inventory.Ledger
	Events EventPublisher
}

// AdminTransition applies an admin-requested status change. Illegal
// requests are rejected with the order's current status in the error.
func (s *LifecycleService) AdminTransition(ctx context.Context, orderID int64, target models.OrderStatus, trackingCode string) error {
	if !models.ValidStatus(target) || target == models.StatusPending {
		return fmt.Errorf("%w: unknown target status %q", ErrValidation, target)
	}
	won, err := s.transition(ctx, orderID, target, trackingCode, 0)
	if err != nil {
		return err
	}
	if !won {
		return s.rejectLost(ctx, orderID, 0, target)
	}
	return nil
}

// Cancel is the user-facing cancel; the conditional update is additionally
// scoped to the owning user so one customer cannot cancel another's order.
func (s *LifecycleService) Cancel(ctx context.Context, orderID, userID int64) error {
	won, err := s.transition(ctx, orderID, models.StatusCancelled, "", userID)
	if err != nil {
		return err
	}
	if !won {
		return s.rejectLost(ctx, orderID, userID, models.StatusCancelled)
	}
	return nil
}

// ApplyCarrierStatus feeds a carrier tracking update through the same
// transition function the admin path uses. Unknown statuses, duplicates and
// out-of-order deliveries are absorbed: carrier webhooks get retried and
// reordered, so a lost edge is not an error here.
func (s *LifecycleService) ApplyCarrierStatus(ctx context.Context, trackingCode, carrierStatus string) error {
	target, ok := shipping.MapCarrierStatus(carrierStatus)
	if !ok {
		log.Printf("Ignoring unknown carrier status %q for %s", carrierStatus, trackingCode)
		return nil
	}
	if target == models.StatusPending {
		// exception states keep the order where it is
		return nil
	}

	orderID, err := s.Store.FindIDByTrackingCode(ctx, trackingCode)
	if errors.Is(err, sql.ErrNoRows) {
		log.Printf("Ignoring carrier update for unknown tracking code %s", trackingCode)
		return nil
	}
	if err != nil {
		return err
	}

	_, err = s.transition(ctx, orderID, target, "", 0)
	return err
}

// transition attempts the edge and, when the won edge is a pre-shipment
// cancel, releases the order's stock exactly once. Predecessors of
// cancelled are pending/confirmed only, so a cancel won here is always a
// releasing edge; cancels arriving after shipment lose the conditional
// update and never release.
func (s *LifecycleService) transition(ctx context.Context, orderID int64, target models.OrderStatus, trackingCode string, userID int64) (bool, error) {
	from := models.Predecessors(target)

	won, err := s.Store.TransitionStatus(ctx, orderID, target, from, trackingCode, userID)
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}

	// the conditional update does not report which predecessor the order
	// left, so the table must agree across all of them; every predecessor
	// of cancelled is pre-shipment
	releases := len(from) > 0
	for _, f := range from {
		releases = releases && models.ReleasesStock(f, target)
	}
	if releases {
		if err := s.releaseOrderStock(ctx, orderID); err != nil {
			// status already flipped; stock needs manual correction
			log.Printf("Failed to release stock for cancelled order %d: %v", orderID, err)
			return true, err
		}
	}

	s.publishStatusChanged(orderID, target)
	return true, nil
}

func (s *LifecycleService) releaseOrderStock(ctx context.Context, orderID int64) error {
	items, err := s.Store.ItemQuantities(ctx, orderID)
	if err != nil {
		return err
	}
	ledgerCtx, cancel := context.WithTimeout(ctx, ledgerTimeout)
	defer cancel()
	return s.Ledger.Release(ledgerCtx, items)
}

// rejectLost distinguishes "no such order" from "order exists but the edge
// is illegal" after a lost conditional update. The lookup carries the same
// user scope as the update; another user's order reads as not found.
func (s *LifecycleService) rejectLost(ctx context.Context, orderID, userID int64, target models.OrderStatus) error {
	current, err := s.Store.GetStatus(ctx, orderID, userID)
	if err != nil {
		return ErrOrderNotFound
	}
	return &IllegalTransitionError{From: current, To: target}
}

func (s *LifecycleService) publishStatusChanged(orderID int64, status models.OrderStatus) {
	if s.Events == nil {
		return
	}
	priority := priorityDefault
	if status == models.StatusCancelled {
		priority = priorityCancel
	}
	ev := newEvent(models.EventOrderStatusChanged, orderID, 0, status, 0)
	if err := s.Events.PublishOrderEvent(ev, priority); err != nil {
		log.Printf("Failed to publish status change event: %v", err)
	}
}
