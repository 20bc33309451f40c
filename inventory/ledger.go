package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
)

type ItemQuantity struct {
	ProductID int64
	Quantity  int
}

type NotFoundError struct {
	ProductID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

type UnavailableError struct {
	ProductID int64
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("product %d is not available", e.ProductID)
}

type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Ledger is the only component allowed to change product stock. Reserve and
// Release are quantity-oriented; order identity and release-once guarding
// live in the lifecycle service.
type Ledger interface {
	Reserve(ctx context.Context, items []ItemQuantity) error
	Release(ctx context.Context, items []ItemQuantity) error
}

type SQLLedger struct {
	DB *sql.DB
}

func NewSQLLedger(db *sql.DB) *SQLLedger {
	return &SQLLedger{DB: db}
}

// Reserve decrements stock for every item in a single transaction, or for
// none of them. Rows are locked in product-id order so two overlapping
// reservations never deadlock; the loser of a lock race re-reads the
// already-decremented stock and fails cleanly if too little is left.
func (l *SQLLedger) Reserve(ctx context.Context, items []ItemQuantity) error {
	merged := MergeItems(items)

	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, it := range merged {
		var stock int
		var available bool
		err := tx.QueryRowContext(ctx,
			`SELECT stock, is_available FROM products WHERE id = ? FOR UPDATE`,
			it.ProductID,
		).Scan(&stock, &available)
		if errors.Is(err, sql.ErrNoRows) {
			return &NotFoundError{ProductID: it.ProductID}
		}
		if err != nil {
			return err
		}
		if !available {
			return &UnavailableError{ProductID: it.ProductID}
		}
		if stock < it.Quantity {
			return &InsufficientStockError{ProductID: it.ProductID, Requested: it.Quantity, Available: stock}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE products SET stock = stock - ? WHERE id = ?`,
			it.Quantity, it.ProductID,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Release returns previously reserved quantities to stock. Callers must
// guarantee it runs at most once per order (conditional status update in
// the lifecycle service).
func (l *SQLLedger) Release(ctx context.Context, items []ItemQuantity) error {
	merged := MergeItems(items)

	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, it := range merged {
		if _, err := tx.ExecContext(ctx,
			`UPDATE products SET stock = stock + ? WHERE id = ?`,
			it.Quantity, it.ProductID,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// MergeItems sums duplicate product lines and sorts by product id, giving
// every transaction the same stable lock order.
func MergeItems(items []ItemQuantity) []ItemQuantity {
	byID := make(map[int64]int, len(items))
	for _, it := range items {
		byID[it.ProductID] += it.Quantity
	}
	merged := make([]ItemQuantity, 0, len(byID))
	for id, qty := range byID {
		merged = append(merged, ItemQuantity{ProductID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged
}
