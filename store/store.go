package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"order-service/inventory"
	"order-service/models"
)

// SQLStore is the MySQL-backed order and catalog store.
type SQLStore struct {
	DB *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{DB: db}
}

func (s *SQLStore) ProductsByIDs(ctx context.Context, ids []int64) (map[int64]models.Product, error) {
	if len(ids) == 0 {
		return map[int64]models.Product{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, name, price, image, weight, stock, is_available
		 FROM products WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[int64]models.Product, len(ids))
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Image, &p.Weight, &p.Stock, &p.IsAvailable); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// Insert persists the order and its item snapshots in one transaction.
func (s *SQLStore) Insert(ctx context.Context, order *models.Order) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO orders (user_id, status, payment_status, payment_method,
		                     shipping_address, shipping_fee, total, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.UserID, order.Status, order.PaymentStatus, order.PaymentMethod,
		string(order.ShippingAddress), order.ShippingFee, order.Total,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return err
	}
	orderID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, product_id, product_name, product_image, quantity, price, weight)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			orderID, item.ProductID, item.ProductName, item.ProductImage,
			item.Quantity, item.Price, item.Weight,
		); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	order.ID = orderID
	return nil
}

func (s *SQLStore) GetByID(ctx context.Context, orderID, userID int64) (*models.Order, error) {
	var (
		order        models.Order
		rawAddress   string
		trackingCode sql.NullString
	)
	query := `SELECT id, user_id, status, payment_status, payment_method,
	                 shipping_address, shipping_fee, total, tracking_code, created_at, updated_at
	          FROM orders WHERE id = ?`
	args := []any{orderID}
	if userID > 0 {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	err := s.DB.QueryRowContext(ctx, query, args...).Scan(
		&order.ID, &order.UserID, &order.Status, &order.PaymentStatus, &order.PaymentMethod,
		&rawAddress, &order.ShippingFee, &order.Total, &trackingCode, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	order.ShippingAddress = []byte(rawAddress)
	order.TrackingCode = trackingCode.String

	rows, err := s.DB.QueryContext(ctx,
		`SELECT product_id, product_name, product_image, quantity, price, weight
		 FROM order_items WHERE order_id = ? ORDER BY id ASC`, order.ID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.ProductImage,
			&item.Quantity, &item.Price, &item.Weight); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}
	return &order, rows.Err()
}

func (s *SQLStore) ListByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT o.id, o.user_id, o.status, o.payment_status, o.payment_method,
		       o.shipping_fee, o.total, o.created_at,
		       oi.product_id, oi.product_name, oi.product_image, oi.quantity, oi.price, oi.weight
		FROM orders o
		JOIN order_items oi ON o.id = oi.order_id
		WHERE o.user_id = ?
		ORDER BY o.created_at DESC, o.id DESC, oi.id ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var orders []models.Order
	index := make(map[int64]int)
	for rows.Next() {
		var (
			o    models.Order
			item models.OrderItem
		)
		if err := rows.Scan(&o.ID, &o.UserID, &o.Status, &o.PaymentStatus, &o.PaymentMethod,
			&o.ShippingFee, &o.Total, &o.CreatedAt,
			&item.ProductID, &item.ProductName, &item.ProductImage, &item.Quantity, &item.Price, &item.Weight,
		); err != nil {
			return nil, err
		}
		pos, seen := index[o.ID]
		if !seen {
			pos = len(orders)
			index[o.ID] = pos
			orders = append(orders, o)
		}
		orders[pos].Items = append(orders[pos].Items, item)
	}
	return orders, rows.Err()
}

func (s *SQLStore) GetStatus(ctx context.Context, orderID, userID int64) (models.OrderStatus, error) {
	query := `SELECT status FROM orders WHERE id = ?`
	args := []any{orderID}
	if userID > 0 {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	var status models.OrderStatus
	err := s.DB.QueryRowContext(ctx, query, args...).Scan(&status)
	return status, err
}

func (s *SQLStore) FindIDByTrackingCode(ctx context.Context, trackingCode string) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx, `SELECT id FROM orders WHERE tracking_code = ?`, trackingCode).Scan(&id)
	return id, err
}

// TransitionStatus is the guarded write behind every status change. The
// affected-row count decides which of any concurrent callers won the edge.
func (s *SQLStore) TransitionStatus(ctx context.Context, orderID int64, to models.OrderStatus, from []models.OrderStatus, trackingCode string, userID int64) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}

	var sb strings.Builder
	sb.WriteString(`UPDATE orders SET status = ?, updated_at = NOW()`)
	args := []any{to}
	if trackingCode != "" {
		sb.WriteString(`, tracking_code = ?`)
		args = append(args, trackingCode)
	}
	sb.WriteString(` WHERE id = ? AND status IN (`)
	args = append(args, orderID)
	for i, f := range from {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("?")
		args = append(args, f)
	}
	sb.WriteString(`)`)
	if userID > 0 {
		sb.WriteString(` AND user_id = ?`)
		args = append(args, userID)
	}

	res, err := s.DB.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 1 {
		return false, fmt.Errorf("transition affected %d rows for order %d", affected, orderID)
	}
	return affected == 1, nil
}

func (s *SQLStore) ItemQuantities(ctx context.Context, orderID int64) ([]inventory.ItemQuantity, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT product_id, quantity FROM order_items WHERE order_id = ?`, orderID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []inventory.ItemQuantity
	for rows.Next() {
		var it inventory.ItemQuantity
		if err := rows.Scan(&it.ProductID, &it.Quantity); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
