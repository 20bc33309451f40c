package models

import (
	"encoding/json"
	"errors"
	"time"
)

const (
	PaymentMethodCOD   = "cod"
	PaymentMethodVNPay = "vnpay"

	PaymentStatusUnpaid   = "unpaid"
	PaymentStatusAwaiting = "awaiting_payment"
	PaymentStatusPaid     = "paid"
)

type Order struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	Status          OrderStatus     `json:"status"`
	PaymentStatus   string          `json:"payment_status"`
	PaymentMethod   string          `json:"payment_method"`
	ShippingAddress json.RawMessage `json:"shipping_address"`
	ShippingFee     float64         `json:"shipping_fee"`
	Total           float64         `json:"total"`
	TrackingCode    string          `json:"tracking_code,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Items           []OrderItem     `json:"items"`
}

// OrderItem is a snapshot of the product at order-creation time. Catalog
// edits after creation never change it.
type OrderItem struct {
	ProductID    int64   `json:"product_id"`
	ProductName  string  `json:"product_name"`
	ProductImage string  `json:"product_image"`
	Quantity     int     `json:"quantity"`
	Price        float64 `json:"price"`
	Weight       int     `json:"weight"`
}

func (i OrderItem) Subtotal() float64 {
	return i.Price * float64(i.Quantity)
}

type CartItem struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

type CreateOrderRequest struct {
	Items           []CartItem      `json:"items" binding:"required,min=1,dive"`
	ShippingAddress json.RawMessage `json:"shipping_address" binding:"required"`
	PaymentMethod   string          `json:"payment_method" binding:"required,oneof=cod vnpay"`
	ShippingFee     *float64        `json:"shipping_fee" binding:"omitempty,min=0"`
}

// ShippingAddress is the validated view of the opaque address payload.
// The raw JSON is what gets persisted, so extra client fields survive.
type ShippingAddress struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	Phone      string `json:"phone"`
	DistrictID int    `json:"district_id"`
	WardCode   string `json:"ward_code"`
}

var (
	ErrAddressStreet = errors.New("shipping address requires street")
	ErrAddressCity   = errors.New("shipping address requires city")
	ErrAddressPhone  = errors.New("shipping address requires phone")
)

func ParseShippingAddress(raw json.RawMessage) (*ShippingAddress, error) {
	var addr ShippingAddress
	if err := json.Unmarshal(raw, &addr); err != nil {
		return nil, err
	}
	switch {
	case addr.Street == "":
		return nil, ErrAddressStreet
	case addr.City == "":
		return nil, ErrAddressCity
	case addr.Phone == "":
		return nil, ErrAddressPhone
	}
	return &addr, nil
}

// DerivePaymentStatus maps the chosen payment method to the initial payment
// state. COD orders stay unpaid until delivery; gateway methods wait on the
// provider callback (owned by the payment service).
func DerivePaymentStatus(method string) string {
	if method == PaymentMethodCOD {
		return PaymentStatusUnpaid
	}
	return PaymentStatusAwaiting
}

type UpdateStatusRequest struct {
	Status       OrderStatus `json:"status" binding:"required,oneof=confirmed shipped delivered cancelled"`
	TrackingCode string      `json:"tracking_code"`
}

type CarrierWebhookRequest struct {
	OrderCode string `json:"order_code" binding:"required"`
	Status    string `json:"status" binding:"required"`
}

type OrderEvent struct {
	EventID  string      `json:"event_id"`
	Type     string      `json:"type"` // order.created, order.status_changed, payment.check
	OrderID  int64       `json:"order_id"`
	UserID   int64       `json:"user_id"`
	Status   OrderStatus `json:"status"`
	Total    float64     `json:"total"`
	Occurred time.Time   `json:"occurred"`
}

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventPaymentCheck       = "payment.check"
)
