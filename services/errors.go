package services

import (
	"errors"
	"fmt"

	"order-service/models"
)

var (
	// ErrValidation wraps malformed-request failures caught before any
	// side effect (empty cart, bad address shape, missing destination).
	ErrValidation = errors.New("validation failed")

	// ErrShippingUnavailable means the carrier could not quote a fee; any
	// reservation taken for the order has already been released by the
	// time callers see it.
	ErrShippingUnavailable = errors.New("shipping fee unavailable")

	ErrOrderNotFound = errors.New("order not found")
)

type IllegalTransitionError struct {
	From models.OrderStatus
	To   models.OrderStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal status transition %s -> %s", e.From, e.To)
}
