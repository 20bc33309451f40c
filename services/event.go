package services

import (
	"time"

	"order-service/models"

	"github.com/google/uuid"
)

func newEvent(eventType string, orderID, userID int64, status models.OrderStatus, total float64) models.OrderEvent {
	return models.OrderEvent{
		EventID:  uuid.NewString(),
		Type:     eventType,
		OrderID:  orderID,
		UserID:   userID,
		Status:   status,
		Total:    total,
		Occurred: time.Now().UTC(),
	}
}
