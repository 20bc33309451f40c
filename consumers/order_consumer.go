package consumers

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"order-service/config"
	"order-service/database"
	"order-service/models"
	"order-service/services"

	amqp "github.com/rabbitmq/amqp091-go"
)

func StartOrderConsumer(ch *amqp.Channel, cfg *config.Config, lifecycle *services.LifecycleService) {
	msgs, err := ch.Consume(
		cfg.OrderQueue,
		"order-service", // consumer tag
		false,           // auto-ack
		false,           // exclusive
		false,           // no-local
		false,           // no-wait
		nil,
	)
	if err != nil {
		log.Fatalf("Failed to register consumer: %v", err)
	}

	go func() {
		for msg := range msgs {
			processOrderMessage(msg, lifecycle)
		}
	}()

	dlqMsgs, err := ch.Consume(
		cfg.DeadLetterQueue,
		"order-service-dlq", // consumer tag
		false,               // auto-ack
		false,               // exclusive
		false,               // no-local
		false,               // no-wait
		nil,
	)
	if err != nil {
		log.Printf("Failed to register DLQ consumer: %v", err)
		return
	}

	go func() {
		for msg := range dlqMsgs {
			processDeadLetterMessage(msg)
		}
	}()
}

func processOrderMessage(msg amqp.Delivery, lifecycle *services.LifecycleService) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in message processing: %v", r)
		}
	}()

	var ev models.OrderEvent
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		log.Printf("Invalid event payload: %s", msg.Body)
		_ = msg.Nack(false, false) // reject, no requeue
		return
	}

	log.Printf("Processing order event: id=%s type=%s order=%d", ev.EventID, ev.Type, ev.OrderID)

	switch ev.Type {
	case models.EventOrderCreated:
		handleOrderCreated(ev)
	case models.EventOrderStatusChanged:
		handleStatusChanged(ev)
	case models.EventPaymentCheck:
		handlePaymentCheck(ev, lifecycle)
	default:
		log.Printf("Unknown event type: %s", ev.Type)
	}

	_ = msg.Ack(false)
}

func processDeadLetterMessage(msg amqp.Delivery) {
	log.Printf("Received dead letter: %s", msg.Body)
	_ = msg.Ack(false)
}

func handleOrderCreated(ev models.OrderEvent) {
	// notification hooks live elsewhere; nothing to reconcile here
	log.Printf("Handling order created: %d", ev.OrderID)
}

func handleStatusChanged(ev models.OrderEvent) {
	var status string
	err := database.DB.QueryRow("SELECT status FROM orders WHERE id = ?", ev.OrderID).Scan(&status)
	if err != nil {
		log.Printf("Failed to get order status: %v", err)
		return
	}

	st := models.OrderStatus(status)
	switch st {
	case models.StatusShipped:
		// shipment notification
	case models.StatusCancelled:
		// cancellation notification
	}
	if models.IsTerminal(st) {
		log.Printf("Order %d reached terminal status %s", ev.OrderID, st)
		return
	}
	log.Printf("Handling status change for order %d: %s", ev.OrderID, status)
}

// handlePaymentCheck fires when the delayed payment deadline elapses. An
// order still pending and awaiting gateway payment never got paid; the
// cancel goes through the lifecycle service so the stock release happens
// exactly once.
func handlePaymentCheck(ev models.OrderEvent, lifecycle *services.LifecycleService) {
	var status, paymentStatus string
	err := database.DB.QueryRow(
		"SELECT status, payment_status FROM orders WHERE id = ?", ev.OrderID,
	).Scan(&status, &paymentStatus)
	if err != nil {
		log.Printf("Failed to get order status: %v", err)
		return
	}

	// COD orders pay on delivery and never expire here
	if models.OrderStatus(status) != models.StatusPending || paymentStatus != models.PaymentStatusAwaiting {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lifecycle.Cancel(ctx, ev.OrderID, 0); err != nil {
		log.Printf("Failed to auto-cancel order %d: %v", ev.OrderID, err)
		return
	}
	log.Printf("Auto-cancelled order %d due to non-payment", ev.OrderID)
}
