package models

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

// validNext is the single source of truth for the order state machine.
// Admin commands and carrier updates both go through it.
var validNext = map[OrderStatus]map[OrderStatus]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusShipped: true, StatusCancelled: true},
	StatusShipped:   {StatusDelivered: true},
	StatusDelivered: {},
	StatusCancelled: {},
}

func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

// Predecessors returns every status from which `to` is reachable, in a
// stable order. Used to build the conditional status UPDATE.
func Predecessors(to OrderStatus) []OrderStatus {
	order := []OrderStatus{StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled}
	var out []OrderStatus
	for _, from := range order {
		if validNext[from][to] {
			out = append(out, from)
		}
	}
	return out
}

// ReleasesStock reports whether winning the from->to edge must return the
// order's reserved stock to inventory. Only the pre-shipment cancel edges
// do; once a carrier has the parcel the stock is physically gone.
func ReleasesStock(from, to OrderStatus) bool {
	if !CanTransition(from, to) || to != StatusCancelled {
		return false
	}
	return from == StatusPending || from == StatusConfirmed
}

func IsTerminal(s OrderStatus) bool {
	return len(validNext[s]) == 0
}

func ValidStatus(s OrderStatus) bool {
	_, ok := validNext[s]
	return ok
}
