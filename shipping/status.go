package shipping

import "order-service/models"

// carrierStatusMap translates the carrier's tracking vocabulary into the
// internal order statuses. The state machine decides afterwards whether the
// mapped status is actually applied; out-of-order or duplicate webhooks
// simply lose the conditional update and become no-ops.
var carrierStatusMap = map[string]models.OrderStatus{
	"ready_to_pick":         models.StatusConfirmed,
	"picking":               models.StatusConfirmed,
	"money_collect_picking": models.StatusConfirmed,

	"picked":                   models.StatusShipped,
	"storing":                  models.StatusShipped,
	"transporting":             models.StatusShipped,
	"sorting":                  models.StatusShipped,
	"delivering":               models.StatusShipped,
	"money_collect_delivering": models.StatusShipped,

	"delivered": models.StatusDelivered,

	"cancel": models.StatusCancelled,

	// Exception and return flows collapse into the existing buckets. A
	// shipped order reported as returning stays shipped because the
	// shipped->cancelled edge does not exist.
	"delivery_fail":       models.StatusPending,
	"exception":           models.StatusPending,
	"waiting_to_return":   models.StatusPending,
	"return":              models.StatusCancelled,
	"returning":           models.StatusCancelled,
	"return_transporting": models.StatusCancelled,
	"returned":            models.StatusCancelled,
	"lost":                models.StatusCancelled,
	"damage":              models.StatusCancelled,
}

// MapCarrierStatus returns the internal status a carrier tracking status
// maps to. Unknown statuses report ok=false and are ignored by callers.
func MapCarrierStatus(carrierStatus string) (models.OrderStatus, bool) {
	s, ok := carrierStatusMap[carrierStatus]
	return s, ok
}
