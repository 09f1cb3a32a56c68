package orders

import "github.com/candemirel/vitrin-backend/pkg/enums"

// CanTransition reports whether an order may move between two fulfillment
// statuses. Delivered and cancelled orders are terminal; everything else may
// move freely, including staying put.
func CanTransition(from, to enums.OrderStatus) bool {
	if !from.IsValid() || !to.IsValid() {
		return false
	}
	if from == to {
		return true
	}
	return !from.IsTerminal()
}
