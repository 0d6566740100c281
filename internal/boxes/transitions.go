package boxes

import "github.com/cargoloop/forwarder-backend/pkg/enums"

// allowedTransitions is the lifecycle table. IN_PROGRESS may fall back to
// PENDING when a carrier shipment attempt fails before a label exists.
// SHIPPED and CANCELLED are terminal.
var allowedTransitions = map[enums.BoxStatus][]enums.BoxStatus{
	enums.BoxStatusOpen:       {enums.BoxStatusPending, enums.BoxStatusCancelled},
	enums.BoxStatusPending:    {enums.BoxStatusInProgress, enums.BoxStatusCancelled},
	enums.BoxStatusInProgress: {enums.BoxStatusShipped, enums.BoxStatusPending, enums.BoxStatusCancelled},
	enums.BoxStatusShipped:    {},
	enums.BoxStatusCancelled:  {},
}

// CanTransition reports whether the lifecycle permits moving from one status
// to another.
func CanTransition(from, to enums.BoxStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
