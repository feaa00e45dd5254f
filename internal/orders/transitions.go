package orders

import (
	"github.com/angelmondragon/farmlane-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlane-backend/pkg/errors"
)

// allowedTransitions is the order state machine. REFUNDED has no inbound edge
// here: only Refund may move an order there.
var allowedTransitions = map[enums.OrderStatus]map[enums.OrderStatus]struct{}{
	enums.OrderStatusPending: {
		enums.OrderStatusConfirmed: {},
		enums.OrderStatusCancelled: {},
	},
	enums.OrderStatusConfirmed: {
		enums.OrderStatusProcessing: {},
		enums.OrderStatusCancelled:  {},
	},
	enums.OrderStatusProcessing: {
		enums.OrderStatusShipped:   {},
		enums.OrderStatusCancelled: {},
	},
	enums.OrderStatusShipped: {
		enums.OrderStatusDelivered: {},
		enums.OrderStatusCancelled: {},
	},
	enums.OrderStatusDelivered: {},
	enums.OrderStatusCancelled: {},
	enums.OrderStatusRefunded:  {},
}

// CanTransition reports whether the table allows from -> to.
func CanTransition(from, to enums.OrderStatus) bool {
	targets, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// AllowedTargets lists the statuses reachable from the given one.
func AllowedTargets(from enums.OrderStatus) []enums.OrderStatus {
	out := make([]enums.OrderStatus, 0, 2)
	for _, candidate := range []enums.OrderStatus{
		enums.OrderStatusConfirmed,
		enums.OrderStatusProcessing,
		enums.OrderStatusShipped,
		enums.OrderStatusDelivered,
		enums.OrderStatusCancelled,
	} {
		if CanTransition(from, candidate) {
			out = append(out, candidate)
		}
	}
	return out
}

func invalidTransition(from, to enums.OrderStatus) error {
	return pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "cannot move order from %s to %s", from, to).
		WithDetails(map[string]any{
			"from":    from,
			"to":      to,
			"allowed": AllowedTargets(from),
		})
}

// orderStatusForFulfillment maps the slowest item's progress to the order
// status it implies. Pending items imply nothing.
func orderStatusForFulfillment(slowest enums.FulfillmentStatus) (enums.OrderStatus, bool) {
	switch slowest {
	case enums.FulfillmentStatusProcessing:
		return enums.OrderStatusProcessing, true
	case enums.FulfillmentStatusShipped:
		return enums.OrderStatusShipped, true
	case enums.FulfillmentStatusDelivered:
		return enums.OrderStatusDelivered, true
	}
	return "", false
}

// statusRank orders the forward path so fulfillment aggregation can walk it one step at a time.
func statusRank(status enums.OrderStatus) int {
	switch status {
	case enums.OrderStatusPending:
		return 0
	case enums.OrderStatusConfirmed:
		return 1
	case enums.OrderStatusProcessing:
		return 2
	case enums.OrderStatusShipped:
		return 3
	case enums.OrderStatusDelivered:
		return 4
	}
	return -1
}

var forwardPath = []enums.OrderStatus{
	enums.OrderStatusPending,
	enums.OrderStatusConfirmed,
	enums.OrderStatusProcessing,
	enums.OrderStatusShipped,
	enums.OrderStatusDelivered,
}
