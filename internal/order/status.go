package order

// Order statuses. The lifecycle is a straight line with cancellation
// reachable from every non-terminal state except delivered.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"
)

var transitions = map[string][]string{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

// ValidStatus reports whether s is one of the five recognized statuses.
func ValidStatus(s string) bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether the move from one status to another is
// legal.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func IsTerminal(s string) bool {
	return len(transitions[s]) == 0 && ValidStatus(s)
}

// FulfillmentStatus derives the customer-facing fulfillment state from the
// order status. It is never stored, so it cannot drift.
func FulfillmentStatus(status string) string {
	switch status {
	case StatusShipped:
		return "in_transit"
	case StatusDelivered:
		return "fulfilled"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unfulfilled"
	}
}
