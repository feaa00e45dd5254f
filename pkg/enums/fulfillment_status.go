package enums

import "fmt"

// FulfillmentStatus is the per-item shipping progress reported by the farmer.
type FulfillmentStatus string

const (
	FulfillmentStatusPending    FulfillmentStatus = "pending"
	FulfillmentStatusProcessing FulfillmentStatus = "processing"
	FulfillmentStatusShipped    FulfillmentStatus = "shipped"
	FulfillmentStatusDelivered  FulfillmentStatus = "delivered"
)

var validFulfillmentStatuses = []FulfillmentStatus{
	FulfillmentStatusPending,
	FulfillmentStatusProcessing,
	FulfillmentStatusShipped,
	FulfillmentStatusDelivered,
}

// String implements fmt.Stringer.
func (v FulfillmentStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known FulfillmentStatus.
func (v FulfillmentStatus) IsValid() bool {
	for _, candidate := range validFulfillmentStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseFulfillmentStatus converts raw input into a FulfillmentStatus.
func ParseFulfillmentStatus(value string) (FulfillmentStatus, error) {
	for _, candidate := range validFulfillmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fulfillment status %q", value)
}

// Rank orders fulfillment progress so callers can enforce forward-only moves.
func (v FulfillmentStatus) Rank() int {
	for idx, candidate := range validFulfillmentStatuses {
		if candidate == v {
			return idx
		}
	}
	return -1
}
