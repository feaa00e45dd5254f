package enums

import "fmt"

// PaymentEventType is the provider-independent kind of a payment webhook.
type PaymentEventType string

const (
	PaymentEventTypeCheckoutSessionCompleted PaymentEventType = "checkout_session_completed"
	PaymentEventTypePaymentSucceeded         PaymentEventType = "payment_succeeded"
	PaymentEventTypePaymentFailed            PaymentEventType = "payment_failed"
	PaymentEventTypeRefundCreated            PaymentEventType = "refund_created"
	PaymentEventTypeDisputeCreated           PaymentEventType = "dispute_created"
	PaymentEventTypeUnhandled                PaymentEventType = "unhandled"
)

var validPaymentEventTypes = []PaymentEventType{
	PaymentEventTypeCheckoutSessionCompleted,
	PaymentEventTypePaymentSucceeded,
	PaymentEventTypePaymentFailed,
	PaymentEventTypeRefundCreated,
	PaymentEventTypeDisputeCreated,
	PaymentEventTypeUnhandled,
}

// String implements fmt.Stringer.
func (v PaymentEventType) String() string {
	return string(v)
}

// IsValid reports whether the value is a known PaymentEventType.
func (v PaymentEventType) IsValid() bool {
	for _, candidate := range validPaymentEventTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParsePaymentEventType converts raw input into a PaymentEventType.
func ParsePaymentEventType(value string) (PaymentEventType, error) {
	for _, candidate := range validPaymentEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment event type %q", value)
}
