package enums

import "fmt"

// NotificationType names the customer-facing notifications emitted by the order engine.
type NotificationType string

const (
	NotificationTypeOrderCreated          NotificationType = "order_created"
	NotificationTypeOrderStatusChanged    NotificationType = "order_status_changed"
	NotificationTypeCancellationRequested NotificationType = "cancellation_requested"
	NotificationTypePaymentFailed         NotificationType = "payment_failed"
	NotificationTypeRefundIssued          NotificationType = "refund_issued"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrderCreated,
	NotificationTypeOrderStatusChanged,
	NotificationTypeCancellationRequested,
	NotificationTypePaymentFailed,
	NotificationTypeRefundIssued,
}

// String implements fmt.Stringer.
func (v NotificationType) String() string {
	return string(v)
}

// IsValid reports whether the value is a known NotificationType.
func (v NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into a NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}

// NotificationTypes returns every supported notification type.
func NotificationTypes() []NotificationType {
	out := make([]NotificationType, len(validNotificationTypes))
	copy(out, validNotificationTypes)
	return out
}
