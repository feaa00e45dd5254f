package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlane-backend/pkg/enums"
	"github.com/angelmondragon/farmlane-backend/pkg/logger"
	"github.com/angelmondragon/farmlane-backend/pkg/outbox/payloads"
)

const defaultSendTimeout = 5 * time.Second

// Notification is one fire-and-forget message for a user.
type Notification struct {
	UserID  uuid.UUID
	Type    enums.NotificationType
	Payload payloads.OrderNotification
}

// Sink delivers a notification somewhere durable or visible.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// Notifier is what the order store depends on. Dispatch never blocks on delivery.
type Notifier interface {
	Dispatch(ctx context.Context, n Notification)
}

// Dispatcher runs every sink call on its own goroutine with a bounded timeout.
// Failures are logged and dropped.
type Dispatcher struct {
	sink    Sink
	timeout time.Duration
	logg    *logger.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher wires a dispatcher around the given sink.
func NewDispatcher(sink Sink, timeout time.Duration, logg *logger.Logger) (*Dispatcher, error) {
	if sink == nil {
		return nil, fmt.Errorf("notification sink required")
	}
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Dispatcher{sink: sink, timeout: timeout, logg: logg}, nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.warn(ctx, n, "dispatcher closed; notification dropped")
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	// The request context is usually cancelled before delivery finishes.
	base := context.WithoutCancel(ctx)
	go func() {
		defer d.wg.Done()
		sendCtx, cancel := context.WithTimeout(base, d.timeout)
		defer cancel()
		if err := d.sink.Notify(sendCtx, n); err != nil && d.logg != nil {
			logCtx := d.logg.WithFields(base, map[string]any{
				"notification_type": n.Type,
				"recipient_id":      n.UserID.String(),
				"order_id":          n.Payload.OrderID.String(),
			})
			d.logg.Error(logCtx, "notification delivery failed", err)
		}
	}()
}

// Close stops accepting notifications and waits for in-flight sends.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}

// Wait blocks until every dispatched notification has finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

func (d *Dispatcher) warn(ctx context.Context, n Notification, msg string) {
	if d.logg == nil {
		return
	}
	d.logg.Warn(d.logg.WithField(ctx, "notification_type", n.Type), msg)
}

// Discard is a Notifier that drops everything; useful when notifications are disabled.
type Discard struct{}

func (Discard) Dispatch(context.Context, Notification) {}
