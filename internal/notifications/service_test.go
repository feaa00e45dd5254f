package notifications

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/angelmondragon/farmlane-backend/pkg/db/dbtest"
	"github.com/angelmondragon/farmlane-backend/pkg/db/models"
	"github.com/angelmondragon/farmlane-backend/pkg/enums"
	"github.com/angelmondragon/farmlane-backend/pkg/logger"
	"github.com/angelmondragon/farmlane-backend/pkg/outbox"
	"github.com/angelmondragon/farmlane-backend/pkg/outbox/payloads"
)

type recordingSink struct {
	mu    sync.Mutex
	got   []Notification
	err   error
	delay time.Duration
}

func (s *recordingSink) Notify(ctx context.Context, n Notification) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return s.err
}

func sample() Notification {
	return Notification{
		UserID: uuid.New(),
		Type:   enums.NotificationTypeOrderStatusChanged,
		Payload: payloads.OrderNotification{
			OrderID: uuid.New(),
			Status:  enums.OrderStatusConfirmed,
		},
	}
}

func TestDispatcherDeliversAfterCallerContextIsCancelled(t *testing.T) {
	sink := &recordingSink{delay: 10 * time.Millisecond}
	d, err := NewDispatcher(sink, time.Second, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, sample())
	cancel()
	d.Close()

	assert.Len(t, sink.got, 1)
}

func TestDispatcherLogsFailuresWithoutPropagating(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: buf})
	sink := &recordingSink{err: errors.New("smtp down")}
	d, err := NewDispatcher(sink, time.Second, logg)
	require.NoError(t, err)

	d.Dispatch(context.Background(), sample())
	d.Wait()

	assert.Contains(t, buf.String(), "notification delivery failed")
	assert.Contains(t, buf.String(), "smtp down")
}

func TestDispatcherTimesOutSlowSinks(t *testing.T) {
	sink := &recordingSink{delay: time.Second}
	d, err := NewDispatcher(sink, 20*time.Millisecond, nil)
	require.NoError(t, err)

	start := time.Now()
	d.Dispatch(context.Background(), sample())
	d.Close()
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Empty(t, sink.got)
}

func TestDispatcherDropsAfterClose(t *testing.T) {
	sink := &recordingSink{}
	d, err := NewDispatcher(sink, time.Second, nil)
	require.NoError(t, err)
	d.Close()
	d.Dispatch(context.Background(), sample())
	d.Wait()
	assert.Empty(t, sink.got)
}

func TestOutboxSinkWritesRow(t *testing.T) {
	client := dbtest.Open(t)
	svc := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	sink, err := NewOutboxSink(client.DB(), svc)
	require.NoError(t, err)

	n := sample()
	require.NoError(t, sink.Notify(context.Background(), n))

	var row models.OutboxEvent
	require.NoError(t, client.DB().First(&row, "aggregate_id = ?", n.Payload.OrderID).Error)
	assert.Equal(t, enums.NotificationTypeOrderStatusChanged, row.EventType)
	assert.Equal(t, enums.AggregateOrder, row.AggregateType)
	assert.True(t, strings.Contains(string(row.Payload), n.Payload.OrderID.String()))
}

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.records = append(f.records, rs...)
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func TestKafkaSinkKeysByOrder(t *testing.T) {
	producer := &fakeProducer{}
	sink, err := NewKafkaSink(producer, "farmlane.order-notifications")
	require.NoError(t, err)

	n := sample()
	require.NoError(t, sink.Notify(context.Background(), n))
	require.Len(t, producer.records, 1)
	record := producer.records[0]
	assert.Equal(t, "farmlane.order-notifications", record.Topic)
	assert.Equal(t, n.Payload.OrderID.String(), string(record.Key))
	assert.Contains(t, string(record.Value), `"status":"CONFIRMED"`)

	producer.err = errors.New("broker unavailable")
	assert.Error(t, sink.Notify(context.Background(), n))
}
