package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeStore struct {
	data     map[string]string
	setNXErr error
	lastTTL  time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}}
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.setNXErr != nil {
		return false, f.setNXErr
	}
	f.lastTTL = ttl
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = value.(string)
	return true, nil
}

func (f *fakeStore) LeaseKey(scope, id string) string {
	return "farmlane:lease:" + scope + ":" + id
}

func (f *fakeStore) DeleteIfEquals(_ context.Context, key, value string) (bool, error) {
	if f.data[key] != value {
		return false, nil
	}
	delete(f.data, key)
	return true, nil
}

func TestAcquireIsExclusiveUntilRelease(t *testing.T) {
	store := newFakeStore()
	manager, err := NewManager(store, 2*time.Minute)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ctx := context.Background()

	lease, ok, err := manager.Acquire(ctx, "stripe-webhook", "evt_1")
	if err != nil || !ok {
		t.Fatalf("first acquire should succeed: ok=%v err=%v", ok, err)
	}
	if store.lastTTL != 2*time.Minute {
		t.Fatalf("unexpected ttl %v", store.lastTTL)
	}
	if _, ok, _ := manager.Acquire(ctx, "stripe-webhook", "evt_1"); ok {
		t.Fatalf("second acquire must not succeed while the lease is held")
	}
	if _, ok, _ := manager.Acquire(ctx, "stripe-webhook", "evt_2"); !ok {
		t.Fatalf("other ids are independent")
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, _ := manager.Acquire(ctx, "stripe-webhook", "evt_1"); !ok {
		t.Fatalf("acquire after release should succeed")
	}
}

func TestReleaseLeavesForeignLeaseAlone(t *testing.T) {
	store := newFakeStore()
	manager, _ := NewManager(store, time.Minute)
	ctx := context.Background()

	lease, _, err := manager.Acquire(ctx, "stripe-webhook", "evt_1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	// Simulate expiry and a new holder.
	store.data["farmlane:lease:stripe-webhook:evt_1"] = "someone-else"

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.data["farmlane:lease:stripe-webhook:evt_1"] != "someone-else" {
		t.Fatalf("release must not delete a lease it no longer owns")
	}
}

func TestAcquireErrors(t *testing.T) {
	if _, err := NewManager(nil, time.Minute); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := NewManager(newFakeStore(), 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}

	store := newFakeStore()
	store.setNXErr = errors.New("connection refused")
	manager, _ := NewManager(store, time.Minute)
	if _, _, err := manager.Acquire(context.Background(), "stripe-webhook", "evt_1"); err == nil {
		t.Fatal("expected store error to surface")
	}
	if _, _, err := manager.Acquire(context.Background(), "stripe-webhook", ""); err == nil {
		t.Fatal("expected error for empty id")
	}
	var nilLease *Lease
	if err := nilLease.Release(context.Background()); err != nil {
		t.Fatalf("nil lease release should be a no-op: %v", err)
	}
}
