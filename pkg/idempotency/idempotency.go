// Package idempotency guards duplicate work with short Redis leases.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlane-backend/pkg/redis"
)

// Manager hands out in-flight leases keyed by scope and id using Redis SETNX
// with a TTL. Keys follow the `farmlane:lease:<scope>:<id>` pattern.
// A lease only limits concurrent work; durable dedupe lives in the database.
type Manager struct {
	store redis.LeaseStore
	ttl   time.Duration
}

// Lease is held by the worker that acquired it until Release or TTL expiry.
type Lease struct {
	store redis.LeaseStore
	key   string
	owner string
}

// NewManager builds a lease manager with the given TTL.
func NewManager(store redis.LeaseStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("lease store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// Acquire returns a lease when nobody else holds one for (scope, id). The
// boolean is false when another worker is already in flight.
func (m *Manager) Acquire(ctx context.Context, scope, id string) (*Lease, bool, error) {
	key, err := m.leaseKey(scope, id)
	if err != nil {
		return nil, false, err
	}
	owner := uuid.NewString()
	ok, err := m.store.SetNX(ctx, key, owner, m.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Lease{store: m.store, key: key, owner: owner}, true, nil
}

// Release frees the lease if it is still ours.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.owner == "" {
		return nil
	}
	// A lease that expired and was re-acquired elsewhere is left alone.
	if _, err := l.store.DeleteIfEquals(ctx, l.key, l.owner); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	l.owner = ""
	return nil
}

func (m *Manager) leaseKey(scope, id string) (string, error) {
	if scope == "" {
		return "", errors.New("lease scope is required")
	}
	if id == "" {
		return "", errors.New("lease id is required")
	}
	return m.store.LeaseKey(scope, id), nil
}
