package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/laundrytrack-backend/pkg/redis"
)

// Manager remembers which keys were already handled within a scope using
// Redis SETNX with a TTL. Keys follow the `lt:idempotency:<scope>:<key>`
// pattern.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewManager builds an idempotency guard that holds claims for the given TTL.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{
		store: store,
		ttl:   ttl,
	}, nil
}

// CheckAndMark returns true if key was already claimed in scope and otherwise
// claims it for the configured TTL.
func (m *Manager) CheckAndMark(ctx context.Context, scope, key string) (bool, error) {
	full, err := m.key(scope, key)
	if err != nil {
		return false, err
	}
	set, err := m.store.SetNX(ctx, full, "1", m.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Release drops a claim so the next caller may handle key again.
func (m *Manager) Release(ctx context.Context, scope, key string) error {
	full, err := m.key(scope, key)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, full)
}

func (m *Manager) key(scope, key string) (string, error) {
	if strings.TrimSpace(scope) == "" {
		return "", errors.New("scope is required")
	}
	if strings.TrimSpace(key) == "" {
		return "", errors.New("key is required")
	}
	return m.store.IdempotencyKey(scope, key), nil
}
