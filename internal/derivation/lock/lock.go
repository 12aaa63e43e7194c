// Package lock serializes derivation runs per (tenant, ruleset code).
// Concurrent runs for the same pair fail fast with sentinel.ErrLocked;
// different tenants never contend.
package lock

import (
	"context"
	"sync"

	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
)

// Locker acquires an exclusive per-(tenant, ruleset) lock. The returned
// release function must be called exactly once; it is safe to defer.
type Locker interface {
	Acquire(ctx context.Context, tenantID id.TenantID, rulesetCode string) (release func(), err error)
}

type lockKey struct {
	tenantID    id.TenantID
	rulesetCode string
}

// Memory is a process-local Locker for tests and single-node deployments.
type Memory struct {
	mu   sync.Mutex
	held map[lockKey]struct{}
}

func NewMemory() *Memory {
	return &Memory{held: make(map[lockKey]struct{})}
}

func (m *Memory) Acquire(_ context.Context, tenantID id.TenantID, rulesetCode string) (func(), error) {
	key := lockKey{tenantID: tenantID, rulesetCode: rulesetCode}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[key]; ok {
		return nil, sentinel.ErrLocked
	}
	m.held[key] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			m.mu.Unlock()
		})
	}
	return release, nil
}
