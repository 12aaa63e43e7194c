package catalog

import (
	"context"
	"sync"

	"conforma/pkg/platform/sentinel"
)

// Store exposes read access to the catalog. Rule target validation and scope
// reads share one interface so the backing source is swappable.
type Store interface {
	Find(ctx context.Context, kind ItemKind, code string) (*Item, error)
	ListByKind(ctx context.Context, kind ItemKind) ([]*Item, error)
}

// InMemory keeps the catalog in process memory. The reference dataset is
// small and changes only with platform releases, so memory is the default
// backing even in production; Postgres is for deployments that manage the
// catalog out of band.
type InMemory struct {
	mu    sync.RWMutex
	items map[ItemKind]map[string]*Item
}

// NewInMemory constructs an empty in-memory catalog.
func NewInMemory() *InMemory {
	return &InMemory{items: make(map[ItemKind]map[string]*Item)}
}

// Put inserts or replaces a catalog entry. Used by seeding only.
func (s *InMemory) Put(item *Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byCode, ok := s.items[item.Kind]
	if !ok {
		byCode = make(map[string]*Item)
		s.items[item.Kind] = byCode
	}
	copied := *item
	byCode[item.Code] = &copied
}

func (s *InMemory) Find(_ context.Context, kind ItemKind, code string) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if item, ok := s.items[kind][code]; ok {
		copied := *item
		return &copied, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) ListByKind(_ context.Context, kind ItemKind) ([]*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Item, 0, len(s.items[kind]))
	for _, item := range s.items[kind] {
		copied := *item
		out = append(out, &copied)
	}
	return out, nil
}
