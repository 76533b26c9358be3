package store

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryRepository keeps records in a ttlcache. Suitable for development and
// tests; sessions do not survive a gateway restart.
type MemoryRepository struct {
	cache *ttlcache.Cache[string, *Record]
}

func NewMemoryRepository() *MemoryRepository {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, *Record](),
	)
	go cache.Start()
	return &MemoryRepository{cache: cache}
}

func (m *MemoryRepository) Get(_ context.Context, id string) (*Record, error) {
	item := m.cache.Get(id)
	if item == nil {
		return nil, nil
	}
	rec := item.Value()
	if time.Now().UTC().After(rec.ExpiresAt) {
		m.cache.Delete(id)
		return nil, nil
	}
	return rec, nil
}

func (m *MemoryRepository) Put(_ context.Context, rec *Record) error {
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	m.cache.Set(rec.ID, rec, ttl)
	return nil
}

func (m *MemoryRepository) Delete(_ context.Context, id string) error {
	m.cache.Delete(id)
	return nil
}
