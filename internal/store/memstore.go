package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemStore is an in-memory KV implementation. It is safe for concurrent use
// and honors item expiry, making it suitable for tests and local runs
// without a database.
type MemStore struct {
	mu    sync.RWMutex
	items map[memKey]Item
	now   func() time.Time
}

type memKey struct {
	pk string
	sk string
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		items: make(map[memKey]Item),
		now:   time.Now,
	}
}

// Ensure MemStore implements the KV interface.
var _ KV = (*MemStore)(nil)

// Get implements KV.Get. Expired items are treated as absent.
func (m *MemStore) Get(ctx context.Context, pk, sk string) (*Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[memKey{pk: pk, sk: sk}]
	if !ok || m.expired(item) {
		return nil, ErrNotFound
	}

	copied := item
	copied.Value = append([]byte(nil), item.Value...)
	return &copied, nil
}

// Put implements KV.Put.
func (m *MemStore) Put(ctx context.Context, item Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := item
	stored.Value = append([]byte(nil), item.Value...)
	m.items[memKey{pk: item.PK, sk: item.SK}] = stored
	return nil
}

// Query implements KV.Query, returning live items ordered by sort key.
func (m *MemStore) Query(ctx context.Context, pk string) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []Item
	for key, item := range m.items {
		if key.pk == pk && !m.expired(item) {
			copied := item
			copied.Value = append([]byte(nil), item.Value...)
			results = append(results, copied)
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].SK < results[j].SK })
	return results, nil
}

// Scan implements KV.Scan, returning live items whose partition key starts
// with the given prefix, ordered by partition then sort key.
func (m *MemStore) Scan(ctx context.Context, pkPrefix string) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []Item
	for key, item := range m.items {
		if strings.HasPrefix(key.pk, pkPrefix) && !m.expired(item) {
			copied := item
			copied.Value = append([]byte(nil), item.Value...)
			results = append(results, copied)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].PK != results[j].PK {
			return results[i].PK < results[j].PK
		}
		return results[i].SK < results[j].SK
	})
	return results, nil
}

// Delete implements KV.Delete. Deleting a missing item is a no-op.
func (m *MemStore) Delete(ctx context.Context, pk, sk string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, memKey{pk: pk, sk: sk})
	return nil
}

func (m *MemStore) expired(item Item) bool {
	return item.ExpiresAt != 0 && item.ExpiresAt <= m.now().Unix()
}
