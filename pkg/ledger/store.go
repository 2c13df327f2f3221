package ledger

import (
	"context"
	"sort"
	"sync"
)

// Entry is a single ledger record.
type Entry struct {
	// Key is the fully-qualified endpoint URL.
	Key string

	// LastFetchedAt is the last successful fetch in milliseconds since the Unix epoch.
	LastFetchedAt int64
}

// Store is the persistence behind a Ledger.
//
// Implementations must be safe for concurrent use. Each method is a single
// atomic step: no caller may observe a key that is present in the key order
// but missing its timestamp, or the other way around.
type Store interface {
	// Put records fetchedAt for key. A stored timestamp never decreases: an
	// older fetchedAt leaves a present key unchanged. A key that is not
	// present is appended to the key order; a present key keeps its position.
	Put(ctx context.Context, key string, fetchedAt int64) error

	// Get returns (ts, true, nil) when key is present and (0, false, nil) when it is not.
	Get(ctx context.Context, key string) (int64, bool, error)

	// Delete removes key. Deleting an unknown key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes every key.
	Clear(ctx context.Context) error

	// Entries returns all entries in first-insertion order.
	Entries(ctx context.Context) ([]Entry, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

type memoryEntry struct {
	fetchedAt int64
	seq       uint64
}

// MemoryStore keeps the ledger in process memory.
// Every instance is independent; nothing is shared between processes.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
	seq   uint64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]memoryEntry),
	}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, key string, fetchedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	if !ok {
		s.seq++
		e.seq = s.seq
	}
	if !ok || fetchedAt > e.fetchedAt {
		e.fetchedAt = fetchedAt
	}
	s.items[key] = e
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.items[key]
	if !ok {
		return 0, false, nil
	}
	return e.fetchedAt, true, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.items = make(map[string]memoryEntry)
	s.mu.Unlock()
	return nil
}

// Entries implements Store.
func (s *MemoryStore) Entries(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	type ordered struct {
		Entry
		seq uint64
	}
	all := make([]ordered, 0, len(s.items))
	for key, e := range s.items {
		all = append(all, ordered{Entry: Entry{Key: key, LastFetchedAt: e.fetchedAt}, seq: e.seq})
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })

	entries := make([]Entry, len(all))
	for i, o := range all {
		entries[i] = o.Entry
	}
	return entries, nil
}

// Ping implements Store. The memory store is always reachable.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}
