package downloader

import (
	"hash/fnv"
	"sync"
)

// Entry holds one identity's Transfer. Its mutex serializes every
// mutation of that Transfer; once removed is set the entry is dead and
// all operations on it are no-ops.
//
// Lock order is Entry, then registry shard. The registry never takes an
// entry lock.
type Entry struct {
	mu       sync.Mutex
	transfer *Transfer
	removed  bool
}

func newEntry(t *Transfer) *Entry {
	return &Entry{transfer: t}
}

type registryShard struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// Registry is a sharded map from transfer identity to Entry. Operations
// on identities in different shards never contend.
type Registry struct {
	shards []*registryShard
}

// NewRegistry creates a registry with the given number of shards
func NewRegistry(shardCount int) *Registry {
	if shardCount <= 0 {
		shardCount = 1
	}
	r := &Registry{shards: make([]*registryShard, shardCount)}
	for i := range r.shards {
		r.shards[i] = &registryShard{entries: make(map[string]*Entry)}
	}
	return r
}

// shardIndex maps an identity onto one of n buckets
func shardIndex(id string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % uint32(n))
}

func (r *Registry) shard(id string) *registryShard {
	return r.shards[shardIndex(id, len(r.shards))]
}

// Get returns the entry for id
func (r *Registry) Get(id string) (*Entry, bool) {
	s := r.shard(id)
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	return e, ok
}

// PutIfAbsent stores e under id unless an entry already exists.
// It returns the entry now stored and whether it was already present.
func (r *Registry) PutIfAbsent(id string, e *Entry) (*Entry, bool) {
	s := r.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[id]; ok {
		return existing, true
	}
	s.entries[id] = e
	return e, false
}

// Remove deletes id only while it still maps to e
func (r *Registry) Remove(id string, e *Entry) bool {
	s := r.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.entries[id]; ok && current == e {
		delete(s.entries, id)
		return true
	}
	return false
}

// Len returns the number of entries
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Range calls fn for every entry until fn returns false. Each shard is
// copied first so fn may lock entries or modify the registry.
func (r *Registry) Range(fn func(id string, e *Entry) bool) {
	for _, s := range r.shards {
		s.mu.RLock()
		ids := make([]string, 0, len(s.entries))
		entries := make([]*Entry, 0, len(s.entries))
		for id, e := range s.entries {
			ids = append(ids, id)
			entries = append(entries, e)
		}
		s.mu.RUnlock()

		for i := range ids {
			if !fn(ids[i], entries[i]) {
				return
			}
		}
	}
}
