package engine

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const DefaultRegistryShards = 32

type registryShard struct {
	mu    sync.RWMutex
	books map[string]*OrderBook
}

// Registry maps instruments to their order books. It is sharded by instrument
// hash so unrelated instruments never contend on the same lock; every
// mutation of an entry happens under its shard's write lock.
type Registry struct {
	shards []*registryShard
	mask   uint64
}

// NewRegistry builds a registry with shards rounded up to a power of two.
// Non-positive values use DefaultRegistryShards.
func NewRegistry(shards int) *Registry {
	if shards <= 0 {
		shards = DefaultRegistryShards
	}
	n := 1
	for n < shards {
		n <<= 1
	}

	r := &Registry{
		shards: make([]*registryShard, n),
		mask:   uint64(n - 1),
	}
	for i := range r.shards {
		r.shards[i] = &registryShard{books: make(map[string]*OrderBook)}
	}
	return r
}

func (r *Registry) shard(instrument string) *registryShard {
	return r.shards[xxhash.Sum64String(instrument)&r.mask]
}

func (r *Registry) Get(instrument string) (*OrderBook, bool) {
	sh := r.shard(instrument)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	ob, ok := sh.books[instrument]
	return ob, ok
}

func (r *Registry) getOrCreate(instrument string, create func() *OrderBook) *OrderBook {
	sh := r.shard(instrument)

	sh.mu.RLock()
	if ob, ok := sh.books[instrument]; ok {
		sh.mu.RUnlock()
		return ob
	}
	sh.mu.RUnlock()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	// edge case: double-check after acquiring write lock
	if ob, ok := sh.books[instrument]; ok {
		return ob
	}
	ob := create()
	sh.books[instrument] = ob
	return ob
}

// releaseIfEmpty removes ob from the registry when it is still the entry for
// instrument and holds no orders. It reports whether the entry is gone.
func (r *Registry) releaseIfEmpty(instrument string, ob *OrderBook) bool {
	sh := r.shard(instrument)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	current, ok := sh.books[instrument]
	if !ok || current != ob {
		return !ok
	}
	if !ob.retireIfEmpty() {
		return false
	}
	delete(sh.books, instrument)
	return true
}

func (r *Registry) Len() int {
	total := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		total += len(sh.books)
		sh.mu.RUnlock()
	}
	return total
}

// Snapshot copies the current instrument -> book entries.
func (r *Registry) Snapshot() map[string]*OrderBook {
	snapshot := make(map[string]*OrderBook)
	for _, sh := range r.shards {
		sh.mu.RLock()
		for k, v := range sh.books {
			snapshot[k] = v
		}
		sh.mu.RUnlock()
	}
	return snapshot
}

func (r *Registry) Instruments() []string {
	books := r.Snapshot()
	instruments := make([]string, 0, len(books))
	for k := range books {
		instruments = append(instruments, k)
	}
	sort.Strings(instruments)
	return instruments
}
