// Package store implements the cache's shared storage table (the C1
// component): a typed, sharded associative container with lock-free reads
// and exclusive-only-on-structural-change writes.
//
// Reads take only a shard's read lock and never block on a writer replacing
// the value of an already-present key — only the rare path that adds a
// brand-new key or removes one takes a shard's exclusive lock, and reads of
// that shard wait for it to finish. Callers (the cache facade) are expected to have already
// serialized concurrent writers of the *same* key via the lock manager;
// the Store's own locking exists only to keep Go's map structure safe for
// concurrent shards, not to serialize logical writers.
package store

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// Mode selects the value-cardinality semantics of a Store.
type Mode int

const (
	// ModeSet holds at most one value per key; Insert replaces it.
	ModeSet Mode = iota
	// ModeBag holds unique (key, value) pairs; Insert appends unless the
	// exact value is already present for the key.
	ModeBag
	// ModeDuplicateBag holds every inserted value for a key, duplicates
	// included, in insertion order.
	ModeDuplicateBag
)

// Multi reports whether the mode allows more than one value per key.
func (m Mode) Multi() bool { return m == ModeBag || m == ModeDuplicateBag }

// payload is the atomically-published contents of one key. Replacing a
// key's value is a single pointer swap; readers that already hold a
// *payload never observe a torn value.
type payload[V any] struct {
	value  V      // meaningful when !multi
	values []V    // meaningful when multi; append-only, copy-on-write
	slot   uint32 // expiry back-reference (store/timewheel.SlotNone if none)
}

// entry is the map-resident handle for one key. Its payload is replaced
// atomically; the entry itself is only created/removed under a shard's
// exclusive lock.
type entry[V any] struct {
	p atomic.Pointer[payload[V]]
}

// SlotNone marks an entry with no expiry back-reference.
const SlotNone uint32 = ^uint32(0)

type shard[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]*entry[V]
}

// Store is a sharded, mode-parameterized key-value table.
type Store[K comparable, V any] struct {
	mode   Mode
	equal  func(a, b V) bool
	shards []*shard[K, V]
	count  atomic.Int64 // total entries across all shards (not unique keys)
}

// New builds a Store with the given mode and shard count. shardCount is
// clamped to at least 1. equal is consulted only in ModeBag, to decide
// whether an inserted value already exists for the key; a nil equal falls
// back to reflect.DeepEqual, which is always correct but slower than a
// caller-supplied comparator for large or reference-typed V.
func New[K comparable, V any](mode Mode, shardCount int, equal func(a, b V) bool) *Store[K, V] {
	if shardCount < 1 {
		shardCount = 1
	}
	if equal == nil {
		equal = func(a, b V) bool { return reflect.DeepEqual(a, b) }
	}
	s := &Store[K, V]{
		mode:   mode,
		equal:  equal,
		shards: make([]*shard[K, V], shardCount),
	}
	for i := range s.shards {
		s.shards[i] = &shard[K, V]{data: make(map[K]*entry[V])}
	}
	return s
}

func (s *Store[K, V]) shardFor(key K) *shard[K, V] {
	h := xxhash.Sum64String(fmt.Sprint(key))
	return s.shards[h%uint64(len(s.shards))]
}

// Lookup returns the single value for key in ModeSet, or the ordered
// sequence of values in ModeBag/ModeDuplicateBag. ok is false iff the key
// is absent. Lookup never fails; it waits only while a key is being added
// to or removed from its shard.
func (s *Store[K, V]) Lookup(key K) (value V, values []V, ok bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	e, found := sh.data[key]
	sh.mu.RUnlock()
	if !found {
		return value, nil, false
	}
	p := e.p.Load()
	if p == nil {
		return value, nil, false
	}
	if s.mode.Multi() {
		out := make([]V, len(p.values))
		copy(out, p.values)
		return value, out, true
	}
	return p.value, nil, true
}

// Slot returns the expiry back-reference currently stored for key, and
// whether the key exists at all.
func (s *Store[K, V]) Slot(key K) (slot uint32, ok bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	e, found := sh.data[key]
	sh.mu.RUnlock()
	if !found {
		return SlotNone, false
	}
	p := e.p.Load()
	if p == nil {
		return SlotNone, false
	}
	return p.slot, true
}

// SetSlot rewrites only the expiry back-reference for an existing key,
// preserving its value(s). It is a no-op if the key is absent.
func (s *Store[K, V]) SetSlot(key K, slot uint32) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	e, found := sh.data[key]
	sh.mu.RUnlock()
	if !found {
		return
	}
	for {
		old := e.p.Load()
		if old == nil {
			return
		}
		next := *old
		next.slot = slot
		if e.p.CompareAndSwap(old, &next) {
			return
		}
	}
}

// containsEqual reports whether value already appears in values under the
// store's equal comparator. Only meaningful for ModeBag.
func (s *Store[K, V]) containsEqual(values []V, value V) bool {
	for _, v := range values {
		if s.equal(v, value) {
			return true
		}
	}
	return false
}

// Contains reports whether value is already stored under key in ModeBag
// (insertion-order-insensitive, per the store's equal comparator). It always
// returns false in ModeSet and ModeDuplicateBag, where a repeated value is
// never skipped.
func (s *Store[K, V]) Contains(key K, value V) bool {
	if s.mode != ModeBag {
		return false
	}
	_, values, ok := s.Lookup(key)
	if !ok {
		return false
	}
	return s.containsEqual(values, value)
}

// Insert stores value under key. In ModeSet this replaces any existing
// value. In ModeDuplicateBag it always appends, duplicates included. In
// ModeBag it appends unless an equal value is already present for the
// key, the way ETS bag tables ignore a duplicate (key, value) insert;
// inserted reports whether the store was actually mutated, so a ModeBag
// no-op can be distinguished from a real write. slot is the expiry
// back-reference to record (SlotNone if TTL-less); a ModeBag no-op leaves
// the key's existing slot untouched.
func (s *Store[K, V]) Insert(key K, value V, slot uint32) (inserted bool) {
	sh := s.shardFor(key)

	sh.mu.RLock()
	e, found := sh.data[key]
	sh.mu.RUnlock()

	if found {
		for {
			old := e.p.Load()
			if s.mode == ModeBag && old != nil && s.containsEqual(old.values, value) {
				return false
			}
			next := &payload[V]{slot: slot}
			if s.mode.Multi() {
				if old != nil {
					next.values = append(append([]V(nil), old.values...), value)
				} else {
					next.values = []V{value}
				}
			} else {
				next.value = value
			}
			if e.p.CompareAndSwap(old, next) {
				if old == nil {
					s.count.Add(1)
				} else if s.mode.Multi() {
					s.count.Add(1)
				}
				return true
			}
		}
	}

	sh.mu.Lock()
	e, found = sh.data[key]
	if !found {
		e = &entry[V]{}
		sh.data[key] = e
	}
	sh.mu.Unlock()

	for {
		old := e.p.Load()
		if s.mode == ModeBag && old != nil && s.containsEqual(old.values, value) {
			return false
		}
		next := &payload[V]{slot: slot}
		if s.mode.Multi() {
			if old != nil {
				next.values = append(append([]V(nil), old.values...), value)
			} else {
				next.values = []V{value}
			}
		} else {
			next.value = value
		}
		if e.p.CompareAndSwap(old, next) {
			if old == nil {
				s.count.Add(1)
			} else if s.mode.Multi() {
				s.count.Add(1)
			}
			return true
		}
	}
}

// Exists reports whether any entry is present for key (any value, in bag
// modes).
func (s *Store[K, V]) Exists(key K) bool {
	sh := s.shardFor(key)
	sh.mu.RLock()
	e, found := sh.data[key]
	sh.mu.RUnlock()
	if !found {
		return false
	}
	return e.p.Load() != nil
}

// InsertNew stores value under key only if the key does not already carry
// any value. Returns false if it already existed.
func (s *Store[K, V]) InsertNew(key K, value V, slot uint32) bool {
	sh := s.shardFor(key)

	sh.mu.Lock()
	e, found := sh.data[key]
	if found && e.p.Load() != nil {
		sh.mu.Unlock()
		return false
	}
	if !found {
		e = &entry[V]{}
		sh.data[key] = e
	}
	sh.mu.Unlock()

	p := &payload[V]{slot: slot}
	if s.mode.Multi() {
		p.values = []V{value}
	} else {
		p.value = value
	}
	if !e.p.CompareAndSwap(nil, p) {
		return false
	}
	s.count.Add(1)
	return true
}

// Delete removes all entries for key. Idempotent.
func (s *Store[K, V]) Delete(key K) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	e, found := sh.data[key]
	if found {
		delete(sh.data, key)
	}
	sh.mu.Unlock()
	if !found {
		return
	}
	if p := e.p.Load(); p != nil {
		if s.mode.Multi() {
			s.count.Add(-int64(len(p.values)))
		} else {
			s.count.Add(-1)
		}
	}
}

// Size returns the total number of entries (not unique keys) in the
// store.
func (s *Store[K, V]) Size() int {
	return int(s.count.Load())
}

// Mode returns the store's configured mode.
func (s *Store[K, V]) Mode() Mode { return s.mode }
