// Package timewheel implements the cache's TTL expiry engine (the C3
// component): a bounded ring of buckets where each bucket holds the set of
// keys scheduled to expire on the tick that reaches it. Expiring many keys
// costs O(bucket size) amortized work per tick regardless of how many keys
// exist in total, the way dgraph-io/ristretto buckets its own expiration
// map by wall-clock second — generalized here to the spec's
// cursor-relative scheme so the bucket count and tick period are both
// configurable instead of fixed.
//
// The wheel itself does not run a goroutine; a caller (the cache facade)
// owns the ticker and calls Advance once per tick period, exactly the way
// the teacher's janitor owns its own time.Ticker and calls deleteExpired.
package timewheel

import (
	"math"
	"sync"
)

// SlotNone marks a key with no wheel entry (TTL "infinity", or TTL-less).
const SlotNone uint32 = ^uint32(0)

// schedule is one key's bookkeeping inside a bucket: how many more full
// revolutions of the wheel must pass before this entry is actually due.
// This is what lets a ring with as few as one bucket still host TTLs that
// span many revolutions (spec.md §4.3).
type schedule struct {
	rounds uint32
}

// Wheel is a ring of n buckets advanced by a logical cursor.
//
// Spec.md §5 resolves contention on a single key's slot through that key's
// per-key lock alone, but two *different* keys hashed into the same bucket
// can still race on the bucket's underlying map from separate goroutines —
// Go maps are not safe for concurrent access even across disjoint keys. mu
// guards exactly that structural access; it is an implementation necessity
// the abstract spec doesn't need to mention, not an extra serialization
// point for same-key operations (those are already exclusive).
type Wheel[K comparable] struct {
	mu      sync.Mutex
	n       int
	cursor  int
	buckets []map[K]schedule
}

// New builds a Wheel with n buckets (clamped to at least 1).
func New[K comparable](n int) *Wheel[K] {
	if n < 1 {
		n = 1
	}
	w := &Wheel[K]{n: n, buckets: make([]map[K]schedule, n)}
	for i := range w.buckets {
		w.buckets[i] = make(map[K]schedule)
	}
	return w
}

// Buckets returns the configured ring size.
func (w *Wheel[K]) Buckets() int { return w.n }

// ticksFor converts a TTL expressed in wheel ticks (already
// ceil-divided by the caller from a wall-clock duration) into a
// (bucketIndex, rounds) pair relative to the current cursor.
func (w *Wheel[K]) ticksFor(ticks int) (bucketIndex int, rounds uint32) {
	if ticks < 1 {
		ticks = 1
	}
	bucketIndex = (w.cursor + ticks) % w.n
	rounds = uint32((ticks - 1) / w.n)
	return bucketIndex, rounds
}

// Schedule places key into the bucket ticks ticks from now (ticks = ceil(T
// / tick period), computed by the caller since the wheel does not know
// wall-clock time itself). If oldSlot is not SlotNone, the key's prior
// bucket entry is removed first. Returns the new slot (bucket index) to be
// stored as the key's expiry back-reference.
func (w *Wheel[K]) Schedule(key K, oldSlot uint32, ticks int) uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if oldSlot != SlotNone && int(oldSlot) < w.n {
		delete(w.buckets[oldSlot], key)
	}
	bucketIndex, rounds := w.ticksFor(ticks)
	w.buckets[bucketIndex][key] = schedule{rounds: rounds}
	return uint32(bucketIndex)
}

// Unschedule removes key's entry from slot, if present. Used when a key is
// deleted or overwritten with TTL "infinity".
func (w *Wheel[K]) Unschedule(key K, slot uint32) {
	if slot == SlotNone || int(slot) >= w.n {
		return
	}
	w.mu.Lock()
	delete(w.buckets[slot], key)
	w.mu.Unlock()
}

// Advance moves the cursor forward one tick and drains the bucket it now
// points at, returning the keys due for expiry (their revolution counter
// reached zero). Keys still mid-revolution are decremented in place and
// left in the bucket for the next lap. The returned bucket index is the
// slot the facade should compare each due key's current Store slot
// against before deleting it, per spec.md §4.3's race-tolerant drain.
func (w *Wheel[K]) Advance() (bucketIndex int, due []K) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cursor = (w.cursor + 1) % w.n
	bucket := w.buckets[w.cursor]

	for key, sched := range bucket {
		if sched.rounds > 0 {
			sched.rounds--
			bucket[key] = sched
			continue
		}
		due = append(due, key)
		delete(bucket, key)
	}
	return w.cursor, due
}

// TicksFromDuration converts a wall-clock duration and tick period into the
// ceil(T/P) tick count the spec's scheduling formula requires, with a
// floor of 1 tick and a ceiling that avoids integer overflow for
// durations many revolutions long.
func TicksFromDuration(ttl, period int64) int {
	if period <= 0 {
		period = 1
	}
	ticks := (ttl + period - 1) / period
	if ticks < 1 {
		ticks = 1
	}
	if ticks > math.MaxInt32 {
		ticks = math.MaxInt32
	}
	return int(ticks)
}
