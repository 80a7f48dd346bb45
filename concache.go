package concache

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/concache/concache/internal/lockmgr"
	"github.com/concache/concache/internal/store"
	"github.com/concache/concache/internal/timewheel"
)

/*
Cache is the public facade (C4): the thing a caller actually holds. It owns
one Store (C1), one Lock Manager (C2), an optional Time Wheel (C3), and a
callback dispatcher (C5), the same ownership shape as the teacher's Cache —
data + lru + mu + stopChan all folded into one struct — generalized from a
single global mutex to per-key locking plus a lock-free table.

================================================================================
OPERATION SHAPES
================================================================================

Two families of operation, split by whether they may block:

  - get/size and every Dirty* variant never touch the Lock Manager.
  - put/insert_new/update/update_existing/delete/touch/get_or_store/isolated/
    try_isolated acquire the target key's lock first.

A write always does, in order: acquire lock (if not dirty) -> (re)schedule or
unschedule Time Wheel -> mutate Store -> publish callback -> release lock.
Publishing inside the critical section keeps same-key events in mutation
order; it is a non-blocking enqueue to the dispatcher, so a slow user hook
never holds up the next waiter on that key.
*/
type Cache[K comparable, V any] struct {
	id   string
	name string

	store *store.Store[K, V]
	locks *lockmgr.Manager[K]
	wheel *timewheel.Wheel[K]

	ttlEnabled  bool
	ttlInterval time.Duration
	globalTTL   TTL
	touchOnRead bool

	dispatcher *dispatcher[K, V]
	stats      statCounters

	stop    chan struct{}
	stopped chan struct{}
}

// New builds a Cache from opts. It validates the ttl_check_interval /
// global_ttl combination per the table in spec.md §4.4 before starting
// anything, the same fail-fast-at-construction discipline the teacher's New
// applies to its own (much smaller) option set.
func New[K comparable, V any](opts ...Option[K, V]) (*Cache[K, V], error) {
	cfg := defaultConfig[K, V]()
	for _, opt := range opts {
		opt(cfg)
	}

	if err := validateTTLConfig(cfg); err != nil {
		return nil, err
	}

	c := &Cache[K, V]{
		id:          uuidOrName(cfg.name),
		name:        cfg.name,
		store:       store.New[K, V](cfg.mode, cfg.shardCount, cfg.bagEqual),
		locks:       lockmgr.New[K](cfg.shardCount),
		ttlEnabled:  cfg.ttlIntervalSet && !cfg.ttlDisabled,
		ttlInterval: cfg.ttlInterval,
		globalTTL:   cfg.globalTTL,
		touchOnRead: cfg.touchOnRead,
		dispatcher:  newDispatcher(cfg.callback),
		stop:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	if !cfg.globalTTLSet {
		c.globalTTL = TTLInfinity
	}

	if c.ttlEnabled {
		c.wheel = timewheel.New[K](cfg.timeSize)
		go c.runTicker()
	} else {
		close(c.stopped)
	}

	register(cfg.name, c)
	return c, nil
}

// validateTTLConfig implements each row of the table in spec.md §4.4. Every
// failure here is an input-shape error (spec.md §7), reported as an
// *ArgumentError that New returns before starting anything: it reflects a
// programming mistake in how the cache was constructed rather than a
// runtime condition a caller should branch on.
func validateTTLConfig[K comparable, V any](cfg *config[K, V]) error {
	switch {
	case !cfg.ttlIntervalSet && !cfg.globalTTLSet:
		return &ArgumentError{Msg: "ttl_check_interval must be supplied"}
	case !cfg.ttlIntervalSet && cfg.globalTTLSet:
		return &ArgumentError{Msg: "ttl_check_interval must be supplied"}
	case cfg.ttlIntervalSet && !cfg.ttlDisabled && !cfg.globalTTLSet:
		return &ArgumentError{Msg: "global_ttl must be supplied"}
	case cfg.ttlIntervalSet && cfg.ttlDisabled && cfg.globalTTLSet:
		return &ArgumentError{Msg: "either remove your global_ttl or set ttl_check_interval to a time"}
	}
	return nil
}

func uuidOrName(name string) string {
	if name != "" {
		return name
	}
	return newAnonymousID()
}

// Close stops the TTL ticker (if running) and the callback dispatcher, and
// removes the cache from the name registry. It is safe to call once; a
// second call is a no-op.
func (c *Cache[K, V]) Close() {
	select {
	case <-c.stop:
		return
	default:
		close(c.stop)
	}
	<-c.stopped
	c.dispatcher.close()
	unregister(c.name, c)
}

// Size reports the number of entries currently in the Store (C1 §4.1's
// size, counting each bag value separately). It never blocks.
func (c *Cache[K, V]) Size() int { return c.store.Size() }

// requireSingleValue enforces I4: update/update_existing/get_or_store are
// refused outright on bag and duplicate_bag caches.
func (c *Cache[K, V]) requireSingleValue(op string) {
	if c.store.Mode().Multi() {
		panic(&ArgumentError{Msg: "concache: " + op + " is not supported for bag/duplicate_bag caches"})
	}
}

// resolveTTL turns a raw value-or-Item write argument into the value to
// store and the TTL policy to apply, falling back to the cache's
// global_ttl for a bare value.
func (c *Cache[K, V]) resolveTTL(in any) (V, TTL) {
	if item, ok := in.(Item[V]); ok {
		return item.Value, item.TTL
	}
	return in.(V), c.globalTTL
}

// scheduleAfterWrite applies a resolved TTL policy to key's wheel entry
// after a Store mutation, returning the slot to persist back onto the
// Store entry. oldSlot is the key's prior back-reference, or
// store.SlotNone for a fresh key.
func (c *Cache[K, V]) scheduleAfterWrite(key K, ttl TTL, oldSlot uint32) uint32 {
	if !c.ttlEnabled || ttl.IsInfinite() {
		if c.ttlEnabled && oldSlot != store.SlotNone {
			c.wheel.Unschedule(key, oldSlot)
		}
		return store.SlotNone
	}
	if ttl.IsNoUpdate() {
		return oldSlot
	}
	ticks := timewheel.TicksFromDuration(int64(ttl.Duration()), int64(c.ttlInterval))
	return c.wheel.Schedule(key, oldSlot, ticks)
}

func (c *Cache[K, V]) publishUpdate(key K, value V) {
	c.dispatcher.publish(Event[K, V]{Kind: EventUpdate, CacheID: c.id, Key: key, Value: value})
}

func (c *Cache[K, V]) publishDelete(key K) {
	var zero V
	c.dispatcher.publish(Event[K, V]{Kind: EventDelete, CacheID: c.id, Key: key, Value: zero})
}

// Get reads key without ever blocking or failing (I5). A hit with
// touch_on_read reschedules the key's TTL as a side effect.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	value, values, ok := c.store.Lookup(key)
	if !ok {
		c.stats.misses.Add(1)
		var zero V
		return zero, false
	}
	c.stats.hits.Add(1)
	if c.touchOnRead {
		c.rescheduleOnRead(key)
	}
	if c.store.Mode().Multi() {
		if len(values) == 0 {
			var zero V
			return zero, false
		}
		return values[0], true
	}
	return value, true
}

// Values returns every value stored under key in bag/duplicate_bag mode,
// in insertion order (P3). In set mode it returns at most one element.
func (c *Cache[K, V]) Values(key K) []V {
	value, values, ok := c.store.Lookup(key)
	if !ok {
		return nil
	}
	if c.store.Mode().Multi() {
		return values
	}
	return []V{value}
}

func (c *Cache[K, V]) rescheduleOnRead(key K) {
	oldSlot, ok := c.store.Slot(key)
	if !ok || oldSlot == store.SlotNone {
		return
	}
	newSlot := c.scheduleAfterWrite(key, c.globalTTL, oldSlot)
	if newSlot != oldSlot {
		c.store.SetSlot(key, newSlot)
	}
}

// Put stores in (a raw value or an Item) under key, acquiring key's lock
// first. In bag/duplicate_bag mode this appends a value instead of
// replacing.
func (c *Cache[K, V]) Put(ctx context.Context, key K, in any) error {
	_, release, err := c.locks.Acquire(ctx, key)
	if err != nil {
		return translateLockErr(err)
	}
	defer release()
	c.putLocked(key, in)
	return nil
}

// DirtyPut behaves like Put but bypasses the Lock Manager entirely (the
// dirty_* family spec.md §4.4 calls for): callers accept the race in
// exchange for never blocking.
func (c *Cache[K, V]) DirtyPut(key K, in any) {
	c.putLocked(key, in)
}

func (c *Cache[K, V]) putLocked(key K, in any) {
	value, ttl := c.resolveTTL(in)
	if c.store.Contains(key, value) {
		// ModeBag: the (key, value) pair already exists, so the write is a
		// no-op per ETS bag semantics — no schedule change, no callback.
		return
	}
	oldSlot, _ := c.store.Slot(key)
	slot := c.scheduleAfterWrite(key, ttl, oldSlot)
	c.store.Insert(key, value, slot)
	c.publishUpdate(key, value)
}

// InsertNew stores value under key only if it does not already exist,
// returning ErrAlreadyExists otherwise.
// The callback fires only on success (P4).
func (c *Cache[K, V]) InsertNew(ctx context.Context, key K, in any) error {
	_, release, err := c.locks.Acquire(ctx, key)
	if err != nil {
		return translateLockErr(err)
	}
	defer release()
	return c.insertNewLocked(key, in)
}

// DirtyInsertNew is InsertNew's lock-bypassing variant.
func (c *Cache[K, V]) DirtyInsertNew(key K, in any) error {
	return c.insertNewLocked(key, in)
}

func (c *Cache[K, V]) insertNewLocked(key K, in any) error {
	if c.store.Exists(key) {
		return ErrAlreadyExists
	}
	value, ttl := c.resolveTTL(in)
	slot := c.scheduleAfterWrite(key, ttl, store.SlotNone)
	if !c.store.InsertNew(key, value, slot) {
		if c.ttlEnabled && slot != store.SlotNone {
			c.wheel.Unschedule(key, slot)
		}
		return ErrAlreadyExists
	}
	c.publishUpdate(key, value)
	return nil
}

// UpdateFunc is the read-modify-write callback passed to Update and
// UpdateExisting. present is false when the key did not exist (Update
// only — UpdateExisting never invokes fn in that case). ctx carries the
// same owner token as the context that granted fn's caller the key's
// lock, so a nested Put/Touch/Update/Isolated call for the *same* key
// from inside fn reenters instead of deadlocking (P6), the same guarantee
// Isolated's fn gets. Returning a non-nil error aborts the write and is
// propagated to the caller verbatim, matching spec.md §4.4's "{error,
// reason}" path; Go's static return type makes the dynamic-language
// "invalid return value" failure mode (spec.md §9's open question)
// unreachable by construction.
type UpdateFunc[V any] func(ctx context.Context, current V, present bool) (V, error)

// Update runs fn against key's current value (set mode only, I4) and
// stores its result under the same per-key lock fn ran in. If the key was
// absent, fn is invoked with the zero value and present=false; on success
// the key is created with global_ttl unless fn's returned value is an
// Item. fn's error, if any, propagates and nothing is mutated.
func (c *Cache[K, V]) Update(ctx context.Context, key K, fn UpdateFunc[V]) error {
	c.requireSingleValue("update")
	rctx, release, err := c.locks.Acquire(ctx, key)
	if err != nil {
		return translateLockErr(err)
	}
	defer release()
	return c.updateLocked(rctx, key, fn, false)
}

// UpdateExisting is Update restricted to keys that already exist: it
// returns ErrNotExisting without invoking fn when the key is absent.
func (c *Cache[K, V]) UpdateExisting(ctx context.Context, key K, fn UpdateFunc[V]) error {
	c.requireSingleValue("update_existing")
	rctx, release, err := c.locks.Acquire(ctx, key)
	if err != nil {
		return translateLockErr(err)
	}
	defer release()
	return c.updateLocked(rctx, key, fn, true)
}

func (c *Cache[K, V]) updateLocked(ctx context.Context, key K, fn UpdateFunc[V], requireExisting bool) error {
	current, _, ok := c.store.Lookup(key)
	if requireExisting && !ok {
		return ErrNotExisting
	}
	next, err := fn(ctx, current, ok)
	if err != nil {
		return err
	}
	var in any = next
	if item, isItem := anyAsItem[V](next); isItem {
		in = item
	}
	oldSlot, _ := c.store.Slot(key)
	value, ttl := c.resolveTTL(in)
	slot := c.scheduleAfterWrite(key, ttl, oldSlot)
	c.store.Insert(key, value, slot)
	c.publishUpdate(key, value)
	return nil
}

// anyAsItem reports whether next itself represents an Item[V] written
// through a plain V-typed return (UpdateFunc always returns V, so callers
// that want per-call TTL control on an update return an Item stored as V
// — this only applies when V is instantiated as an interface type wide
// enough to hold Item[V], which is the same affordance spec.md's dynamic
// update callback has by default).
func anyAsItem[V any](v any) (Item[V], bool) {
	item, ok := v.(Item[V])
	return item, ok
}

// Delete removes key (idempotent: deleting an absent key still succeeds),
// unschedules any TTL entry, and fires the delete callback.
func (c *Cache[K, V]) Delete(ctx context.Context, key K) error {
	_, release, err := c.locks.Acquire(ctx, key)
	if err != nil {
		return translateLockErr(err)
	}
	defer release()
	c.deleteLocked(key)
	return nil
}

// DirtyDelete is Delete's lock-bypassing variant.
func (c *Cache[K, V]) DirtyDelete(key K) {
	c.deleteLocked(key)
}

func (c *Cache[K, V]) deleteLocked(key K) {
	if c.ttlEnabled {
		if slot, ok := c.store.Slot(key); ok && slot != store.SlotNone {
			c.wheel.Unschedule(key, slot)
		}
	}
	c.store.Delete(key)
	c.publishDelete(key)
}

// Touch reschedules key's TTL with the cache's global TTL, without changing
// its value. A no-op if the key does not exist or has no expiry scheduled
// (written with TTLInfinity, or with TTLNoUpdate while it had none).
func (c *Cache[K, V]) Touch(ctx context.Context, key K) error {
	_, release, err := c.locks.Acquire(ctx, key)
	if err != nil {
		return translateLockErr(err)
	}
	defer release()
	c.touchLocked(key)
	return nil
}

// DirtyTouch is Touch's lock-bypassing variant.
func (c *Cache[K, V]) DirtyTouch(key K) {
	c.touchLocked(key)
}

func (c *Cache[K, V]) touchLocked(key K) {
	if !c.store.Exists(key) {
		return
	}
	oldSlot, _ := c.store.Slot(key)
	if oldSlot == store.SlotNone {
		return
	}
	newSlot := c.scheduleAfterWrite(key, c.globalTTL, oldSlot)
	if newSlot != oldSlot {
		c.store.SetSlot(key, newSlot)
	}
}

// Producer supplies a value to GetOrStore when the key is absent. ctx
// carries the same owner token as the lock GetOrStore holds while calling
// produce, so a nested cache call for the same key reenters rather than
// deadlocking (P6).
type Producer[V any] func(ctx context.Context) (V, error)

// GetOrStore implements the spec's fast/slow path: an unlocked Get first,
// and only on a miss does it acquire the lock, re-check (another owner may
// have raced it in), and on a confirmed miss call produce, store its
// result, and fire the callback.
func (c *Cache[K, V]) GetOrStore(ctx context.Context, key K, produce Producer[V]) (V, error) {
	c.requireSingleValue("get_or_store")
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	rctx, release, err := c.locks.Acquire(ctx, key)
	if err != nil {
		var zero V
		return zero, translateLockErr(err)
	}
	defer release()

	if value, _, ok := c.store.Lookup(key); ok {
		return value, nil
	}
	value, err := produce(rctx)
	if err != nil {
		var zero V
		return zero, err
	}
	slot := c.scheduleAfterWrite(key, c.globalTTL, store.SlotNone)
	c.store.Insert(key, value, slot)
	c.publishUpdate(key, value)
	return value, nil
}

// IsolatedFunc is arbitrary caller work run under a key's lock by Isolated
// or TryIsolated; its result is returned to the caller verbatim.
type IsolatedFunc[R any] func(ctx context.Context) (R, error)

// Isolated runs fn under key's lock, blocking until it is granted. Nested
// calls for the same key from inside fn (via the context Isolated passes
// it) are reentrant rather than deadlocking (P6).
func (c *Cache[K, V]) Isolated(ctx context.Context, key K, fn IsolatedFunc[any]) (any, error) {
	rctx, release, err := c.locks.Acquire(ctx, key)
	if err != nil {
		return nil, translateLockErr(err)
	}
	defer release()
	return fn(rctx)
}

// IsolatedTimeout is Isolated with a bound on how long to wait for the
// lock before giving up with ErrTimeout (S8); fn is never entered on
// timeout.
func (c *Cache[K, V]) IsolatedTimeout(ctx context.Context, key K, d time.Duration, fn IsolatedFunc[any]) (any, error) {
	rctx, release, err := c.locks.TimedAcquire(ctx, key, d)
	if err != nil {
		return nil, translateLockErr(err)
	}
	defer release()
	return fn(rctx)
}

// TryIsolated runs fn under key's lock only if it is immediately free,
// returning ErrLocked without running fn otherwise (P8).
func (c *Cache[K, V]) TryIsolated(ctx context.Context, key K, fn IsolatedFunc[any]) (any, error) {
	rctx, release, err := c.locks.TryAcquire(ctx, key)
	if err != nil {
		return nil, translateLockErr(err)
	}
	defer release()
	return fn(rctx)
}

// Stats returns a point-in-time snapshot of the cache's hit/miss/expiry
// counters.
func (c *Cache[K, V]) Stats() Stats { return c.stats.snapshot() }

func translateLockErr(err error) error {
	switch {
	case errors.Is(err, lockmgr.ErrLocked):
		return ErrLocked
	case errors.Is(err, lockmgr.ErrTimeout):
		return ErrTimeout
	default:
		return err
	}
}
