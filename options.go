package concache

import (
	"time"

	"github.com/concache/concache/internal/store"
)

/*
Option configures a Cache via the functional-options pattern, the same
shape the teacher's options.go uses for its single WithCleanupInterval
knob — generalized here to spec.md §6's full configuration surface.

    c, err := New[string, int](
        WithTTLCheckInterval[string, int](10*time.Millisecond),
        WithGlobalTTL[string, int](Finite(50*time.Millisecond)),
        WithTouchOnRead[string, int](true),
    )

Options only record intent; New validates the assembled config against
the table in spec.md §4.4 before anything starts running.
*/
type Option[K comparable, V any] func(*config[K, V])

type config[K comparable, V any] struct {
	ttlIntervalSet bool
	ttlDisabled    bool
	ttlInterval    time.Duration

	globalTTLSet bool
	globalTTL    TTL

	touchOnRead bool
	timeSize    int
	mode        store.Mode
	bagEqual    func(a, b V) bool
	shardCount  int
	callback    func(Event[K, V])
	name        string
}

func defaultConfig[K comparable, V any]() *config[K, V] {
	return &config[K, V]{
		timeSize:   1,
		mode:       store.ModeSet,
		shardCount: 16,
	}
}

// WithTTLCheckInterval enables the TTL engine with tick period d.
func WithTTLCheckInterval[K comparable, V any](d time.Duration) Option[K, V] {
	return func(c *config[K, V]) {
		c.ttlIntervalSet = true
		c.ttlDisabled = false
		c.ttlInterval = d
	}
}

// WithTTLDisabled turns the TTL engine off: keys never expire regardless
// of any TTL passed to a write, unless WithGlobalTTL is also (invalidly)
// supplied, which New rejects.
func WithTTLDisabled[K comparable, V any]() Option[K, V] {
	return func(c *config[K, V]) {
		c.ttlIntervalSet = true
		c.ttlDisabled = true
	}
}

// WithGlobalTTL sets the default TTL applied to raw (non-Item) values
// written while the TTL engine is enabled.
func WithGlobalTTL[K comparable, V any](ttl TTL) Option[K, V] {
	return func(c *config[K, V]) {
		c.globalTTLSet = true
		c.globalTTL = ttl
	}
}

// WithTouchOnRead makes a successful Get reschedule the key with the
// cache's global TTL, the way Touch does. The TTL of an Item write is not
// kept: a key written with a finite Item TTL is rescheduled with the global
// TTL, and a key with no expiry scheduled stays unscheduled.
func WithTouchOnRead[K comparable, V any](enabled bool) Option[K, V] {
	return func(c *config[K, V]) { c.touchOnRead = enabled }
}

// WithTimeSize sets the number of buckets in the time wheel (at least 1).
func WithTimeSize[K comparable, V any](n int) Option[K, V] {
	return func(c *config[K, V]) { c.timeSize = n }
}

// WithMode selects the storage mode: set, bag, or duplicate_bag.
func WithMode[K comparable, V any](mode store.Mode) Option[K, V] {
	return func(c *config[K, V]) { c.mode = mode }
}

// WithBagEqual supplies the (key, value) equality test ModeBag uses to
// decide whether an inserted value already exists for the key, the way
// ETS bag tables suppress a duplicate insert. Unset, ModeBag falls back to
// reflect.DeepEqual; supply this when V is expensive or unsuitable to
// deep-compare (e.g. it holds a function or channel). Ignored outside
// ModeBag.
func WithBagEqual[K comparable, V any](equal func(a, b V) bool) Option[K, V] {
	return func(c *config[K, V]) { c.bagEqual = equal }
}

// WithShardCount sets the concurrency hint ("ets_options" in spec.md §6)
// controlling how many independent shards the Store and Lock Manager use.
func WithShardCount[K comparable, V any](n int) Option[K, V] {
	return func(c *config[K, V]) { c.shardCount = n }
}

// WithCallback registers the fan-out sink for update/delete events (C5).
func WithCallback[K comparable, V any](fn func(Event[K, V])) Option[K, V] {
	return func(c *config[K, V]) { c.callback = fn }
}

// WithName registers the cache under name in the package-level registry
// so Lookup(name) can resolve a handle to it later.
func WithName[K comparable, V any](name string) Option[K, V] {
	return func(c *config[K, V]) { c.name = name }
}
