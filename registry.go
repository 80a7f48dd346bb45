package concache

import "sync"

// registry backs spec.md §6's name-registration handle variants ("bare
// identifier", "(global, id)", "(via, registry, id)"). Go has one process
// per binary and no built-in process registry the way the spec's source
// runtime does, so those three variants collapse to the idiomatic
// rendering: one package-level, string-keyed registry that any part of
// the process can resolve a cache handle from by name.
var registry sync.Map // name string -> any (*Cache[K, V])

// register records c under name, replacing any previous registrant.
// Called by New when an Option supplied WithName.
func register(name string, c any) {
	if name == "" {
		return
	}
	registry.Store(name, c)
}

// unregister removes name's entry, if it is still c. Called by Close so a
// stale handle can't be resolved after shutdown.
func unregister(name string, c any) {
	if name == "" {
		return
	}
	if cur, ok := registry.Load(name); ok && cur == c {
		registry.Delete(name)
	}
}

// Lookup resolves a cache previously registered under name via
// WithName(name). It fails with ErrNoSuchCache if nothing is registered
// under that name, or if the registrant's type parameters don't match
// K and V — the Go analogue of spec.md §6's "noproc-equivalent failure"
// for an unregistered or mismatched handle.
func Lookup[K comparable, V any](name string) (*Cache[K, V], error) {
	v, ok := registry.Load(name)
	if !ok {
		return nil, ErrNoSuchCache
	}
	c, ok := v.(*Cache[K, V])
	if !ok {
		return nil, ErrNoSuchCache
	}
	return c, nil
}
