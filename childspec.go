package concache

// ChildSpec is the Go rendering of spec.md §6's "child specification":
// a descriptor a host supervision tree can use to start (and restart) a
// cache as one of its own children. A caller with no supervisor of its
// own simply never looks at this type — it exists because the external
// interface spec.md describes calls for it, not because this package
// needs it internally.
type ChildSpec[K comparable, V any] struct {
	ID    string
	Start func() (*Cache[K, V], error)
	Type  ChildType
}

// ChildType mirrors the fixed "type = supervisor" tag spec.md §6 assigns
// to the cache's child specification.
type ChildType string

// TypeSupervisor is the only ChildType a Cache's spec ever carries.
const TypeSupervisor ChildType = "supervisor"

// NewChildSpec builds a ChildSpec that starts a cache with opts under id.
func NewChildSpec[K comparable, V any](id string, opts ...Option[K, V]) ChildSpec[K, V] {
	return ChildSpec[K, V]{
		ID:    id,
		Start: func() (*Cache[K, V], error) { return New[K, V](opts...) },
		Type:  TypeSupervisor,
	}
}
