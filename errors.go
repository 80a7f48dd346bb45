package concache

import "github.com/pkg/errors"

// Logical-absence errors (spec.md §7): always returned, never raised.
var (
	// ErrAlreadyExists is returned by InsertNew when the key (or, in bag
	// modes, any value for the key) is already present.
	ErrAlreadyExists = errors.New("concache: key already exists")

	// ErrNotExisting is returned by UpdateExisting when the key is absent.
	ErrNotExisting = errors.New("concache: key does not exist")

	// ErrLocked is returned by TryIsolated when another owner currently
	// holds the key's lock.
	ErrLocked = errors.New("concache: key is locked")

	// ErrTimeout is returned by IsolatedTimeout when its timed acquisition
	// does not obtain the lock before its deadline.
	ErrTimeout = errors.New("concache: timed out waiting for key lock")

	// ErrNoSuchCache is the Go rendering of spec.md §6's "noproc
	// equivalent" for an unregistered cache name.
	ErrNoSuchCache = errors.New("concache: no cache registered under that name")
)

// ArgumentError reports a programming error in how the cache was built or
// called — spec.md §7's "input-shape errors". New returns it for an invalid
// ttl_check_interval / global_ttl combination; Update, UpdateExisting and
// GetOrStore panic with it on a bag/duplicate_bag cache so the caller's
// stack trace points at the mistake.
type ArgumentError struct {
	Msg string
}

func (e *ArgumentError) Error() string { return e.Msg }
