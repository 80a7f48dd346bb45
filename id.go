package concache

import "github.com/google/uuid"

// newAnonymousID mints a cache identity for the CacheID field of published
// Events when the cache was never given a name via WithName. Grounded in
// the same google/uuid dependency the lock manager already uses to mint
// owner tokens.
func newAnonymousID() string {
	return uuid.NewString()
}
