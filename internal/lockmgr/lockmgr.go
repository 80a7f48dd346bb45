// Package lockmgr implements the cache's per-key lock manager (the C2
// component): a mapping from key to lock holder that grants one owner at a
// time per key, independent across keys, with blocking, try, and
// time-bounded acquisition, and reentrancy for a single owner.
//
// Go has no native goroutine-local storage, so "owner" identity is a token
// carried on context.Context (minted the first time a call chain enters the
// lock manager) rather than a thread/fiber id — the re-architecture path
// the spec itself calls out for systems languages without a task-local
// primitive. Equal tokens on the same key increment a reentrancy depth
// instead of blocking.
package lockmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrLocked is returned by TryAcquire when another owner currently holds
// the key.
var ErrLocked = errors.New("lockmgr: locked")

// ErrTimeout is returned by a timed acquisition that could not obtain the
// lock before its deadline.
var ErrTimeout = errors.New("lockmgr: timed out waiting for lock")

type ownerTokenKey struct{}

// ownerToken returns the owner token carried on ctx, minting and attaching
// a fresh one if none is present yet.
func ownerToken(ctx context.Context) (context.Context, string) {
	if v := ctx.Value(ownerTokenKey{}); v != nil {
		return ctx, v.(string)
	}
	token := uuid.NewString()
	return context.WithValue(ctx, ownerTokenKey{}, token), token
}

// waiter is one pending acquisition request; its channel is sent to
// exactly once, by whichever goroutine hands off ownership to it.
type waiter struct {
	token string
	ch    chan struct{}
}

// keyLock is the bookkeeping record for one contended (or momentarily held)
// key.
type keyLock struct {
	mu      sync.Mutex
	owner   string
	depth   int
	waiters []*waiter
}

type shard[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*keyLock
}

// Manager is a sharded per-key lock manager.
type Manager[K comparable] struct {
	shards []*shard[K]
}

// New builds a Manager with the given shard count (clamped to at least 1).
func New[K comparable](shardCount int) *Manager[K] {
	if shardCount < 1 {
		shardCount = 1
	}
	m := &Manager[K]{shards: make([]*shard[K], shardCount)}
	for i := range m.shards {
		m.shards[i] = &shard[K]{entries: make(map[K]*keyLock)}
	}
	return m
}

func (m *Manager[K]) shardFor(key K) *shard[K] {
	h := xxhash.Sum64String(fmt.Sprint(key))
	return m.shards[h%uint64(len(m.shards))]
}

func (sh *shard[K]) lockFor(key K) *keyLock {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	kl, ok := sh.entries[key]
	if !ok {
		kl = &keyLock{}
		sh.entries[key] = kl
	}
	return kl
}

// Release is returned by a successful acquisition; calling it ends the
// critical section and hands ownership to the next waiter, if any.
type Release func()

// Acquire blocks until the caller (identified by ctx's owner token, minted
// on first use) holds key, or ctx is cancelled. The returned context
// carries the owner token for any nested Acquire/TryAcquire/Timed call
// made from inside the critical section, which is how reentrancy on the
// same key is detected.
func (m *Manager[K]) Acquire(ctx context.Context, key K) (context.Context, Release, error) {
	ctx, token := ownerToken(ctx)
	sh := m.shardFor(key)
	kl := sh.lockFor(key)

	kl.mu.Lock()
	if kl.depth == 0 {
		kl.owner = token
		kl.depth = 1
		kl.mu.Unlock()
		return ctx, m.releaser(sh, key, kl, token), nil
	}
	if kl.owner == token {
		kl.depth++
		kl.mu.Unlock()
		return ctx, m.releaser(sh, key, kl, token), nil
	}

	w := &waiter{token: token, ch: make(chan struct{}, 1)}
	kl.waiters = append(kl.waiters, w)
	kl.mu.Unlock()

	select {
	case <-w.ch:
		return ctx, m.releaser(sh, key, kl, token), nil
	case <-ctx.Done():
		if removeWaiter(kl, w) {
			return ctx, nil, ctx.Err()
		}
		// Ownership was handed to us in the race between our cancellation
		// and a concurrent release; take it, then immediately give it away
		// so the next waiter in line isn't starved by our cancellation.
		<-w.ch
		m.release(sh, key, kl, token)
		return ctx, nil, ctx.Err()
	}
}

// TryAcquire acquires key without blocking. It returns ErrLocked if another
// owner currently holds it.
func (m *Manager[K]) TryAcquire(ctx context.Context, key K) (context.Context, Release, error) {
	ctx, token := ownerToken(ctx)
	sh := m.shardFor(key)
	kl := sh.lockFor(key)

	kl.mu.Lock()
	switch {
	case kl.depth == 0:
		kl.owner = token
		kl.depth = 1
		kl.mu.Unlock()
		return ctx, m.releaser(sh, key, kl, token), nil
	case kl.owner == token:
		kl.depth++
		kl.mu.Unlock()
		return ctx, m.releaser(sh, key, kl, token), nil
	default:
		kl.mu.Unlock()
		return ctx, nil, ErrLocked
	}
}

// TimedAcquire behaves like Acquire but additionally fails with ErrTimeout
// if the lock is not granted within d.
func (m *Manager[K]) TimedAcquire(ctx context.Context, key K, d time.Duration) (context.Context, Release, error) {
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	rctx, release, err := m.Acquire(tctx, key)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ctx, nil, ErrTimeout
		}
		return ctx, nil, err
	}
	// Detach the returned context from the timeout so the critical section
	// isn't cancelled the instant the acquire deadline passes.
	token, _ := rctx.Value(ownerTokenKey{}).(string)
	return context.WithValue(ctx, ownerTokenKey{}, token), release, nil
}

func (m *Manager[K]) releaser(sh *shard[K], key K, kl *keyLock, token string) Release {
	var once sync.Once
	return func() {
		once.Do(func() { m.release(sh, key, kl, token) })
	}
}

func (m *Manager[K]) release(sh *shard[K], key K, kl *keyLock, token string) {
	kl.mu.Lock()
	if kl.owner != token || kl.depth == 0 {
		kl.mu.Unlock()
		return
	}
	kl.depth--
	if kl.depth > 0 {
		kl.mu.Unlock()
		return
	}

	if len(kl.waiters) > 0 {
		next := kl.waiters[0]
		kl.waiters = kl.waiters[1:]
		kl.owner = next.token
		kl.depth = 1
		kl.mu.Unlock()
		next.ch <- struct{}{}
		return
	}

	kl.owner = ""
	kl.mu.Unlock()

	sh.mu.Lock()
	kl.mu.Lock()
	if kl.depth == 0 && len(kl.waiters) == 0 {
		delete(sh.entries, key)
	}
	kl.mu.Unlock()
	sh.mu.Unlock()
}

func removeWaiter(kl *keyLock, target *waiter) bool {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	for i, w := range kl.waiters {
		if w == target {
			kl.waiters = append(kl.waiters[:i], kl.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// Locked reports whether key is currently held by any owner. Intended for
// tests and diagnostics, not for synchronization decisions.
func (m *Manager[K]) Locked(key K) bool {
	sh := m.shardFor(key)
	sh.mu.Lock()
	kl, ok := sh.entries[key]
	sh.mu.Unlock()
	if !ok {
		return false
	}
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return kl.depth > 0
}
