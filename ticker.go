package concache

import (
	"context"
	"time"
)

/*
runTicker is the TTL engine's background worker: the Go rendering of
spec.md §4.3's drain step, in the same shape as the teacher's janitor — a
time.Ticker, a goroutine, a stop channel — except each tick drains the
Time Wheel's newly-current bucket instead of scanning a linked list.

For every key the wheel hands back as due, the drain:

 1. acquires that key's lock (blocking is fine here; the ticker is not on
    any caller's critical path),
 2. re-reads the key's current slot from the Store and compares it to the
    bucket the wheel just drained — if they differ, the key was
    rescheduled or deleted after the wheel produced it and this is a
    tombstone reference (I2); it is dropped with no further action,
 3. otherwise the key truly is due: delete it from the Store and publish
    an expiration delete event, counted separately from explicit deletes.

Only started when the TTL engine is enabled; New closes stopped
immediately otherwise so Close never blocks waiting on a ticker that was
never launched.
*/
func (c *Cache[K, V]) runTicker() {
	defer close(c.stopped)

	ticker := time.NewTicker(c.ttlInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.drainDueBucket()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache[K, V]) drainDueBucket() {
	bucketIndex, due := c.wheel.Advance()
	for _, key := range due {
		c.expireKey(key, uint32(bucketIndex))
	}
}

func (c *Cache[K, V]) expireKey(key K, drainedSlot uint32) {
	_, release, err := c.locks.Acquire(context.Background(), key)
	if err != nil {
		return
	}
	defer release()

	slot, ok := c.store.Slot(key)
	if !ok || slot != drainedSlot {
		return // tombstone: rescheduled or deleted since the wheel produced it
	}

	c.store.Delete(key)
	c.stats.expirations.Add(1)
	c.publishDelete(key)
}
