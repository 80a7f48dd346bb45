package concache

import "sync/atomic"

/*
Stats tracks runtime operational counters for a Cache.

Unlike the teacher's Stats (a plain struct mutated under the cache's
single mutex), concache has no single cache-wide lock to piggyback on —
writes are serialized per key, not globally — so each counter is its own
atomic.Uint64. Stats() assembles a point-in-time snapshot; the individual
counters can tick between reads of different fields, which is the same
tradeoff any lock-free metrics counter makes.

  - Hits        → Get calls that found a live key.
  - Misses      → Get calls that found nothing (absent or expired).
  - Expirations → keys removed by the time wheel's ticker, as opposed to
    an explicit Delete.
*/
type Stats struct {
	Hits        uint64
	Misses      uint64
	Expirations uint64
}

type statCounters struct {
	hits        atomic.Uint64
	misses      atomic.Uint64
	expirations atomic.Uint64
}

func (s *statCounters) snapshot() Stats {
	return Stats{
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		Expirations: s.expirations.Load(),
	}
}
