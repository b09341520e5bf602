package scheduler

import "clip-quickview/internal/workpool"

// Stats is a point-in-time view of the scheduler counters.
type Stats struct {
	Requests       uint64         `json:"requests"`
	Decodes        uint64         `json:"decodes"`
	CacheHits      uint64         `json:"cache_hits"`
	DecodeFailures uint64         `json:"decode_failures"`
	Placeholders   uint64         `json:"placeholders"`
	Preemptions    uint64         `json:"preemptions"`
	Enqueues       uint64         `json:"enqueues"`
	Dropped        uint64         `json:"dropped"`
	Satisfied      uint64         `json:"satisfied"`
	Superseded     uint64         `json:"superseded"`
	Prefetches     uint64         `json:"prefetches"`
	Pending        int            `json:"pending"`
	DisplayPool    workpool.Stats `json:"display_pool"`
	PrefetchPool   workpool.Stats `json:"prefetch_pool"`
}

func (s *Scheduler) Stats() Stats {
	return Stats{
		Requests:       s.stats.requests.Load(),
		Decodes:        s.stats.decodes.Load(),
		CacheHits:      s.stats.cacheHits.Load(),
		DecodeFailures: s.stats.decodeFailures.Load(),
		Placeholders:   s.stats.placeholders.Load(),
		Preemptions:    s.stats.preemptions.Load(),
		Enqueues:       s.stats.enqueues.Load(),
		Dropped:        s.stats.dropped.Load(),
		Satisfied:      s.stats.satisfied.Load(),
		Superseded:     s.stats.superseded.Load(),
		Prefetches:     s.stats.prefetches.Load(),
		Pending:        len(s.pending.Live()),
		DisplayPool:    s.pool.Stats(),
		PrefetchPool:   s.prefetch.Stats(),
	}
}
