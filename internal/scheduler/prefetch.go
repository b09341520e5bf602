package scheduler

import "clip-quickview/internal/workpool"

// prefetchNeighbors warms the caches of the nearest occupied slot on each
// side of index at the same frame, forward first. It runs on the prefetch
// pool and gives up as soon as a request for another frame has been made.
func (s *Scheduler) prefetchNeighbors(index, frame int) {
	for _, forward := range []bool{true, false} {
		s.pool.Wait()
		if !s.stillWanted(frame) {
			return
		}
		if !s.submitWarm(index, frame, forward) {
			return
		}
	}
}

func (s *Scheduler) stillWanted(frame int) bool {
	latest, ok := s.pending.Latest()
	return !ok || latest.Frame == frame
}

// submitWarm queues a cache warm for the first occupied slot away from
// index. It reports false when the structural lock is held by a
// registration, in which case the whole prefetch is skipped.
func (s *Scheduler) submitWarm(index, frame int, forward bool) bool {
	if !s.structural.TryRLock() {
		return false
	}
	defer s.structural.RUnlock()

	neighbor, ok := s.table.NextOccupied(index, forward)
	if !ok || !s.table.ValidAt(neighbor, frame) || s.cache.Contains(neighbor, frame) {
		return true
	}

	if err := s.pool.Start(func() { s.runWarm(neighbor, frame) }, workpool.Normal); err != nil {
		s.logger.Debug(component, "prefetch not scheduled", map[string]interface{}{
			"index": neighbor,
			"frame": frame,
			"error": err.Error(),
		})
		return false
	}
	return true
}
