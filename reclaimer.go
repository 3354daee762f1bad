package sgvmem

import "log/slog"

// reserve implements the high-watermark gate (spec.md §4.4): credit n
// pages against total_pages up front, before the caller actually
// allocates them. If doing so would push total_pages past hi_wmk, shrink
// round-robin across active pools to bring it back down to lo_wmk
// before admitting the request; if shrinking still cannot recover
// enough, undo the reservation and report ErrWatermarkExceeded.
func (rt *AllocatorRuntime) reserve(n int64) error {
	total := rt.totalPages.Add(n)
	if total <= rt.cfg.HiWatermark {
		return nil
	}

	want := total - rt.cfg.LoWatermark
	freed := rt.shrink(want)
	rt.hiwmkReleases.Add(1)

	if rt.totalPages.Load() > rt.cfg.HiWatermark {
		rt.totalPages.Add(-n)
		rt.hiwmkFailures.Add(1)
		if rt.watermarkLimiter.Allow() {
			slog.Warn("sgvmem: high watermark exceeded", "total_pages", rt.totalPages.Load(),
				"hi_wmk", rt.cfg.HiWatermark, "requested", n, "freed", freed)
		}
		return ErrWatermarkExceeded
	}
	return nil
}

// release returns n pages of credit to total_pages, called whenever
// pages are actually freed back to the page source.
func (rt *AllocatorRuntime) release(n int64) {
	if n == 0 {
		return
	}
	rt.totalPages.Add(-n)
}

// shrink implements C7c: evict cached objects round-robin across the
// active pools until want pages have been recovered or every pool has
// been tried once with nothing left to give (spec.md §4.6). Returns the
// total pages actually freed.
func (rt *AllocatorRuntime) shrink(want int64) int64 {
	rt.registryLock.Lock()
	pools := make([]*Pool, len(rt.active))
	copy(pools, rt.active)
	start := rt.cursor
	if len(pools) > 0 {
		rt.cursor = (rt.cursor + 1) % len(pools)
	}
	rt.registryLock.Unlock()

	if len(pools) == 0 {
		return 0
	}

	var freed int64
	for i := 0; i < len(pools) && freed < want; i++ {
		p := pools[(start+i)%len(pools)]
		perPool := want - freed
		if perPool > rt.cfg.MaxPagesPerPool {
			perPool = rt.cfg.MaxPagesPerPool
		}
		freed += p.shrink(perPool)
	}
	return freed
}

// ShrinkAll is the entry point a process-wide memory-pressure notifier
// (e.g. a container cgroup watcher) would call to reclaim nr pages
// across every pool, independent of the watermark gate. nr == 0 is a
// query: it reports max(0, sum_of_inactive_pages - lo_wmk), how many
// pages could be reclaimed, without evicting anything (spec.md §4.6).
func (rt *AllocatorRuntime) ShrinkAll(nr int64) int64 {
	if nr == 0 {
		return rt.reclaimablePages()
	}
	freed := rt.shrink(nr)
	if freed > 0 {
		slog.Debug("sgvmem: shrink reclaimed pages", "freed", freed, "requested", nr)
	}
	return freed
}

// reclaimablePages sums inactive pages across every active pool and
// reports how much of that exceeds lo_wmk.
func (rt *AllocatorRuntime) reclaimablePages() int64 {
	rt.registryLock.Lock()
	pools := make([]*Pool, len(rt.active))
	copy(pools, rt.active)
	rt.registryLock.Unlock()

	var sum int64
	for _, p := range pools {
		sum += p.inactivePages()
	}
	want := sum - rt.cfg.LoWatermark
	if want < 0 {
		return 0
	}
	return want
}
