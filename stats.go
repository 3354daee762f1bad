package sgvmem

import (
	"fmt"
	"strings"

	"github.com/scst-go/sgvmem/pagesource"
)

// BucketStats is a snapshot of one bucket's read-only counters
// (spec.md §6).
type BucketStats struct {
	Name        string
	Hit, Total  int64
	MergedPct   float64
	CachedPages int64
	Inactive    int64
	Entries     int64
}

// PoolStats is a snapshot of one pool's read-only counters, aggregated
// across its buckets.
type PoolStats struct {
	Name        string
	Hit, Total  int64
	MergedPct   float64
	CachedPages int64
	Inactive    int64
	Entries     int64
	Buckets     []BucketStats
}

func pct(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(part) / float64(total)
}

// Stats returns a point-in-time snapshot of this pool's counters. The
// per-bucket counters are atomics read without pool_lock; only the
// inactive LRU length is read under pool_lock.
func (p *Pool) Stats() PoolStats {
	ps := PoolStats{Name: p.name}
	p.mu.Lock()
	ps.Inactive = int64(p.lru.Len())
	p.mu.Unlock()

	for order, b := range p.buckets {
		hit, total, merged := b.Hit(), b.Total(), b.Merged()
		bs := BucketStats{
			Name:        fmt.Sprintf("%s-%dK", p.name, (int64(1)<<uint(order))*int64(pagesource.PageSize/1024)),
			Hit:         hit,
			Total:       total,
			MergedPct:   pct(merged, total),
			CachedPages: b.Pages(),
			Inactive:    int64(b.len()),
			Entries:     b.Entries(),
		}
		ps.Buckets = append(ps.Buckets, bs)
		ps.Hit += hit
		ps.Total += total
		ps.CachedPages += bs.CachedPages
		ps.Entries += bs.Entries
	}
	ps.MergedPct = pct(sumMerged(p), ps.Total)
	return ps
}

func sumMerged(p *Pool) int64 {
	var m int64
	for _, b := range p.buckets {
		m += b.Merged()
	}
	return m
}

// GlobalStats is the header line of the read-only statistics report
// (spec.md §6): watermarks, aggregate page counts, and the big/other
// non-cached allocation totals.
type GlobalStats struct {
	TotalPages                   int64
	HiWatermark                  int64
	LoWatermark                  int64
	HiWatermarkReleases          int64
	HiWatermarkFailures          int64
	BigAlloc, OtherAlloc         int64
	BigMergedPct, OtherMergedPct float64
}

// Report renders the full read-only statistics surface as text, in the
// same per-pool/per-bucket/global shape spec.md §6 describes.
func (rt *AllocatorRuntime) Report() string {
	pools := rt.Pools()

	var bigAlloc, otherAlloc, bigMerged, otherMerged int64
	var sb strings.Builder
	for _, p := range pools {
		ps := p.Stats()
		fmt.Fprintf(&sb, "pool %-16s hit=%d total=%d merged=%.1f%% cached=%d/inactive=%d/entries=%d\n",
			ps.Name, ps.Hit, ps.Total, ps.MergedPct, ps.CachedPages, ps.Inactive, ps.Entries)
		for _, bs := range ps.Buckets {
			fmt.Fprintf(&sb, "  bucket %-20s hit=%d total=%d merged=%.1f%% cached=%d/inactive=%d/entries=%d\n",
				bs.Name, bs.Hit, bs.Total, bs.MergedPct, bs.CachedPages, bs.Inactive, bs.Entries)
		}
		bigAlloc += p.bigAlloc.Load()
		otherAlloc += p.otherAlloc.Load()
		bigMerged += p.bigMerged.Load()
		otherMerged += p.otherMerged.Load()
	}

	fmt.Fprintf(&sb, "big/other %d/%d %.1f%%/%.1f%%\n",
		bigAlloc, otherAlloc, pct(bigMerged, bigAlloc), pct(otherMerged, otherAlloc))

	g := rt.Global()
	fmt.Fprintf(&sb, "global total=%d hi_wmk=%d lo_wmk=%d hiwmk_releases=%d hiwmk_failures=%d\n",
		g.TotalPages, g.HiWatermark, g.LoWatermark, g.HiWatermarkReleases, g.HiWatermarkFailures)
	return sb.String()
}

// Global returns a snapshot of the runtime-wide counters.
func (rt *AllocatorRuntime) Global() GlobalStats {
	g := GlobalStats{
		TotalPages:          rt.TotalPages(),
		HiWatermark:         rt.cfg.HiWatermark,
		LoWatermark:         rt.cfg.LoWatermark,
		HiWatermarkReleases: rt.HiWatermarkReleases(),
		HiWatermarkFailures: rt.HiWatermarkFailures(),
	}
	var bigMerged, otherMerged int64
	for _, p := range rt.Pools() {
		g.BigAlloc += p.bigAlloc.Load()
		g.OtherAlloc += p.otherAlloc.Load()
		bigMerged += p.bigMerged.Load()
		otherMerged += p.otherMerged.Load()
	}
	g.BigMergedPct = pct(bigMerged, g.BigAlloc)
	g.OtherMergedPct = pct(otherMerged, g.OtherAlloc)
	return g
}
