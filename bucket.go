package sgvmem

import "sync/atomic"

// bucket is a pool's per-order free-list of cached SG objects, all
// sized 1<<order pages (spec.md §3, C5). Objects are kept sorted
// ascending by sgCount so acquire always reuses the least-fragmented
// object available, per spec.md §4.2 "Release".
//
// entries/pages/hit/total/merged are atomics so the read-only
// statistics surface (spec.md §5, §6) can read them without pool_lock;
// all writes happen with pool_lock held.
type bucket struct {
	order uint8
	free  []*SgObject

	entries atomic.Int64
	pages   atomic.Int64

	hit    atomic.Int64
	total  atomic.Int64
	merged atomic.Int64
}

func newBucket(order uint8) *bucket {
	return &bucket{order: order}
}

// pop removes and returns the lowest-sgCount cached object, or nil.
// Caller must hold pool_lock.
func (b *bucket) pop() *SgObject {
	if len(b.free) == 0 {
		return nil
	}
	o := b.free[0]
	b.free = b.free[1:]
	b.entries.Add(-1)
	b.pages.Add(-int64(o.class.Pages()))
	return o
}

// insertSorted inserts o keeping the free-list ordered by ascending
// sgCount. Caller must hold pool_lock.
func (b *bucket) insertSorted(o *SgObject) {
	i := 0
	for i < len(b.free) && b.free[i].sgCount <= o.sgCount {
		i++
	}
	b.free = append(b.free, nil)
	copy(b.free[i+1:], b.free[i:])
	b.free[i] = o
	b.entries.Add(1)
	b.pages.Add(int64(o.class.Pages()))
}

// remove deletes o from the free-list if present, used by the purge
// worker and shrinker when evicting a specific object. Caller must
// hold pool_lock.
func (b *bucket) remove(o *SgObject) bool {
	for i, c := range b.free {
		if c == o {
			b.free = append(b.free[:i], b.free[i+1:]...)
			b.entries.Add(-1)
			b.pages.Add(-int64(o.class.Pages()))
			return true
		}
	}
	return false
}

// peekAt returns the i-th cached object in free-list (ascending
// sgCount) order without removing it, or nil if i is out of range.
func (b *bucket) peekAt(i int) *SgObject {
	if i < 0 || i >= len(b.free) {
		return nil
	}
	return b.free[i]
}

func (b *bucket) len() int { return len(b.free) }

// Entries/Pages/Hit/Total/Merged back the public stats report (stats.go).
func (b *bucket) Entries() int64 { return b.entries.Load() }
func (b *bucket) Pages() int64   { return b.pages.Load() }
func (b *bucket) Hit() int64     { return b.hit.Load() }
func (b *bucket) Total() int64   { return b.total.Load() }
func (b *bucket) Merged() int64  { return b.merged.Load() }
