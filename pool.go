package sgvmem

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/scst-go/sgvmem/pagesource"
)

// Pool is a named cache of SG objects sharing a clustering mode and a
// backing page source (spec.md §3, C4/C5). Pools are created through
// an AllocatorRuntime, never directly.
type Pool struct {
	name       string
	clustering ClusterMode
	shared     bool
	ownerID    uuid.UUID

	src pagesource.Source
	rt  *AllocatorRuntime

	mu             sync.Mutex // pool_lock
	buckets        []*bucket  // index 0..rt.cfg.OrderMax-1
	lru            *list.List // time-sorted inactive objects, oldest at Front
	purgeCancel    CancelFunc
	purgeScheduled bool

	outstanding atomic.Int64 // pages in bucketed objects currently checked out

	refCount int32 // updated atomically; incremented under rt.registryMutex

	bigAlloc, bigMerged     atomic.Int64
	otherAlloc, otherMerged atomic.Int64
}

func newPool(name string, clustering ClusterMode, shared bool, owner uuid.UUID, rt *AllocatorRuntime, src pagesource.Source) *Pool {
	p := &Pool{
		name:       name,
		clustering: clustering,
		shared:     shared,
		ownerID:    owner,
		src:        src,
		rt:         rt,
		lru:        list.New(),
		refCount:   1,
	}
	p.buckets = make([]*bucket, rt.cfg.OrderMax)
	for i := range p.buckets {
		p.buckets[i] = newBucket(uint8(i))
	}
	return p
}

// Name, Clustering, Shared, Owner expose the pool's identity for the
// registry and statistics report.
func (p *Pool) Name() string            { return p.name }
func (p *Pool) Clustering() ClusterMode { return p.clustering }
func (p *Pool) Shared() bool            { return p.shared }
func (p *Pool) Owner() uuid.UUID        { return p.ownerID }
func (p *Pool) OutstandingPages() int64 { return p.outstanding.Load() }

func orderForPages(n int64, max uint8) (uint8, bool) {
	var order uint8
	size := int64(1)
	for order < max && size < n {
		size <<= 1
		order++
	}
	if size < n || order >= max {
		return 0, false
	}
	return order, true
}

// Alloc resolves a size in bytes against the pool's cache, charging
// quota against limit (spec.md §4.2, §4.3). A zero size returns an
// empty object with no charge (spec.md §8).
func (p *Pool) Alloc(ctx context.Context, sizeBytes int, flags AllocFlags, limit *MemLim, priv any) (*SgObject, error) {
	if sizeBytes <= 0 {
		return newSgObject(Bucketed(0), false), nil
	}
	pages := int64((sizeBytes + pagesource.PageSize - 1) / pagesource.PageSize)
	order, fitsBucket := orderForPages(pages, uint8(len(p.buckets)))

	if fitsBucket && !flags.has(NoCached) {
		return p.allocBucketed(ctx, order, sizeBytes, flags, limit, priv)
	}
	return p.allocBig(ctx, uint32(pages), sizeBytes, flags, limit, priv, !fitsBucket)
}

func (p *Pool) allocBucketed(ctx context.Context, order uint8, sizeBytes int, flags AllocFlags, limit *MemLim, priv any) (*SgObject, error) {
	n := int64(1) << order
	b := p.buckets[order]

	p.mu.Lock()
	if obj := b.pop(); obj != nil {
		if obj.lruElem != nil {
			p.lru.Remove(obj.lruElem)
			obj.lruElem = nil
		}
		p.mu.Unlock()

		if err := limit.TryCharge(n); err != nil {
			p.mu.Lock()
			b.insertSorted(obj)
			obj.lruElem = p.lru.PushBack(obj)
			p.mu.Unlock()
			return nil, err
		}

		b.hit.Add(1)
		b.total.Add(1)
		if obj.sgCount < int(n) {
			b.merged.Add(1)
		}
		p.outstanding.Add(n)
		obj.truncateLast(sizeBytes)
		return obj, nil
	}
	p.mu.Unlock()

	if flags.has(NoAllocOnCacheMiss) {
		b.total.Add(1)
		return newSgObject(Bucketed(order), p.clustering != ClusterNone), nil
	}

	if err := limit.TryCharge(n); err != nil {
		return nil, err
	}
	if err := p.rt.reserve(n); err != nil {
		limit.Uncharge(n)
		return nil, err
	}

	obj := newSgObject(Bucketed(order), p.clustering != ClusterNone)
	if priv != nil {
		obj.priv = priv
		obj.privSet = true
	}

	err := obj.fill(ctx, p.src, p.clustering)
	achieved := int64(len(obj.pages))
	if achieved < n {
		p.rt.release(n - achieved)
	}

	if err != nil {
		if flags.has(ReturnObjOnAllocFail) && achieved > 0 {
			limit.Uncharge(n - achieved)
			p.rt.activate(p)
			p.outstanding.Add(achieved)
			b.total.Add(1)
			obj.truncateLast(sizeBytes)
			return obj, errors.Wrapf(ErrOutOfMemory, "sgvmem: partial fill returned per ReturnObjOnAllocFail: %v", err)
		}
		limit.Uncharge(n)
		p.src.FreePages(obj.pages)
		b.total.Add(1)
		return nil, ErrOutOfMemory
	}

	p.rt.activate(p)
	p.outstanding.Add(n)
	b.total.Add(1)
	if obj.sgCount < int(n) {
		b.merged.Add(1)
	}
	obj.truncateLast(sizeBytes)
	return obj, nil
}

func (p *Pool) allocBig(ctx context.Context, n uint32, sizeBytes int, flags AllocFlags, limit *MemLim, priv any, forcedByOversize bool) (*SgObject, error) {
	if forcedByOversize && flags.has(NoAllocOnCacheMiss) {
		return nil, ErrWatermarkExceeded
	}

	np := int64(n)
	if err := limit.TryCharge(np); err != nil {
		return nil, err
	}
	if err := p.rt.reserve(np); err != nil {
		limit.Uncharge(np)
		return nil, err
	}

	obj := newSgObject(Big(n), p.clustering != ClusterNone)
	if priv != nil {
		obj.priv = priv
		obj.privSet = true
	}

	err := obj.fill(ctx, p.src, p.clustering)
	achieved := int64(len(obj.pages))
	if achieved < np {
		p.rt.release(np - achieved)
	}

	recordStat := func(merged bool) {
		if forcedByOversize {
			p.otherAlloc.Add(1)
			if merged {
				p.otherMerged.Add(1)
			}
		} else {
			p.bigAlloc.Add(1)
			if merged {
				p.bigMerged.Add(1)
			}
		}
	}

	if err != nil {
		if flags.has(ReturnObjOnAllocFail) && achieved > 0 {
			limit.Uncharge(np - achieved)
			recordStat(obj.sgCount < len(obj.pages))
			obj.truncateLast(sizeBytes)
			return obj, errors.Wrapf(ErrOutOfMemory, "sgvmem: partial fill returned per ReturnObjOnAllocFail: %v", err)
		}
		limit.Uncharge(np)
		p.src.FreePages(obj.pages)
		recordStat(false)
		return nil, ErrOutOfMemory
	}

	recordStat(obj.sgCount < int(n))
	obj.truncateLast(sizeBytes)
	return obj, nil
}

// Free returns obj to its pool: bucketed objects go back to their
// bucket's free-list and the pool's inactive LRU; big objects are torn
// down immediately since they are never cached (spec.md §4.2 "Release").
func (p *Pool) Free(obj *SgObject, limit *MemLim) {
	if obj == nil || obj.class.Pages() == 0 && len(obj.pages) == 0 {
		return
	}
	obj.restoreLast()
	n := int64(len(obj.pages))

	if !obj.class.IsBucketed() {
		limit.Uncharge(n)
		p.rt.release(n)
		p.src.FreePages(obj.pages)
		return
	}

	limit.Uncharge(n)
	p.outstanding.Add(-n)
	obj.releasedAt = time.Now()

	p.mu.Lock()
	b := p.buckets[obj.class.Order()]
	b.insertSorted(obj)
	obj.lruElem = p.lru.PushBack(obj)
	p.mu.Unlock()

	p.schedulePurge()
}

// Flush evicts every cached object in every bucket, freeing their pages
// and unreserving the watermark credit they held (spec.md §4.2 "Flush").
func (p *Pool) Flush() {
	p.mu.Lock()
	var freed []*pagesource.Page
	var pages int64
	for _, b := range p.buckets {
		for _, o := range b.free {
			freed = append(freed, o.pages...)
			pages += int64(len(o.pages))
		}
		b.free = nil
		b.entries.Store(0)
		b.pages.Store(0)
	}
	p.lru.Init()
	p.mu.Unlock()

	if len(freed) > 0 {
		p.src.FreePages(freed)
		p.rt.release(pages)
	}
}

// schedulePurge arms the pool's purge worker if it is not already
// pending (spec.md §4.5, C7b).
func (p *Pool) schedulePurge() {
	p.mu.Lock()
	if p.purgeScheduled {
		p.mu.Unlock()
		return
	}
	p.purgeScheduled = true
	p.mu.Unlock()

	cancel := p.rt.timer.ScheduleAfter(p.rt.cfg.PurgeInterval, func() {
		p.runPurge()
	})
	p.mu.Lock()
	p.purgeCancel = cancel
	p.mu.Unlock()
}

func (p *Pool) cancelPurge() {
	p.mu.Lock()
	cancel := p.purgeCancel
	p.purgeCancel = nil
	p.purgeScheduled = false
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// runPurge evicts every cached object older than PurgeTimeAfter, then
// reschedules itself if objects remain (spec.md §4.5).
func (p *Pool) runPurge() {
	cutoff := time.Now().Add(-p.rt.cfg.PurgeTimeAfter)

	p.mu.Lock()
	p.purgeScheduled = false
	var freed []*pagesource.Page
	var pages int64
	for e := p.lru.Front(); e != nil; {
		next := e.Next()
		o := e.Value.(*SgObject)
		if o.releasedAt.After(cutoff) {
			break
		}
		p.lru.Remove(e)
		o.lruElem = nil
		p.buckets[o.class.Order()].remove(o)
		freed = append(freed, o.pages...)
		pages += int64(len(o.pages))
		e = next
	}
	remaining := p.lru.Len() > 0
	p.mu.Unlock()

	if len(freed) > 0 {
		p.src.FreePages(freed)
		p.rt.release(pages)
		slog.Debug("sgvmem: purge evicted cached objects", "pool", p.name, "pages", pages)
	}
	if remaining {
		p.schedulePurge()
	}
}

// shrink evicts up to want pages of the oldest cached objects that are
// at least ShrinkAgeMin old, for use by the memory-pressure shrinker
// (C7c, spec.md §4.6). The LRU is oldest-first, so the walk stops as
// soon as it reaches an object younger than the age floor. Returns
// pages actually freed.
func (p *Pool) shrink(want int64) int64 {
	cutoff := time.Now().Add(-p.rt.cfg.ShrinkAgeMin)

	p.mu.Lock()
	var freed []*pagesource.Page
	var pages int64
	for pages < want {
		e := p.lru.Front()
		if e == nil {
			break
		}
		o := e.Value.(*SgObject)
		if o.releasedAt.After(cutoff) {
			break
		}
		p.lru.Remove(e)
		o.lruElem = nil
		p.buckets[o.class.Order()].remove(o)
		freed = append(freed, o.pages...)
		pages += int64(len(o.pages))
	}
	p.mu.Unlock()

	if len(freed) > 0 {
		p.src.FreePages(freed)
		p.rt.release(pages)
	}
	return pages
}

// inactivePages returns the number of pages currently resident in this
// pool's bucket free-lists (cached, not checked out), used by the
// shrinker's nr == 0 query path (spec.md §4.6).
func (p *Pool) inactivePages() int64 {
	var pages int64
	for _, b := range p.buckets {
		pages += b.Pages()
	}
	return pages
}
