package sgvmem

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/scst-go/sgvmem/pagesource"
)

// RuntimeConfig carries the tunables read at init (spec.md §6).
type RuntimeConfig struct {
	// HiWatermark/LoWatermark bound total_pages in pages.
	HiWatermark int64
	LoWatermark int64
	// PurgeInterval/PurgeTimeAfter govern the background purge worker
	// (spec.md §4.5); they are equal in the reference implementation.
	PurgeInterval   time.Duration
	PurgeTimeAfter  time.Duration
	// ShrinkAgeMin is the age floor the shrinker uses instead of
	// PurgeTimeAfter when memory pressure demands it.
	ShrinkAgeMin time.Duration
	// MaxPagesPerPool caps how many pages a single shrink_pool call may
	// evict from one pool.
	MaxPagesPerPool int64
	// OrderMax is the number of per-order buckets a pool carries.
	OrderMax uint8
}

// DefaultRuntimeConfig mirrors the reference magnitudes from spec.md §4.5.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		HiWatermark:     1 << 18, // 256k pages (~1 GiB at 4 KiB pages)
		LoWatermark:     1 << 17,
		PurgeInterval:   60 * time.Second,
		PurgeTimeAfter:  60 * time.Second,
		ShrinkAgeMin:    1 * time.Second,
		MaxPagesPerPool: 1 << 14,
		OrderMax:        11,
	}
}

// AllocatorRuntime is the single encapsulated handle for what the
// original kept as global mutable state (spec.md §9): the watermark
// counters, the named-pool registry, the active-pools ring used by the
// shrinker's round robin, and the shared purge Timer. Pools are created
// through it and carry a pointer back to it.
type AllocatorRuntime struct {
	cfg RuntimeConfig

	timer Timer

	// registryMutex serializes pool create/destroy against lookups; it
	// is held for longer sections than registryLock allows (spec.md §5).
	registryMutex sync.Mutex
	// registryLock guards named, active, and the round-robin cursor.
	registryLock sync.Mutex
	named        map[string]*Pool
	active       []*Pool // pools that have filled at least one object; kept until destroyed
	cursor       int     // round-robin index into active

	totalPages atomic.Int64

	hiwmkReleases atomic.Int64
	hiwmkFailures atomic.Int64

	watermarkLimiter *rateLimiter
}

// NewAllocatorRuntime constructs a runtime with its own background
// purge scheduler.
func NewAllocatorRuntime(cfg RuntimeConfig) *AllocatorRuntime {
	return &AllocatorRuntime{
		cfg:              cfg,
		timer:            NewCronTimer(),
		named:            make(map[string]*Pool),
		watermarkLimiter: newRateLimiter(time.Second, 1),
	}
}

// Close stops the runtime's background scheduler. Pools must be
// destroyed first.
func (rt *AllocatorRuntime) Close() {
	if ct, ok := rt.timer.(*CronTimer); ok {
		ct.Stop()
	}
}

// Pools returns a snapshot of every named pool, for statistics
// reporting (spec.md §6, metrics.Collector).
func (rt *AllocatorRuntime) Pools() []*Pool {
	rt.registryLock.Lock()
	defer rt.registryLock.Unlock()
	out := make([]*Pool, 0, len(rt.named))
	for _, p := range rt.named {
		out = append(out, p)
	}
	return out
}

// TotalPages returns the current global resident page count.
func (rt *AllocatorRuntime) TotalPages() int64 { return rt.totalPages.Load() }

// HiWatermarkReleases/HiWatermarkFailures report the §6 global counters.
func (rt *AllocatorRuntime) HiWatermarkReleases() int64 { return rt.hiwmkReleases.Load() }
func (rt *AllocatorRuntime) HiWatermarkFailures() int64 { return rt.hiwmkFailures.Load() }

// LookupOrCreate implements C8's lookup_or_create (spec.md §4.7).
func (rt *AllocatorRuntime) LookupOrCreate(name string, clustering ClusterMode, shared bool, owner uuid.UUID, src pagesource.Source) (*Pool, error) {
	rt.registryMutex.Lock()
	defer rt.registryMutex.Unlock()

	rt.registryLock.Lock()
	existing, ok := rt.named[name]
	rt.registryLock.Unlock()

	if ok {
		if shared && existing.shared && existing.ownerID == owner {
			atomic.AddInt32(&existing.refCount, 1)
			return existing, nil
		}
		return nil, ErrPoolConflict
	}

	p := newPool(name, clustering, shared, owner, rt, src)
	rt.registryLock.Lock()
	rt.named[name] = p
	rt.registryLock.Unlock()
	return p, nil
}

// DestroyPool implements C8's destroy_pool: cancel the pending purge
// worker, flush all buckets, remove from both the named and active
// lists, and free. Ref-counting down to zero is the caller's
// responsibility via Pool.Destroy.
func (rt *AllocatorRuntime) DestroyPool(p *Pool) {
	rt.registryMutex.Lock()
	defer rt.registryMutex.Unlock()

	p.cancelPurge()
	p.Flush()

	rt.registryLock.Lock()
	delete(rt.named, p.name)
	rt.removeActiveLocked(p)
	rt.registryLock.Unlock()
}

// activateLocked adds p to the active-pools ring if it is not already
// there. Caller must hold registryLock.
func (rt *AllocatorRuntime) activateLocked(p *Pool) {
	for _, a := range rt.active {
		if a == p {
			return
		}
	}
	rt.active = append(rt.active, p)
}

func (rt *AllocatorRuntime) removeActiveLocked(p *Pool) {
	for i, a := range rt.active {
		if a == p {
			rt.active = append(rt.active[:i], rt.active[i+1:]...)
			if rt.cursor > i {
				rt.cursor--
			}
			if len(rt.active) > 0 {
				rt.cursor %= len(rt.active)
			} else {
				rt.cursor = 0
			}
			return
		}
	}
}

// activate attaches p to the registry's active ring. It is called after
// every successful fill and leaves a pool already in the ring where it
// is; a pool leaves the ring only when it is destroyed.
func (rt *AllocatorRuntime) activate(p *Pool) {
	rt.registryLock.Lock()
	rt.activateLocked(p)
	rt.registryLock.Unlock()
}
