package sgvmem

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/scst-go/sgvmem/pagesource"
	"github.com/scst-go/sgvmem/platform"
)

// CreatePool implements C8's pool_create: look up an existing shared
// pool owned by the same owner, or construct a new one backed by src
// (spec.md §6 "pool_create"). A nil src defaults to an
// platform.ArenaPageSource sized for on-demand growth.
func (rt *AllocatorRuntime) CreatePool(name string, clustering ClusterMode, shared bool, owner uuid.UUID, src pagesource.Source) (*Pool, error) {
	if src == nil {
		src = platform.NewArenaPageSource()
	}
	return rt.LookupOrCreate(name, clustering, shared, owner, src)
}

// Destroy implements pool_destroy with the reference-count gate
// spec.md §9's open question recommends: a shared pool is only torn
// down once every owner has released it.
func (p *Pool) Destroy() {
	left := atomic.AddInt32(&p.refCount, -1)
	if left > 0 {
		return
	}
	p.rt.DestroyPool(p)
}

// SetAllocator swaps the pool's backing page source, implementing the
// polymorphic-back-end design note in spec.md §9 ("a back-end capability
// parameter supplied at pool construction ... accepted for custom
// back-ends"). Only valid while the pool holds no cached objects.
func (p *Pool) SetAllocator(src pagesource.Source) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range p.buckets {
		if b.len() > 0 {
			return errors.New("sgvmem: cannot swap allocator while pool has cached objects")
		}
	}
	p.src = src
	return nil
}

// defaultRuntime backs the global scst_alloc/scst_free helpers, which
// in the original bypass pool management entirely for short-lived
// one-off transfers.
var (
	defaultOnce    sync.Once
	defaultRuntime *AllocatorRuntime
	defaultPool    *Pool
)

func defaultState() (*AllocatorRuntime, *Pool) {
	defaultOnce.Do(func() {
		defaultRuntime = NewAllocatorRuntime(DefaultRuntimeConfig())
		defaultPool, _ = defaultRuntime.CreatePool("scst-default", ClusterNone, false, uuid.Nil, nil)
	})
	return defaultRuntime, defaultPool
}

// ScstAlloc implements the non-cached global helper scst_alloc
// (spec.md §6): always a big object, never touches any bucket, and
// unlike Pool.Alloc charges no MemLim quota — the original scst_alloc
// only ever checks the global watermark.
func ScstAlloc(ctx context.Context, sizeBytes int, flags AllocFlags) (*SgObject, error) {
	_, pool := defaultState()
	return pool.Alloc(ctx, sizeBytes, flags|NoCached, nil, nil)
}

// ScstFree implements scst_free, the counterpart to ScstAlloc.
func ScstFree(obj *SgObject) {
	_, pool := defaultState()
	pool.Free(obj, nil)
}
