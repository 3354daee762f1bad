package sgvmem

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/scst-go/sgvmem/pagesource"
	"github.com/scst-go/sgvmem/platform"
)

func newTestPool(t *testing.T, clustering ClusterMode) (*AllocatorRuntime, *Pool) {
	t.Helper()
	rt := newTestRuntime()
	p, err := rt.CreatePool("T", clustering, false, uuid.New(), platform.NewMemfilePageSource())
	if err != nil {
		t.Fatalf("CreatePool() error = %v", err)
	}
	return rt, p
}

func TestAllocZeroSizeIsFree(t *testing.T) {
	_, p := newTestPool(t, ClusterNone)
	limit := NewMemLim(100)

	o, err := p.Alloc(context.Background(), 0, 0, limit, nil)
	if err != nil {
		t.Fatalf("Alloc(0) error = %v", err)
	}
	if o.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", o.Count())
	}
	if limit.Allocated() != 0 {
		t.Fatalf("Allocated() = %d, want 0", limit.Allocated())
	}
}

func TestAllocCacheHitScenario(t *testing.T) {
	// Mirrors spec.md §8 scenario 1: create pool "T" with clustering=none,
	// alloc(4096) -> count=1, free, alloc(4096) again -> count=1, hit+1,
	// total+2.
	rt, p := newTestPool(t, ClusterNone)
	defer rt.Close()
	limit := NewMemLim(100)

	o1, err := p.Alloc(context.Background(), pagesource.PageSize, 0, limit, nil)
	if err != nil {
		t.Fatalf("first Alloc() error = %v", err)
	}
	if o1.Count() != 1 {
		t.Fatalf("first Alloc() Count() = %d, want 1", o1.Count())
	}
	p.Free(o1, limit)

	o2, err := p.Alloc(context.Background(), pagesource.PageSize, 0, limit, nil)
	if err != nil {
		t.Fatalf("second Alloc() error = %v", err)
	}
	if o2.Count() != 1 {
		t.Fatalf("second Alloc() Count() = %d, want 1", o2.Count())
	}

	bs := p.Stats().Buckets[0]
	if bs.Hit != 1 {
		t.Errorf("bucket Hit = %d, want 1", bs.Hit)
	}
	if bs.Total != 2 {
		t.Errorf("bucket Total = %d, want 2", bs.Total)
	}
}

func TestAllocQuotaExceeded(t *testing.T) {
	rt, p := newTestPool(t, ClusterNone)
	defer rt.Close()
	limit := NewMemLim(1)

	if _, err := p.Alloc(context.Background(), pagesource.PageSize, 0, limit, nil); err != nil {
		t.Fatalf("first Alloc() error = %v", err)
	}
	_, err := p.Alloc(context.Background(), pagesource.PageSize, 0, limit, nil)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("second Alloc() error = %v, want ErrQuotaExceeded", err)
	}
}

func TestAllocWatermarkExceeded(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.OrderMax = 4
	cfg.HiWatermark = 1
	cfg.LoWatermark = 0
	rt := NewAllocatorRuntime(cfg)
	defer rt.Close()
	p, err := rt.CreatePool("T", ClusterNone, false, uuid.New(), platform.NewMemfilePageSource())
	if err != nil {
		t.Fatalf("CreatePool() error = %v", err)
	}
	limit := NewMemLim(100)

	if _, err := p.Alloc(context.Background(), pagesource.PageSize, 0, limit, nil); err != nil {
		t.Fatalf("first Alloc() error = %v", err)
	}
	_, err = p.Alloc(context.Background(), 2*pagesource.PageSize, 0, limit, nil)
	if !errors.Is(err, ErrWatermarkExceeded) {
		t.Fatalf("second Alloc() error = %v, want ErrWatermarkExceeded", err)
	}
	if got := limit.Allocated(); got != 1 {
		t.Fatalf("Allocated() after failed Alloc() = %d, want 1 (charge must be rolled back)", got)
	}
}

func TestAllocNoCachedForcesBigObject(t *testing.T) {
	rt, p := newTestPool(t, ClusterNone)
	defer rt.Close()
	limit := NewMemLim(100)

	o, err := p.Alloc(context.Background(), pagesource.PageSize, NoCached, limit, nil)
	if err != nil {
		t.Fatalf("Alloc() error = %v", err)
	}
	if o.class.IsBucketed() {
		t.Fatal("NoCached allocation produced a bucketed object")
	}
	p.Free(o, limit)
	if got := p.buckets[0].Entries(); got != 0 {
		t.Fatalf("bucket Entries() after freeing a big object = %d, want 0 (big objects are never cached)", got)
	}
}

func TestAllocNoAllocOnCacheMissReturnsShell(t *testing.T) {
	rt, p := newTestPool(t, ClusterNone)
	defer rt.Close()
	limit := NewMemLim(100)

	o, err := p.Alloc(context.Background(), pagesource.PageSize, NoAllocOnCacheMiss, limit, nil)
	if err != nil {
		t.Fatalf("Alloc() error = %v", err)
	}
	if o.Count() != 0 {
		t.Fatalf("shell Count() = %d, want 0", o.Count())
	}
	if limit.Allocated() != 0 {
		t.Fatalf("Allocated() after a shell alloc = %d, want 0", limit.Allocated())
	}
}

func TestAllocOversizeWithNoAllocOnCacheMiss(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.OrderMax = 2 // largest bucket = 2 pages
	rt := NewAllocatorRuntime(cfg)
	defer rt.Close()
	p, err := rt.CreatePool("T", ClusterNone, false, uuid.New(), platform.NewMemfilePageSource())
	if err != nil {
		t.Fatalf("CreatePool() error = %v", err)
	}
	limit := NewMemLim(1000)

	_, err = p.Alloc(context.Background(), 10*pagesource.PageSize, NoAllocOnCacheMiss, limit, nil)
	if !errors.Is(err, ErrWatermarkExceeded) {
		t.Fatalf("oversize Alloc() with NoAllocOnCacheMiss error = %v, want ErrWatermarkExceeded", err)
	}
}

func TestFlushEvictsCachedObjects(t *testing.T) {
	rt, p := newTestPool(t, ClusterNone)
	defer rt.Close()
	limit := NewMemLim(100)

	o, err := p.Alloc(context.Background(), pagesource.PageSize, 0, limit, nil)
	if err != nil {
		t.Fatalf("Alloc() error = %v", err)
	}
	p.Free(o, limit)

	if got := p.buckets[0].Entries(); got != 1 {
		t.Fatalf("bucket Entries() before Flush() = %d, want 1", got)
	}
	p.Flush()
	if got := p.buckets[0].Entries(); got != 0 {
		t.Fatalf("bucket Entries() after Flush() = %d, want 0", got)
	}
	if got := rt.TotalPages(); got != 0 {
		t.Fatalf("TotalPages() after Flush() = %d, want 0", got)
	}
}

func TestAllocFillFailureUnwindsCharges(t *testing.T) {
	rt := newTestRuntime()
	defer rt.Close()
	p, err := rt.CreatePool("T", ClusterNone, false, uuid.New(), platform.NewFaultySource(0))
	if err != nil {
		t.Fatalf("CreatePool() error = %v", err)
	}
	limit := NewMemLim(100)

	_, err = p.Alloc(context.Background(), 2*pagesource.PageSize, 0, limit, nil)
	if !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("Alloc() error = %v, want ErrOutOfMemory", err)
	}
	if got := limit.Allocated(); got != 0 {
		t.Fatalf("Allocated() after a failed fill = %d, want 0", got)
	}
	if got := rt.TotalPages(); got != 0 {
		t.Fatalf("TotalPages() after a failed fill = %d, want 0", got)
	}
}

func TestAllocReturnObjOnAllocFailKeepsPartialObject(t *testing.T) {
	rt := newTestRuntime()
	defer rt.Close()
	p, err := rt.CreatePool("T", ClusterNone, false, uuid.New(), platform.NewFaultySource(1))
	if err != nil {
		t.Fatalf("CreatePool() error = %v", err)
	}
	limit := NewMemLim(100)

	o, err := p.Alloc(context.Background(), 4*pagesource.PageSize, ReturnObjOnAllocFail, limit, nil)
	if err == nil {
		t.Fatal("Alloc() error = nil, want a wrapped ErrOutOfMemory")
	}
	if o == nil {
		t.Fatal("Alloc() returned a nil object with ReturnObjOnAllocFail set")
	}
	if got := o.Count(); got != 1 {
		t.Fatalf("partial object Count() = %d, want 1", got)
	}
	if got := limit.Allocated(); got != 1 {
		t.Fatalf("Allocated() after partial fill = %d, want 1", got)
	}
}
