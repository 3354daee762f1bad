package sgvmem

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/scst-go/sgvmem/pagesource"
	"github.com/scst-go/sgvmem/platform"
)

func TestScstAllocAlwaysProducesBigObject(t *testing.T) {
	o, err := ScstAlloc(context.Background(), pagesource.PageSize, 0)
	if err != nil {
		t.Fatalf("ScstAlloc() error = %v", err)
	}
	if o.class.IsBucketed() {
		t.Fatal("ScstAlloc() produced a bucketed object")
	}
	ScstFree(o)
}

func TestSetAllocatorRejectsWhilePoolHasCachedObjects(t *testing.T) {
	rt := newTestRuntime()
	defer rt.Close()
	p, err := rt.CreatePool("T", ClusterNone, false, uuid.New(), platform.NewMemfilePageSource())
	if err != nil {
		t.Fatalf("CreatePool() error = %v", err)
	}
	limit := NewMemLim(100)

	o, err := p.Alloc(context.Background(), pagesource.PageSize, 0, limit, nil)
	if err != nil {
		t.Fatalf("Alloc() error = %v", err)
	}
	p.Free(o, limit)

	if err := p.SetAllocator(platform.NewArenaPageSource()); err == nil {
		t.Fatal("SetAllocator() with cached objects present succeeded, want error")
	}

	p.Flush()
	if err := p.SetAllocator(platform.NewArenaPageSource()); err != nil {
		t.Fatalf("SetAllocator() after Flush() error = %v", err)
	}
}
