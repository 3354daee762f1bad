package platform

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/scst-go/sgvmem/pagesource"
)

// FaultySource is a test-support pagesource.Source adapted from the
// teacher's ParentBufMgrDummy/ParentPageDummy pair (parent_buf_mgr_dummy.go,
// parent_page_dummy.go): pages live only in a map instead of real
// platform memory, and allocation can be made to fail after a fixed
// number of successes. sgvmem's acquire-path unwind logic (spec.md §7)
// is only exercisable under a source that can be told to fail midway
// through a fill, which ArenaPageSource cannot do deterministically.
type FaultySource struct {
	mu        sync.Mutex
	pages     map[uint64]*pagesource.Page
	nextPFN   uint64
	failAfter int32 // negative disables fault injection
	allocs    int32
}

// NewFaultySource returns a source that fails every AllocOnePage call
// once more than failAfter pages have been handed out. A negative
// failAfter disables fault injection entirely.
func NewFaultySource(failAfter int) *FaultySource {
	fa := int32(-1)
	if failAfter >= 0 {
		fa = int32(failAfter)
	}
	return &FaultySource{
		pages:     make(map[uint64]*pagesource.Page),
		failAfter: fa,
	}
}

// AllocOnePage implements pagesource.Source.
func (f *FaultySource) AllocOnePage(ctx context.Context) (*pagesource.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := atomic.AddInt32(&f.allocs, 1)
	if f.failAfter >= 0 && n > f.failAfter {
		return nil, errors.New("faultysource: injected allocation failure")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	pfn := f.nextPFN
	f.nextPFN++
	p := &pagesource.Page{PFN: pfn, Bytes: make([]byte, pagesource.PageSize)}
	f.pages[pfn] = p
	return p, nil
}

// FreePages implements pagesource.Source.
func (f *FaultySource) FreePages(pages []*pagesource.Page) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range pages {
		delete(f.pages, p.PFN)
	}
}

// Live reports how many pages are currently outstanding, for tests
// asserting every allocated page was eventually freed.
func (f *FaultySource) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pages)
}
