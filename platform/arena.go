// Package platform collects pagesource.Source implementations. It plays
// the role the teacher's storage/buffer and storage/page packages play
// for interfaces.ParentBufMgr/ParentPage: concrete adapters behind a
// small interface, swapped in at construction time.
package platform

import (
	"context"
	"sort"
	"sync"

	"github.com/ncw/directio"

	"github.com/scst-go/sgvmem/pagesource"
)

// arenaSlabPages is the number of pages carved out of a single
// directio.AlignedBlock allocation. 256 pages at the 4 KiB page size
// sgvmem assumes is a 1 MiB slab.
const arenaSlabPages = 256

// ArenaPageSource is the default pagesource.Source. It grows a slab at
// a time via directio.AlignedBlock, so every page it hands out is
// genuinely page-aligned, and it always serves the lowest free page
// frame number first. That bias means a burst of allocations following
// an idle period tends to come back with consecutive PFNs, which is
// what lets the clusterer actually merge entries in the common case
// instead of only in contrived tests.
type ArenaPageSource struct {
	mu      sync.Mutex
	slabs   [][]byte
	free    []uint64 // kept sorted ascending
	nextPFN uint64
}

// NewArenaPageSource returns an empty arena; it grows lazily on first
// allocation.
func NewArenaPageSource() *ArenaPageSource {
	return &ArenaPageSource{}
}

func (a *ArenaPageSource) growLocked() {
	slab := directio.AlignedBlock(arenaSlabPages * pagesource.PageSize)
	base := a.nextPFN
	a.slabs = append(a.slabs, slab)
	for i := 0; i < arenaSlabPages; i++ {
		a.free = append(a.free, base+uint64(i))
	}
	a.nextPFN = base + arenaSlabPages
}

func (a *ArenaPageSource) pageBytes(pfn uint64) []byte {
	slabIdx := pfn / arenaSlabPages
	off := (pfn % arenaSlabPages) * pagesource.PageSize
	slab := a.slabs[slabIdx]
	return slab[off : off+pagesource.PageSize]
}

// AllocOnePage implements pagesource.Source.
func (a *ArenaPageSource) AllocOnePage(ctx context.Context) (*pagesource.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.free) == 0 {
		a.growLocked()
	}
	pfn := a.free[0]
	a.free = a.free[1:]
	return &pagesource.Page{PFN: pfn, Bytes: a.pageBytes(pfn)}, nil
}

// FreePages implements pagesource.Source.
func (a *ArenaPageSource) FreePages(pages []*pagesource.Page) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, p := range pages {
		i := sort.Search(len(a.free), func(i int) bool { return a.free[i] >= p.PFN })
		a.free = append(a.free, 0)
		copy(a.free[i+1:], a.free[i:])
		a.free[i] = p.PFN
	}
}

// TotalPages reports how many pages the arena has ever carved out of
// directio slabs, for tests asserting on growth behavior.
func (a *ArenaPageSource) TotalPages() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nextPFN
}
