package platform

import (
	"context"
	"sync"

	"github.com/dsnet/golib/memfile"

	"github.com/scst-go/sgvmem/pagesource"
)

// MemfilePageSource maps every page to a region of a single in-memory
// file (github.com/dsnet/golib/memfile), addressed by WriteAt/ReadAt at
// a PFN-derived offset, which AllocOnePage zero-fills. The Page.Bytes
// slice it hands out is a separate buffer: writes to Bytes reach the
// file only when written back with WriteAt. Unlike ArenaPageSource it
// never reuses a freed PFN, which makes page content and PFN
// assignment fully deterministic across a test run -- useful for
// golden-fixture assertions on clustering output and truncation.
type MemfilePageSource struct {
	mu   sync.Mutex
	file *memfile.File
	next uint64
}

// NewMemfilePageSource returns an empty memfile-backed source.
func NewMemfilePageSource() *MemfilePageSource {
	return &MemfilePageSource{file: memfile.New(nil)}
}

// AllocOnePage implements pagesource.Source.
func (m *MemfilePageSource) AllocOnePage(ctx context.Context) (*pagesource.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	pfn := m.next
	m.next++
	m.mu.Unlock()

	buf := make([]byte, pagesource.PageSize)
	off := int64(pfn) * int64(pagesource.PageSize)
	if _, err := m.file.WriteAt(buf, off); err != nil {
		return nil, err
	}
	return &pagesource.Page{PFN: pfn, Bytes: buf}, nil
}

// FreePages implements pagesource.Source. The backing file never
// shrinks; a freed PFN is simply never reissued, so there is nothing to
// reclaim here.
func (m *MemfilePageSource) FreePages(pages []*pagesource.Page) {}

// ReadPage re-reads a page's region from the backing memfile,
// independent of the Bytes slice AllocOnePage returned. It shows what
// was last written to the file, not in-place writes to Bytes that were
// never written back.
func (m *MemfilePageSource) ReadPage(p *pagesource.Page) ([]byte, error) {
	buf := make([]byte, pagesource.PageSize)
	off := int64(p.PFN) * int64(pagesource.PageSize)
	if _, err := m.file.ReadAt(buf, off); err != nil {
		return nil, err
	}
	return buf, nil
}
