// Package pagesource defines the platform paging primitive sgv_mem is
// built on: allocation and release of individual physical pages. It is
// the C1 collaborator -- sgvmem never allocates memory any other way.
package pagesource

import "context"

// PageSize is the platform page size in bytes that sgvmem is built
// around. A deployment targeting a different page size constructs a
// Source that honors that size consistently; sgvmem itself only ever
// reads this constant.
const PageSize = 4096

// Page is a single physical page handed out by a Source. PFN is the
// page frame number the clusterer uses to test physical adjacency of
// two pages; Bytes is the page's backing storage and is always
// PageSize bytes long.
type Page struct {
	PFN   uint64
	Bytes []byte
}

// Source supplies and reclaims individual pages. Implementations may
// block -- sgvmem never calls AllocOnePage or FreePages while holding a
// pool lock.
type Source interface {
	// AllocOnePage returns one freshly allocated page, or an error if
	// none is available.
	AllocOnePage(ctx context.Context) (*Page, error)

	// FreePages returns a set of pages to the source. It must not be
	// called with pages obtained from a different Source.
	FreePages(pages []*Page)
}
