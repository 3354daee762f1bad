package sgvmem

import (
	"container/list"
	"context"
	"time"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/scst-go/sgvmem/pagesource"
)

// embeddedEntriesCap and embeddedTransCap bound the fixed-size arrays
// sgvmem embeds directly inside an SgObject, replacing the original's
// pointer-punned flexible tail (spec.md §9: "model it as two concrete
// object layouts chosen at construction"). Go gives no portable way to
// size a struct field from a runtime value, so the arrays are sized
// generously and localOrder/transOrder (computed below) tell
// newSgObject how much of each array a given order is allowed to use.
const (
	embeddedEntriesCap = 256
	embeddedTransCap   = 512
)

var (
	sgEntrySize    = int(unsafe.Sizeof(SgEntry{}))
	transEntrySize = int(unsafe.Sizeof(TransTblEntry{}))

	// localOrder is the largest bucket order whose sg_entries array
	// still fits in one page, capped by embeddedEntriesCap.
	localOrder = computeEmbedOrder(sgEntrySize, embeddedEntriesCap)
	// transOrder is the largest bucket order whose trans_tbl array
	// still fits in one page, capped by embeddedTransCap.
	transOrder = computeEmbedOrder(transEntrySize, embeddedTransCap)
)

func computeEmbedOrder(entrySize, arrayCap int) uint8 {
	maxByPage := pagesource.PageSize / entrySize
	if maxByPage > arrayCap {
		maxByPage = arrayCap
	}
	var k uint8
	for (1 << (k + 1)) <= maxByPage {
		k++
	}
	return k
}

// objectLayout picks which of SgObject's storage fields back its
// sg_entries and trans_tbl, per the layout policy in spec.md §4.2.
type objectLayout int

const (
	layoutEmbedBoth objectLayout = iota
	layoutEmbedTrans
	layoutExternal
)

func chooseLayout(order uint8) objectLayout {
	switch {
	case order <= localOrder:
		return layoutEmbedBoth
	case order <= transOrder:
		return layoutEmbedTrans
	default:
		return layoutExternal
	}
}

// SizeClass is the tagged discriminant that replaces the original's
// signed order_or_pages field (spec.md §9): a Bucketed object is sized
// 1<<order pages and is eligible for caching; a Big object is sized
// exactly n pages and is never cached.
type SizeClass struct {
	bucketed bool
	order    uint8
	pages    uint32
}

// Bucketed returns the size class for a cached object of 1<<order pages.
func Bucketed(order uint8) SizeClass { return SizeClass{bucketed: true, order: order} }

// Big returns the size class for an uncached one-off object of exactly
// n pages.
func Big(n uint32) SizeClass { return SizeClass{bucketed: false, pages: n} }

// IsBucketed reports whether the class is cache-eligible.
func (s SizeClass) IsBucketed() bool { return s.bucketed }

// Order returns the bucket order; only meaningful when IsBucketed.
func (s SizeClass) Order() uint8 { return s.order }

// Pages returns the number of pages this class describes.
func (s SizeClass) Pages() uint32 {
	if s.bucketed {
		return 1 << s.order
	}
	return s.pages
}

// TransTblEntry is one slot of the combined translation table
// (spec.md §3): read by SG-entry index it is PgCount, the allocation
// order page index at which that entry began; read by page index it is
// SgNum, the SG entry that absorbed that page. Both readings share one
// backing array, exactly as in the original C struct.
type TransTblEntry struct {
	PgCount int32
	SgNum   int32
}

// SgObject is a single cached (or one-off) SG vector: header, SG-entry
// array, optional translation table, and ownership of the backing
// pages (spec.md §3, C4).
type SgObject struct {
	pool  *Pool
	class SizeClass

	layout          objectLayout
	embeddedEntries [embeddedEntriesCap]SgEntry
	embeddedTrans   [embeddedTransCap]TransTblEntry
	externalEntries []SgEntry
	externalTrans   []TransTblEntry

	sgCount   int
	clustered bool
	pages     []*pagesource.Page // backing pages in allocation order

	// origSgIndex/origLength restore the last entry's pre-truncation
	// length on release (spec.md §4.2 "Truncation of last entry").
	origSgIndex int
	origLength  int
	truncated   bool

	releasedAt time.Time
	priv       any
	privSet    bool

	// lruElem is this object's node in its pool's inactive LRU while it
	// sits in a bucket free-list; nil while the object is checked out.
	lruElem *list.Element
}

func newSgObject(class SizeClass, clustered bool) *SgObject {
	o := &SgObject{class: class, clustered: clustered}
	n := int(class.Pages())

	if class.IsBucketed() {
		o.layout = chooseLayout(class.Order())
	} else {
		o.layout = layoutExternal
	}

	switch o.layout {
	case layoutEmbedBoth:
		// both arrays embedded; nothing further to allocate.
	case layoutEmbedTrans:
		o.externalEntries = make([]SgEntry, 0, n)
	case layoutExternal:
		o.externalEntries = make([]SgEntry, 0, n)
		if clustered {
			o.externalTrans = make([]TransTblEntry, n)
		}
	}
	if clustered && o.layout != layoutExternal {
		// embeddedTrans already has room; nothing to allocate.
	}
	return o
}

// entries returns the live (possibly merged-down) SG entry slice.
func (o *SgObject) entries() []SgEntry {
	if o.layout == layoutEmbedBoth {
		return o.embeddedEntries[:o.sgCount]
	}
	return o.externalEntries
}

func (o *SgObject) appendEntry(e SgEntry) {
	switch o.layout {
	case layoutEmbedBoth:
		o.embeddedEntries[o.sgCount] = e
	default:
		o.externalEntries = append(o.externalEntries, e)
	}
	o.sgCount++
}

func (o *SgObject) setEntry(idx int, e SgEntry) {
	switch o.layout {
	case layoutEmbedBoth:
		o.embeddedEntries[idx] = e
	default:
		o.externalEntries[idx] = e
	}
}

func (o *SgObject) trans() []TransTblEntry {
	switch o.layout {
	case layoutEmbedBoth, layoutEmbedTrans:
		return o.embeddedTrans[:o.class.Pages()]
	default:
		return o.externalTrans
	}
}

// Entries returns the object's live SG vector.
func (o *SgObject) Entries() []SgEntry { return o.entries() }

// Count returns the number of populated SG entries.
func (o *SgObject) Count() int { return o.sgCount }

// Priv returns the opaque value set by the first caller to fill this
// object; later cache hits see the same value (spec.md invariant 7).
func (o *SgObject) Priv() any { return o.priv }

// fill allocates class.Pages() pages from src one at a time, running
// the clusterer after each, per spec.md §4.2 steps 3-4. On any
// allocation failure it returns the error and keeps the pages
// successfully allocated so far in o.pages, so the caller can decide whether to unwind (destroy) or keep the
// partial object (RETURN_OBJ_ON_ALLOC_FAIL).
func (o *SgObject) fill(ctx context.Context, src pagesource.Source, mode ClusterMode) error {
	n := int(o.class.Pages())
	c := newClusterer(mode)
	entries := o.entries()
	if o.layout != layoutEmbedBoth {
		entries = o.externalEntries
	}
	trans := o.trans()

	for i := 0; i < n; i++ {
		p, err := src.AllocOnePage(ctx)
		if err != nil {
			return errors.Wrapf(err, "sgvmem: allocating page %d/%d", i+1, n)
		}
		o.pages = append(o.pages, p)

		var mergedIdx int
		if o.clustered {
			mergedIdx = c.tryMerge(entries, o.sgCount, p)
			if o.layout != layoutEmbedBoth {
				// tryMerge may have mutated entries in place; reflect
				// that back into the object's slice header.
				o.externalEntries = entries
			}
		} else {
			mergedIdx = -1
		}

		if mergedIdx < 0 {
			mergedIdx = o.sgCount
			switch o.layout {
			case layoutEmbedBoth:
				o.embeddedEntries[o.sgCount] = SgEntry{Page: p, Length: pagesource.PageSize}
				entries = o.embeddedEntries[:o.sgCount+1]
			default:
				entries = append(entries, SgEntry{Page: p, Length: pagesource.PageSize})
				o.externalEntries = entries
			}
			o.sgCount++
		}

		if o.clustered && trans != nil {
			trans[i].SgNum = int32(mergedIdx)
		}
	}

	// pg_count[i]: the allocation-order index at which entry i began.
	// Recompute from scratch now that fill is complete; cheap relative
	// to the page allocation loop above and avoids fiddly bookkeeping
	// mid-loop about when an entry was "first created" under full-mode
	// head merges.
	if o.clustered && trans != nil {
		started := make([]bool, o.sgCount)
		for i := 0; i < n; i++ {
			sg := int(trans[i].SgNum)
			if !started[sg] {
				trans[sg].PgCount = int32(i)
				started[sg] = true
			}
		}
	}

	return nil
}

// truncateLast shrinks the final SG entry so the object's total length
// equals sizeBytes, remembering the pre-truncation state for release
// (spec.md §4.2, §8 "Truncation reversal").
func (o *SgObject) truncateLast(sizeBytes int) {
	rem := sizeBytes % pagesource.PageSize
	if rem == 0 || o.sgCount == 0 {
		return
	}
	last := o.sgCount - 1
	e := o.entries()[last]
	o.origSgIndex = last
	o.origLength = e.Length
	o.truncated = true
	e.Length -= pagesource.PageSize - rem
	o.setEntry(last, e)
}

// restoreLast undoes truncateLast, run on release (spec.md §4.2).
func (o *SgObject) restoreLast() {
	if !o.truncated {
		return
	}
	e := o.entries()[o.origSgIndex]
	e.Length = o.origLength
	o.setEntry(o.origSgIndex, e)
	o.truncated = false
}

// totalLength sums the byte length described by all live entries.
func (o *SgObject) totalLength() int {
	total := 0
	for _, e := range o.entries() {
		total += e.Length
	}
	return total
}
