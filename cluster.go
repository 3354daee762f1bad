package sgvmem

import "github.com/scst-go/sgvmem/pagesource"

// ClusterMode selects how aggressively the clusterer merges physically
// adjacent pages into a single SG entry (spec.md §4.1).
type ClusterMode int

const (
	// ClusterNone performs no merging: SG entry count equals page count.
	ClusterNone ClusterMode = iota
	// ClusterTail compares each new page only against the immediately
	// previous SG entry.
	ClusterTail
	// ClusterFull tries a hint (the last merge target) first, then
	// scans backwards from the current last entry to the first.
	ClusterFull
)

func (m ClusterMode) String() string {
	switch m {
	case ClusterNone:
		return "none"
	case ClusterTail:
		return "tail"
	case ClusterFull:
		return "full"
	default:
		return "unknown"
	}
}

// SgEntry is a (page, length) descriptor for a scatter-gather vector,
// analogous to struct scatterlist: Page is the page at the lowest
// physical address the entry covers, Length is the byte span starting
// there. Length is always a whole number of pages except possibly on
// the last entry of an SgObject, which may be truncated to the
// requested allocation size.
type SgEntry struct {
	Page   *pagesource.Page
	Length int
}

func (e SgEntry) pages() int { return e.Length / pagesource.PageSize }

// clusterer implements C2. Its decisions are a pure function of the
// sequence of pages it is fed: the same sequence with the same mode
// always produces the same merges.
type clusterer struct {
	mode ClusterMode
	hint int // index of the last successful full-mode merge target, -1 if none yet
}

func newClusterer(mode ClusterMode) *clusterer {
	return &clusterer{mode: mode, hint: -1}
}

// tryMerge attempts to fold page p into one of entries[:count]. It
// returns the index it merged into, or -1 if the caller must append p
// as a brand-new entry at entries[count].
func (c *clusterer) tryMerge(entries []SgEntry, count int, p *pagesource.Page) int {
	if count == 0 {
		return -1
	}

	switch c.mode {
	case ClusterNone:
		return -1

	case ClusterTail:
		return mergeTailAt(entries, count-1, p)

	case ClusterFull:
		if c.hint >= 0 && c.hint < count {
			if mergeAt(entries, c.hint, p) == c.hint {
				return c.hint
			}
		}
		for i := count - 1; i >= 0; i-- {
			if i == c.hint {
				continue
			}
			if mergeAt(entries, i, p) == i {
				c.hint = i
				return i
			}
		}
		return -1

	default:
		return -1
	}
}

// mergeTailAt tests and, on success, extends entries[idx] forward to
// cover p. It is the only merge direction ClusterTail ever attempts.
func mergeTailAt(entries []SgEntry, idx int, p *pagesource.Page) int {
	e := &entries[idx]

	// tail-merge: e's span ends exactly where p begins.
	if e.Length%pagesource.PageSize == 0 && e.Page.PFN+uint64(e.pages()) == p.PFN {
		e.Length += pagesource.PageSize
		return idx
	}

	return -1
}

// mergeAt tests and, on success, applies the merge rule between
// entries[idx] and the new page p, returning idx on success or -1 on
// failure. ClusterFull is the only mode that attempts the head
// direction.
func mergeAt(entries []SgEntry, idx int, p *pagesource.Page) int {
	if r := mergeTailAt(entries, idx, p); r == idx {
		return idx
	}

	e := &entries[idx]

	// head-merge: p is exactly one page below e's start, and p itself
	// is a whole page (always true for a freshly allocated page).
	if p.PFN+1 == e.Page.PFN {
		e.Page = p
		e.Length += pagesource.PageSize
		return idx
	}

	return -1
}
