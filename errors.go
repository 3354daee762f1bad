package sgvmem

import "github.com/pkg/errors"

// Sentinel error kinds surfaced by the allocator (spec.md §7). Callers
// distinguish them with errors.Is against these values. Most paths
// return the bare sentinel; the ReturnObjOnAllocFail partial-fill paths
// return ErrOutOfMemory wrapped via errors.Wrapf with the page source's
// failure appended, so a log line carries both the kind and the detail.
var (
	// ErrOutOfMemory means a page or metadata allocation failed.
	ErrOutOfMemory = errors.New("sgvmem: out of memory")
	// ErrQuotaExceeded means mem_lim would exceed its max_pages ceiling.
	ErrQuotaExceeded = errors.New("sgvmem: quota exceeded")
	// ErrWatermarkExceeded means the global hi_wmk was breached and
	// shrinking did not recover enough pages.
	ErrWatermarkExceeded = errors.New("sgvmem: watermark exceeded")
	// ErrPoolConflict means a pool with the same name already exists
	// with a different owner, or is not shared.
	ErrPoolConflict = errors.New("sgvmem: pool name conflict")
)
