package sgvmem

import "sync/atomic"

// MemLim is a per-consumer page quota (spec.md §4.3, C6): an atomic
// counter with a fixed ceiling, independent of the global watermark.
type MemLim struct {
	allocated atomic.Int64
	max       int64
}

// NewMemLim returns a quota that admits at most maxPages pages.
func NewMemLim(maxPages int64) *MemLim {
	return &MemLim{max: maxPages}
}

// TryCharge attempts to reserve n pages against the quota. It returns
// ErrQuotaExceeded, leaving the counter unchanged, if doing so would
// exceed max_pages. A nil receiver is an unmetered quota (spec.md §6
// scst_alloc/scst_free, which never touch mem_lim) and always succeeds.
func (m *MemLim) TryCharge(n int64) error {
	if m == nil {
		return nil
	}
	newVal := m.allocated.Add(n)
	if newVal > m.max {
		m.allocated.Add(-n)
		return ErrQuotaExceeded
	}
	return nil
}

// Uncharge releases n previously charged pages. A no-op on a nil
// receiver.
func (m *MemLim) Uncharge(n int64) {
	if m == nil {
		return
	}
	m.allocated.Add(-n)
}

// Allocated returns the current charge, for statistics and tests.
func (m *MemLim) Allocated() int64 { return m.allocated.Load() }

// Max returns the quota ceiling.
func (m *MemLim) Max() int64 { return m.max }
