package mm

import (
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/eonix-go/eonix/kernel/errno"
	"github.com/eonix-go/eonix/kernel/logger"
)

// pageInConcurrency bounds how many file-backed page-ins a single MMList
// may have outstanding at once (SPEC_FULL.md 2.2), via
// golang.org/x/sync/semaphore.
const pageInConcurrency = 8

// pte is one page-table-entry's worth of state. Real kernels pack this
// into hardware bits; we only need the bits spec.md §4.D's fault handler
// actually inspects.
type pte struct {
	page        *Page
	present     bool
	cow         bool
	mmapPending bool // "MMAP bit": allocated range, not yet filled from file
	writable    bool
}

// MMList is spec.md §3's per-address-space record: an ordered, disjoint
// set of MMAreas, a (simulated) page table, and the break/heap region.
type MMList struct {
	log logger.Logger

	mu    sync.RWMutex
	areas []*MMArea
	pt    map[uint64]*pte

	breakStart uint64
	breakPos   uint64
	hasBreak   bool

	userTop uint64

	pageInSem *semaphore.Weighted
}

// UserAddressTop is the default top of the user address range mmap search
// fails against with ENOMEM once exhausted.
const UserAddressTop = 0x0000_7FFF_FFFF_0000

// New returns an empty address space.
func New(log logger.Logger) *MMList {
	if log == nil {
		log = logger.Nop
	}

	return &MMList{
		log:       log,
		pt:        make(map[uint64]*pte),
		userTop:   UserAddressTop,
		pageInSem: semaphore.NewWeighted(pageInConcurrency),
	}
}

// Areas returns a snapshot of the current area list, sorted by start
// address.
func (m *MMList) Areas() []*MMArea {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*MMArea, len(m.areas))
	copy(out, m.areas)

	return out
}

// findLocked returns the area containing addr, or nil. Caller holds m.mu.
func (m *MMList) findLocked(addr uint64) *MMArea {
	i := sort.Search(len(m.areas), func(i int) bool { return m.areas[i].Range.End > addr })
	if i < len(m.areas) && m.areas[i].Range.Contains(addr) {
		return m.areas[i]
	}

	return nil
}

func (m *MMList) overlapsLocked(r VRange) bool {
	for _, a := range m.areas {
		if a.Range.Overlaps(r) {
			return true
		}
	}

	return false
}

func (m *MMList) insertLocked(a *MMArea) {
	i := sort.Search(len(m.areas), func(i int) bool { return m.areas[i].Range.Start >= a.Range.Start })
	m.areas = append(m.areas, nil)
	copy(m.areas[i+1:], m.areas[i:])
	m.areas[i] = a
}

// Mmap implements spec.md §4.D's mmap: at/len page-aligned; fixed maps
// exactly [at,at+len) or fails EEXIST on overlap; otherwise searches
// upward from at for a free gap.
func (m *MMList) Mmap(at, length uint64, mapping Mapping, perm Permission, fixed bool) (uint64, error) {
	if !isPageAligned(at) || !isPageAligned(length) || length == 0 {
		return 0, errno.Wrap(errno.EINVAL, "mmap", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	start := at
	end := start + length

	if fixed {
		if m.overlapsLocked(VRange{Start: start, End: end}) {
			return 0, errno.Wrap(errno.EEXIST, "mmap", nil)
		}
	} else {
		for {
			r := VRange{Start: start, End: start + length}
			if start+length > m.userTop {
				return 0, errno.Wrap(errno.ENOMEM, "mmap", nil)
			}

			blocker := m.firstOverlapLocked(r)
			if blocker == nil {
				break
			}

			start = alignUpPage(blocker.Range.End)
		}

		end = start + length
	}

	area := &MMArea{Range: VRange{Start: start, End: end}, Mapping: mapping, Permission: perm}
	m.insertLocked(area)
	m.installLazyLocked(area)

	return start, nil
}

func (m *MMList) firstOverlapLocked(r VRange) *MMArea {
	for _, a := range m.areas {
		if a.Range.Overlaps(r) {
			return a
		}
	}

	return nil
}

// installLazyLocked installs the "lazy" PTEs spec.md §4.D describes: the
// shared zero page with COW for anonymous areas, or the MMAP-pending bit
// for file-backed ones. No page is actually allocated until a fault.
func (m *MMList) installLazyLocked(a *MMArea) {
	for addr := a.Range.Start; addr < a.Range.End; addr += PageSize {
		switch a.Mapping.Kind {
		case MappingAnonymous:
			zeroPage.IncRef()
			m.pt[addr] = &pte{page: zeroPage, present: true, cow: true, writable: false}
		case MappingFile:
			m.pt[addr] = &pte{present: false, mmapPending: true}
		}
	}
}

// Unmap implements spec.md §4.D's unmap: splits overlapping areas at the
// boundaries, drops the PTEs (and their page references) inside the
// removed range.
func (m *MMList) Unmap(start, length uint64) error {
	if !isPageAligned(start) || !isPageAligned(length) {
		return errno.Wrap(errno.EINVAL, "munmap", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	target := VRange{Start: start, End: start + length}

	var kept []*MMArea

	for _, a := range m.areas {
		if !a.Range.Overlaps(target) {
			kept = append(kept, a)
			continue
		}

		if a.Range.Start < target.Start {
			kept = append(kept, &MMArea{
				Range:      VRange{Start: a.Range.Start, End: target.Start},
				Mapping:    a.Mapping,
				Permission: a.Permission,
			})
		}

		if a.Range.End > target.End {
			shrink := a.Range.End - target.End
			kept = append(kept, &MMArea{
				Range: VRange{Start: target.End, End: a.Range.End},
				Mapping: Mapping{
					Kind:   a.Mapping.Kind,
					File:   a.Mapping.File,
					Offset: a.Mapping.Offset + (a.Range.Len() - shrink),
					Length: shrink,
				},
				Permission: a.Permission,
			})
		}

		m.releaseRangeLocked(maxU64(a.Range.Start, target.Start), minU64(a.Range.End, target.End))
	}

	m.areas = kept

	return nil
}

func (m *MMList) releaseRangeLocked(start, end uint64) {
	for addr := start; addr < end; addr += PageSize {
		e, ok := m.pt[addr]
		if !ok {
			continue
		}

		if e.page != nil {
			e.page.DecRef()
		}

		delete(m.pt, addr)
	}
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}

	return b
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}

	return b
}

// SetBreak implements spec.md §4.D's set_break: grows the single heap
// area rooted at breakStart. pos is ceil-to-page; a pos that would
// overlap another area is rejected with no change (and the current break
// is returned, not an error — matching the Rust original's "if growth
// overlaps any other area, no change" rather than a syscall error).
func (m *MMList) SetBreak(pos uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos = alignUpPage(pos)

	if !m.hasBreak {
		m.breakStart = pos
		m.breakPos = pos
		m.hasBreak = true

		return pos
	}

	newRange := VRange{Start: m.breakStart, End: pos}
	for _, a := range m.areas {
		if a.Range.Start == m.breakStart {
			continue // the heap area itself
		}

		if a.Range.Overlaps(newRange) {
			return m.breakPos
		}
	}

	old := VRange{Start: m.breakStart, End: m.breakPos}

	// Replace (or create) the heap MMArea to span [breakStart, pos).
	found := false
	for _, a := range m.areas {
		if a.Range.Start == m.breakStart {
			if pos < old.End {
				m.releaseRangeLocked(pos, old.End)
			}

			a.Range.End = pos
			found = true

			break
		}
	}

	if !found {
		area := &MMArea{Range: VRange{Start: m.breakStart, End: pos}, Mapping: Mapping{Kind: MappingAnonymous}, Permission: Permission{Write: true}}
		m.insertLocked(area)
		m.installLazyLocked(area)
	} else if pos > old.End {
		for addr := old.End; addr < pos; addr += PageSize {
			zeroPage.IncRef()
			m.pt[addr] = &pte{page: zeroPage, present: true, cow: true}
		}
	}

	m.breakPos = pos

	return pos
}

// BreakPos returns the current program break.
func (m *MMList) BreakPos() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.breakPos
}

// Activate/Deactivate are the context-switch hooks spec.md §4.D names
// ("write CR3 (or equivalent) on context switch in/out"). There is no
// hardware page table in this simulation; they exist as explicit
// lifecycle hooks a scheduler integration can instrument or log against.
func (m *MMList) Activate()   { m.log.Debug("mm: activate address space") }
func (m *MMList) Deactivate() { m.log.Debug("mm: deactivate address space") }
